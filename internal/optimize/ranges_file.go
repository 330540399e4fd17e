package optimize

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rangesFile is the on-disk sweep definition.
type rangesFile struct {
	Target string `yaml:"target"`
	Ranges Ranges `yaml:"ranges"`
}

// LoadRangesFile reads a sweep definition (target metric + parameter
// ranges) from a YAML file.
func LoadRangesFile(path string) (Ranges, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	var file rangesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, "", fmt.Errorf("parse ranges file %s: %w", path, err)
	}
	if len(file.Ranges) == 0 {
		return nil, "", fmt.Errorf("ranges file %s defines no parameter ranges", path)
	}
	if file.Target == "" {
		file.Target = "finalEquity"
	}
	return file.Ranges, file.Target, nil
}
