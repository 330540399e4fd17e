package strategy

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GraphFile is the on-disk strategy definition.
type GraphFile struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Graph       Graph  `yaml:",inline"`
}

// LoadGraphFile reads a strategy graph from a YAML file and checks that it
// compiles with default parameters.
func LoadGraphFile(path string) (*GraphFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file GraphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse strategy file %s: %w", path, err)
	}

	if _, err := Compile(&file.Graph, nil); err != nil {
		return nil, fmt.Errorf("strategy file %s: %w", path, err)
	}
	return &file, nil
}

// SyncToDB upserts the strategy definition into the strategies table,
// storing the graph as a JSON document.
func (f *GraphFile) SyncToDB(db *sql.DB) error {
	graphJSON, err := json.Marshal(f.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph for strategy %s: %w", f.Name, err)
	}

	_, err = db.Exec(`
		INSERT INTO strategies (id, name, description, graph, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			graph = excluded.graph,
			updated_at = CURRENT_TIMESTAMP
	`, f.ID, f.Name, f.Description, string(graphJSON))
	if err != nil {
		return fmt.Errorf("upsert strategy %s: %w", f.Name, err)
	}
	return nil
}
