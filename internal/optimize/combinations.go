package optimize

import (
	"sort"
	"strings"

	"backtest-core/internal/strategy"
)

// Assignment is one concrete parameter combination, keyed like Ranges.
type Assignment map[string]float64

// expand lists the concrete values of a range. Explicit values win over
// min/max/step; a malformed range expands to nothing.
func (r Range) expand() []float64 {
	if len(r.Values) > 0 {
		return r.Values
	}
	if r.Step <= 0 || r.Max < r.Min {
		return nil
	}
	var out []float64
	// A hair of tolerance so max itself survives float accumulation.
	for v := r.Min; v <= r.Max+r.Step*1e-9; v += r.Step {
		out = append(out, v)
	}
	return out
}

// Combinations generates the Cartesian product of all ranges via a
// recursive builder, keys in sorted order so generation order is
// deterministic.
func Combinations(ranges Ranges) []Assignment {
	keys := make([]string, 0, len(ranges))
	for k := range ranges {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([][]float64, len(keys))
	for i, k := range keys {
		values[i] = ranges[k].expand()
		if len(values[i]) == 0 {
			return nil
		}
	}

	var out []Assignment
	current := make(Assignment, len(keys))

	var build func(idx int)
	build = func(idx int) {
		if idx == len(keys) {
			combo := make(Assignment, len(current))
			for k, v := range current {
				combo[k] = v
			}
			out = append(out, combo)
			return
		}
		for _, v := range values[idx] {
			current[keys[idx]] = v
			build(idx + 1)
		}
	}
	build(0)

	return out
}

// ToOverrides converts an assignment into compiler overrides. Keys are
// split on the last underscore so node ids may themselves contain
// underscores.
func (a Assignment) ToOverrides() strategy.Overrides {
	overrides := make(strategy.Overrides)
	for key, value := range a {
		idx := strings.LastIndex(key, "_")
		if idx <= 0 || idx == len(key)-1 {
			continue
		}
		nodeID, param := key[:idx], key[idx+1:]
		if overrides[nodeID] == nil {
			overrides[nodeID] = make(map[string]any)
		}
		overrides[nodeID][param] = value
	}
	return overrides
}
