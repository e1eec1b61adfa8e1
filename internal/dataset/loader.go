// Package dataset loads training and validation example files.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/longregen/gepa/internal/domain"
	"github.com/longregen/gepa/internal/domain/models"
)

// Load reads a dataset file into examples. The file holds a list of
// records, each with an input object and an expected object; .yaml/.yml
// files are parsed as YAML, everything else as JSON. An empty list or a
// record missing either object is an error, so a bad dataset fails the
// run before any rollouts are spent.
func Load(path string) ([]models.Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}

	var examples []models.Example
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &examples); err != nil {
			return nil, fmt.Errorf("parse dataset %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &examples); err != nil {
			return nil, fmt.Errorf("parse dataset %s: %w", path, err)
		}
	}

	if len(examples) == 0 {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrEmptyDataset)
	}
	for i, example := range examples {
		if len(example.Input) == 0 {
			return nil, fmt.Errorf("%s example %d has no input: %w", path, i, domain.ErrInvalidExample)
		}
		if len(example.Expected) == 0 {
			return nil, fmt.Errorf("%s example %d has no expected fields: %w", path, i, domain.ErrInvalidExample)
		}
	}
	return examples, nil
}
