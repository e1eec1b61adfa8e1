// Package artifact reads and writes the optimized-prompts file an
// optimization run produces: a YAML mapping of stage name to the stage's
// final prompt, version, and content fingerprint.
package artifact

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/longregen/gepa/internal/domain/models"
)

// DefaultFilename is where an optimization run saves its result unless
// told otherwise.
const DefaultFilename = "optimized_prompts.yaml"

// StagePrompt is one stage's entry in the artifact.
type StagePrompt struct {
	Prompt      string `yaml:"prompt"`
	Version     int    `yaml:"version"`
	Fingerprint string `yaml:"fingerprint"`
}

// FromCandidate flattens a candidate into its artifact form.
func FromCandidate(c *models.Candidate) map[string]StagePrompt {
	out := make(map[string]StagePrompt, len(c.Stages))
	for name, stage := range c.Stages {
		out[name] = StagePrompt{
			Prompt:      stage.Instruction,
			Version:     stage.Version,
			Fingerprint: stage.Fingerprint(),
		}
	}
	return out
}

// Write saves the candidate's prompts to path.
func Write(path string, c *models.Candidate) error {
	data, err := yaml.Marshal(FromCandidate(c))
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	return nil
}

// Load reads an artifact file back into its stage map.
func Load(path string) (map[string]StagePrompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	out := make(map[string]StagePrompt)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	return out, nil
}

// Diff returns the sorted stage names whose entries differ between the two
// artifacts, counting stages present on only one side.
func Diff(a, b map[string]StagePrompt) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var changed []string
	for name, entry := range a {
		seen[name] = true
		if other, ok := b[name]; !ok || other != entry {
			changed = append(changed, name)
		}
	}
	for name := range b {
		if !seen[name] {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}
