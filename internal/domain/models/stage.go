package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// StageConfig holds one pipeline stage's instruction text, schema
// descriptors, and version counter. The version increases by exactly one
// each time the instruction text is replaced.
type StageConfig struct {
	Name               string            `json:"name" yaml:"name"`
	Instruction        string            `json:"instruction" yaml:"instruction"`
	InputSchema        map[string]string `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	OutputSchema       map[string]string `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
	Version            int               `json:"version" yaml:"version"`
	PerformanceHistory []float64         `json:"performance_history,omitempty" yaml:"-"`
}

func NewStageConfig(name, instruction string, inputSchema, outputSchema map[string]string) *StageConfig {
	return &StageConfig{
		Name:         name,
		Instruction:  instruction,
		InputSchema:  inputSchema,
		OutputSchema: outputSchema,
		Version:      1,
	}
}

// Fingerprint returns a short content-derived identifier for the stage's
// current configuration, used for identification and logging only.
func (s *StageConfig) Fingerprint() string {
	content := fmt.Sprintf("%s:%s:%d", s.Name, s.Instruction, s.Version)
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:8]
}

// Clone returns a deep copy of the stage configuration.
func (s *StageConfig) Clone() *StageConfig {
	out := &StageConfig{
		Name:        s.Name,
		Instruction: s.Instruction,
		Version:     s.Version,
	}
	if s.InputSchema != nil {
		out.InputSchema = make(map[string]string, len(s.InputSchema))
		for k, v := range s.InputSchema {
			out.InputSchema[k] = v
		}
	}
	if s.OutputSchema != nil {
		out.OutputSchema = make(map[string]string, len(s.OutputSchema))
		for k, v := range s.OutputSchema {
			out.OutputSchema[k] = v
		}
	}
	if len(s.PerformanceHistory) > 0 {
		out.PerformanceHistory = append([]float64(nil), s.PerformanceHistory...)
	}
	return out
}

// RecordScore appends a score to the stage's rolling performance history.
func (s *StageConfig) RecordScore(score float64) {
	s.PerformanceHistory = append(s.PerformanceHistory, score)
}
