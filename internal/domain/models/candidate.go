package models

import (
	"fmt"
)

// Candidate is a full pipeline configuration: the fixed, ordered stage
// sequence plus each stage's current instruction text and version. A
// candidate is never mutated once it has been added to a pool; new
// candidates are produced with WithInstruction.
type Candidate struct {
	StageSequence []string                `json:"stage_sequence"`
	Stages        map[string]*StageConfig `json:"stages"`
}

// NewCandidate builds a candidate from a stage sequence and stage
// configurations. Both are copied so the caller's values stay independent.
func NewCandidate(sequence []string, stages map[string]*StageConfig) *Candidate {
	c := &Candidate{
		StageSequence: append([]string(nil), sequence...),
		Stages:        make(map[string]*StageConfig, len(stages)),
	}
	for name, stage := range stages {
		c.Stages[name] = stage.Clone()
	}
	return c
}

// Stage returns the configuration for the named stage.
func (c *Candidate) Stage(name string) (*StageConfig, bool) {
	s, ok := c.Stages[name]
	return s, ok
}

// WithInstruction returns a new candidate identical to c except that the
// named stage carries the given instruction with its version bumped by one.
// Every other stage is carried over unchanged.
func (c *Candidate) WithInstruction(stageName, instruction string) (*Candidate, error) {
	if _, ok := c.Stages[stageName]; !ok {
		return nil, fmt.Errorf("stage %q not found in candidate", stageName)
	}
	out := &Candidate{
		StageSequence: append([]string(nil), c.StageSequence...),
		Stages:        make(map[string]*StageConfig, len(c.Stages)),
	}
	for name, stage := range c.Stages {
		clone := stage.Clone()
		if name == stageName {
			clone.Instruction = instruction
			clone.Version++
		}
		out.Stages[name] = clone
	}
	return out, nil
}

// Clone returns a deep copy of the candidate.
func (c *Candidate) Clone() *Candidate {
	return NewCandidate(c.StageSequence, c.Stages)
}

// Fingerprints returns the per-stage content fingerprints, keyed by stage
// name, in no particular order.
func (c *Candidate) Fingerprints() map[string]string {
	out := make(map[string]string, len(c.Stages))
	for name, stage := range c.Stages {
		out[name] = stage.Fingerprint()
	}
	return out
}
