// Package optimizer implements a genetic-Pareto (GEPA) search over the
// instruction texts of a multi-stage pipeline: a candidate pool with
// ancestry tracking, Pareto-frontier parent selection, LLM-driven
// reflective mutation, minibatch accept gating, and rollout-budget
// accounting.
package optimizer

// RolloutBudget counts candidate-example evaluations against a fixed
// ceiling. The counter never decreases and is charged only by the
// optimization loop.
type RolloutBudget struct {
	ceiling int
	used    int
}

func NewRolloutBudget(ceiling int) *RolloutBudget {
	return &RolloutBudget{ceiling: ceiling}
}

// Charge consumes n evaluation units. Non-positive charges are ignored.
func (b *RolloutBudget) Charge(n int) {
	if n > 0 {
		b.used += n
	}
}

func (b *RolloutBudget) Used() int {
	return b.used
}

func (b *RolloutBudget) Ceiling() int {
	return b.ceiling
}

// Remaining returns the unconsumed budget, never below zero.
func (b *RolloutBudget) Remaining() int {
	if b.used >= b.ceiling {
		return 0
	}
	return b.ceiling - b.used
}

func (b *RolloutBudget) Exhausted() bool {
	return b.used >= b.ceiling
}
