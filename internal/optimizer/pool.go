package optimizer

import (
	"fmt"
	"sort"

	"github.com/longregen/gepa/internal/domain"
	"github.com/longregen/gepa/internal/domain/models"
)

// NoParent marks a candidate with no resolvable ancestor: either the seed,
// or a candidate whose parent was dropped by pruning.
const NoParent = -1

// CandidatePool is the optimizer's candidate arena: an ordered list of
// candidates, a parallel list of parent indices, and a dense score matrix
// whose row i holds candidate i's score on every validation example.
//
// The pool is append-only between prunes and is owned exclusively by the
// optimization loop; it performs no locking of its own.
type CandidatePool struct {
	candidates []*models.Candidate
	parents    []int
	matrix     [][]float64
	columns    int
}

func NewCandidatePool() *CandidatePool {
	return &CandidatePool{}
}

// Append adds a candidate, its parent index (NoParent for the seed), and
// its score row atomically, returning the new candidate's index. The first
// append fixes the matrix width; later rows must match it.
func (p *CandidatePool) Append(candidate *models.Candidate, parentIndex int, scores []float64) (int, error) {
	if len(p.candidates) > 0 && len(scores) != p.columns {
		return 0, fmt.Errorf("%w: got %d scores, pool has %d columns", domain.ErrScoreWidthMismatch, len(scores), p.columns)
	}
	if parentIndex != NoParent && (parentIndex < 0 || parentIndex >= len(p.candidates)) {
		return 0, fmt.Errorf("%w: parent %d with %d candidates", domain.ErrParentOutOfRange, parentIndex, len(p.candidates))
	}
	if len(p.candidates) == 0 {
		p.columns = len(scores)
	}
	p.candidates = append(p.candidates, candidate)
	p.parents = append(p.parents, parentIndex)
	p.matrix = append(p.matrix, append([]float64(nil), scores...))
	return len(p.candidates) - 1, nil
}

func (p *CandidatePool) Len() int {
	return len(p.candidates)
}

// Candidate returns the candidate at index i.
func (p *CandidatePool) Candidate(i int) *models.Candidate {
	return p.candidates[i]
}

// Parent returns the parent index of candidate i, or NoParent.
func (p *CandidatePool) Parent(i int) int {
	return p.parents[i]
}

// Scores returns a copy of candidate i's score row.
func (p *CandidatePool) Scores(i int) []float64 {
	return append([]float64(nil), p.matrix[i]...)
}

// Matrix exposes the live score matrix for selection. Callers must treat
// it as read-only; the loop is the pool's only writer.
func (p *CandidatePool) Matrix() [][]float64 {
	return p.matrix
}

// MeanScores returns the mean validation score per candidate.
func (p *CandidatePool) MeanScores() []float64 {
	means := make([]float64, len(p.matrix))
	for i, row := range p.matrix {
		means[i] = mean(row)
	}
	return means
}

// BestIndex returns the index of the candidate with the highest mean
// score; the earliest such index wins ties. Returns NoParent on an empty
// pool.
func (p *CandidatePool) BestIndex() int {
	if len(p.candidates) == 0 {
		return NoParent
	}
	best := 0
	bestMean := mean(p.matrix[0])
	for i := 1; i < len(p.matrix); i++ {
		if m := mean(p.matrix[i]); m > bestMean {
			best = i
			bestMean = m
		}
	}
	return best
}

// Ancestors walks parent pointers from index toward the seed and collects
// the named stage's instruction texts, most recent first, up to maxDepth.
// The walk starts at index itself and stops at the seed or at an unknown
// parent left behind by pruning.
func (p *CandidatePool) Ancestors(index int, stageName string, maxDepth int) []string {
	var instructions []string
	cur := index
	for cur != NoParent && cur < len(p.candidates) && len(instructions) < maxDepth {
		if stage, ok := p.candidates[cur].Stage(stageName); ok {
			instructions = append(instructions, stage.Instruction)
		}
		cur = p.parents[cur]
	}
	return instructions
}

// Prune keeps the keepCount candidates with the highest mean score and
// rewrites the candidate list, parent indices, and score matrix
// consistently. Ties are broken by original index (stable sort), and the
// kept rows stay in ascending-mean order. Parent indices are renumbered to
// the new positions; a parent outside the kept set becomes NoParent so
// later Ancestors calls truncate instead of mis-linking. Returns the kept
// original indices in their new order.
func (p *CandidatePool) Prune(keepCount int) []int {
	n := len(p.candidates)
	if keepCount >= n {
		kept := make([]int, n)
		for i := range kept {
			kept[i] = i
		}
		return kept
	}
	if keepCount < 0 {
		keepCount = 0
	}

	means := p.MeanScores()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return means[order[a]] < means[order[b]]
	})
	kept := order[n-keepCount:]

	oldToNew := make(map[int]int, len(kept))
	for newIdx, oldIdx := range kept {
		oldToNew[oldIdx] = newIdx
	}

	candidates := make([]*models.Candidate, len(kept))
	parents := make([]int, len(kept))
	matrix := make([][]float64, len(kept))
	for newIdx, oldIdx := range kept {
		candidates[newIdx] = p.candidates[oldIdx]
		matrix[newIdx] = p.matrix[oldIdx]
		parent := p.parents[oldIdx]
		if parent == NoParent {
			parents[newIdx] = NoParent
		} else if mapped, ok := oldToNew[parent]; ok {
			parents[newIdx] = mapped
		} else {
			parents[newIdx] = NoParent
		}
	}

	p.candidates = candidates
	p.parents = parents
	p.matrix = matrix
	return append([]int(nil), kept...)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
