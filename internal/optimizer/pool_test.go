package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longregen/gepa/internal/domain"
	"github.com/longregen/gepa/internal/domain/models"
)

func poolCandidate(instruction string) *models.Candidate {
	return models.NewCandidate(
		[]string{"entity_extraction"},
		map[string]*models.StageConfig{
			"entity_extraction": models.NewStageConfig("entity_extraction", instruction, nil, nil),
		},
	)
}

func TestCandidatePool_Append(t *testing.T) {
	t.Run("first append fixes the matrix width", func(t *testing.T) {
		pool := NewCandidatePool()

		idx, err := pool.Append(poolCandidate("seed"), NoParent, []float64{0.1, 0.2, 0.3})
		require.NoError(t, err)
		assert.Equal(t, 0, idx)
		assert.Equal(t, 1, pool.Len())

		_, err = pool.Append(poolCandidate("child"), 0, []float64{0.4, 0.5})
		assert.ErrorIs(t, err, domain.ErrScoreWidthMismatch)
		assert.Equal(t, 1, pool.Len(), "failed append must not grow the pool")
	})

	t.Run("parent index must reference an existing candidate", func(t *testing.T) {
		pool := NewCandidatePool()
		_, err := pool.Append(poolCandidate("seed"), NoParent, []float64{0.5})
		require.NoError(t, err)

		_, err = pool.Append(poolCandidate("child"), 3, []float64{0.6})
		assert.ErrorIs(t, err, domain.ErrParentOutOfRange)

		_, err = pool.Append(poolCandidate("child"), -2, []float64{0.6})
		assert.ErrorIs(t, err, domain.ErrParentOutOfRange)

		idx, err := pool.Append(poolCandidate("child"), 0, []float64{0.6})
		require.NoError(t, err)
		assert.Equal(t, 1, idx)
		assert.Equal(t, 0, pool.Parent(1))
	})

	t.Run("score rows are copied on the way in and out", func(t *testing.T) {
		pool := NewCandidatePool()
		scores := []float64{0.1, 0.2}
		_, err := pool.Append(poolCandidate("seed"), NoParent, scores)
		require.NoError(t, err)

		scores[0] = 9.9
		assert.Equal(t, []float64{0.1, 0.2}, pool.Scores(0))

		row := pool.Scores(0)
		row[1] = 9.9
		assert.Equal(t, []float64{0.1, 0.2}, pool.Scores(0))
	})
}

func TestCandidatePool_BestIndex(t *testing.T) {
	t.Run("empty pool has no best", func(t *testing.T) {
		pool := NewCandidatePool()
		assert.Equal(t, NoParent, pool.BestIndex())
	})

	t.Run("highest mean wins", func(t *testing.T) {
		pool := NewCandidatePool()
		_, err := pool.Append(poolCandidate("a"), NoParent, []float64{0.2, 0.4})
		require.NoError(t, err)
		_, err = pool.Append(poolCandidate("b"), 0, []float64{0.9, 0.7})
		require.NoError(t, err)
		_, err = pool.Append(poolCandidate("c"), 0, []float64{0.5, 0.5})
		require.NoError(t, err)

		assert.Equal(t, 1, pool.BestIndex())
	})

	t.Run("earliest index wins ties", func(t *testing.T) {
		pool := NewCandidatePool()
		_, err := pool.Append(poolCandidate("a"), NoParent, []float64{0.6, 0.4})
		require.NoError(t, err)
		_, err = pool.Append(poolCandidate("b"), 0, []float64{0.5, 0.5})
		require.NoError(t, err)

		assert.Equal(t, 0, pool.BestIndex())
	})
}

func TestCandidatePool_Ancestors(t *testing.T) {
	buildChain := func(t *testing.T) *CandidatePool {
		t.Helper()
		pool := NewCandidatePool()
		_, err := pool.Append(poolCandidate("v1"), NoParent, []float64{0.1})
		require.NoError(t, err)
		_, err = pool.Append(poolCandidate("v2"), 0, []float64{0.2})
		require.NoError(t, err)
		_, err = pool.Append(poolCandidate("v3"), 1, []float64{0.3})
		require.NoError(t, err)
		return pool
	}

	t.Run("walk starts at the candidate itself, most recent first", func(t *testing.T) {
		pool := buildChain(t)
		got := pool.Ancestors(2, "entity_extraction", 5)
		assert.Equal(t, []string{"v3", "v2", "v1"}, got)
	})

	t.Run("depth bounds the walk", func(t *testing.T) {
		pool := buildChain(t)
		got := pool.Ancestors(2, "entity_extraction", 2)
		assert.Equal(t, []string{"v3", "v2"}, got)
	})

	t.Run("seed chain is just the seed", func(t *testing.T) {
		pool := buildChain(t)
		got := pool.Ancestors(0, "entity_extraction", 5)
		assert.Equal(t, []string{"v1"}, got)
	})

	t.Run("unknown stage yields nothing", func(t *testing.T) {
		pool := buildChain(t)
		assert.Empty(t, pool.Ancestors(2, "no_such_stage", 5))
	})
}

func TestCandidatePool_Prune(t *testing.T) {
	t.Run("keeps the highest-mean candidates in ascending order", func(t *testing.T) {
		pool := NewCandidatePool()
		_, err := pool.Append(poolCandidate("low"), NoParent, []float64{0.2, 0.2})
		require.NoError(t, err)
		_, err = pool.Append(poolCandidate("high"), 0, []float64{0.9, 0.9})
		require.NoError(t, err)
		_, err = pool.Append(poolCandidate("mid"), 0, []float64{0.5, 0.5})
		require.NoError(t, err)

		kept := pool.Prune(2)
		assert.Equal(t, []int{2, 1}, kept)
		require.Equal(t, 2, pool.Len())
		mid, _ := pool.Candidate(0).Stage("entity_extraction")
		high, _ := pool.Candidate(1).Stage("entity_extraction")
		assert.Equal(t, "mid", mid.Instruction)
		assert.Equal(t, "high", high.Instruction)
	})

	t.Run("pool never shrinks below its size", func(t *testing.T) {
		pool := NewCandidatePool()
		_, err := pool.Append(poolCandidate("a"), NoParent, []float64{0.5})
		require.NoError(t, err)
		_, err = pool.Append(poolCandidate("b"), 0, []float64{0.6})
		require.NoError(t, err)

		kept := pool.Prune(10)
		assert.Equal(t, []int{0, 1}, kept)
		assert.Equal(t, 2, pool.Len())
	})

	t.Run("tie at the cutoff keeps the later candidate", func(t *testing.T) {
		pool := NewCandidatePool()
		_, err := pool.Append(poolCandidate("first"), NoParent, []float64{0.5})
		require.NoError(t, err)
		_, err = pool.Append(poolCandidate("second"), 0, []float64{0.5})
		require.NoError(t, err)
		_, err = pool.Append(poolCandidate("low"), 0, []float64{0.3})
		require.NoError(t, err)

		kept := pool.Prune(1)
		assert.Equal(t, []int{1}, kept)
		survivor, _ := pool.Candidate(0).Stage("entity_extraction")
		assert.Equal(t, "second", survivor.Instruction)
	})

	t.Run("parent indices are renumbered or cut", func(t *testing.T) {
		pool := NewCandidatePool()
		_, err := pool.Append(poolCandidate("v1"), NoParent, []float64{0.2})
		require.NoError(t, err)
		_, err = pool.Append(poolCandidate("v2"), 0, []float64{0.5})
		require.NoError(t, err)
		_, err = pool.Append(poolCandidate("v3"), 1, []float64{0.9})
		require.NoError(t, err)

		kept := pool.Prune(2)
		assert.Equal(t, []int{1, 2}, kept)

		// v2 lost its pruned parent; v3 now points at v2's new slot.
		assert.Equal(t, NoParent, pool.Parent(0))
		assert.Equal(t, 0, pool.Parent(1))

		got := pool.Ancestors(1, "entity_extraction", 5)
		assert.Equal(t, []string{"v3", "v2"}, got, "ancestry truncates at the pruned seed")
	})
}
