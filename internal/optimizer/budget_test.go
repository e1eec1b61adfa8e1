package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRolloutBudget(t *testing.T) {
	t.Run("charges accumulate monotonically", func(t *testing.T) {
		b := NewRolloutBudget(10)
		assert.Equal(t, 0, b.Used())
		assert.Equal(t, 10, b.Ceiling())
		assert.Equal(t, 10, b.Remaining())
		assert.False(t, b.Exhausted())

		b.Charge(4)
		assert.Equal(t, 4, b.Used())
		assert.Equal(t, 6, b.Remaining())

		b.Charge(3)
		assert.Equal(t, 7, b.Used())
		assert.False(t, b.Exhausted())
	})

	t.Run("exhausted at exactly the ceiling", func(t *testing.T) {
		b := NewRolloutBudget(5)
		b.Charge(5)
		assert.True(t, b.Exhausted())
		assert.Equal(t, 0, b.Remaining())
	})

	t.Run("overshoot is allowed but remaining floors at zero", func(t *testing.T) {
		b := NewRolloutBudget(5)
		b.Charge(3)
		b.Charge(7)
		assert.Equal(t, 10, b.Used())
		assert.Equal(t, 0, b.Remaining())
		assert.True(t, b.Exhausted())
	})

	t.Run("non-positive charges are ignored", func(t *testing.T) {
		b := NewRolloutBudget(5)
		b.Charge(0)
		b.Charge(-3)
		assert.Equal(t, 0, b.Used())
	})
}
