package optimizer

import (
	"math/rand"
	"sort"
)

// SelectParent picks the next parent candidate from the score matrix
// (candidates x examples) using frequency-weighted Pareto sampling:
//
//  1. For each example, collect the candidate indices achieving the
//     column maximum (ties included).
//  2. Union those best-sets into the Pareto-relevant set.
//  3. Drop members dominated by another member (elementwise >= everywhere
//     and strictly > somewhere).
//  4. Sample the surviving frontier with probability proportional to the
//     number of best-sets each member belongs to; all-zero frequencies
//     fall back to a uniform draw.
//
// A degenerate matrix (no rows or no columns) or an empty frontier
// deterministically selects index 0, the seed.
func SelectParent(matrix [][]float64, rng *rand.Rand) int {
	if len(matrix) == 0 || len(matrix[0]) == 0 {
		return 0
	}
	nTasks := len(matrix[0])

	bestSets := make([]map[int]bool, nTasks)
	for j := 0; j < nTasks; j++ {
		best := matrix[0][j]
		for i := 1; i < len(matrix); i++ {
			if matrix[i][j] > best {
				best = matrix[i][j]
			}
		}
		set := make(map[int]bool)
		for i := range matrix {
			if matrix[i][j] == best {
				set[i] = true
			}
		}
		bestSets[j] = set
	}

	relevant := make(map[int]bool)
	for _, set := range bestSets {
		for i := range set {
			relevant[i] = true
		}
	}
	// Sorted membership keeps dominance checks and sampling deterministic
	// for a fixed seed.
	members := make([]int, 0, len(relevant))
	for i := range relevant {
		members = append(members, i)
	}
	sort.Ints(members)

	var frontier []int
	for _, i := range members {
		dominated := false
		for _, j := range members {
			if i == j {
				continue
			}
			if dominates(matrix[j], matrix[i]) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, i)
		}
	}
	if len(frontier) == 0 {
		return 0
	}

	frequencies := make([]int, len(frontier))
	total := 0
	for k, i := range frontier {
		for _, set := range bestSets {
			if set[i] {
				frequencies[k]++
			}
		}
		total += frequencies[k]
	}
	if total == 0 {
		return frontier[rng.Intn(len(frontier))]
	}

	r := rng.Float64() * float64(total)
	var cum float64
	for k, i := range frontier {
		cum += float64(frequencies[k])
		if r < cum {
			return i
		}
	}
	return frontier[len(frontier)-1]
}

// dominates reports whether score vector a is at least as good as b on
// every task and strictly better on at least one.
func dominates(a, b []float64) bool {
	strictlyBetter := false
	for k := range a {
		if a[k] < b[k] {
			return false
		}
		if a[k] > b[k] {
			strictlyBetter = true
		}
	}
	return strictlyBetter
}
