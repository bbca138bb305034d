package peaks

import (
	"cmp"
	"slices"
)

// Candidate is a local maximum of the sampled function.
type Candidate struct {
	Value float64
	Index int
}

// SortDescending orders candidates by value, highest first. Candidates with
// equal values keep their relative order.
func SortDescending(c []Candidate) {
	slices.SortStableFunc(c, func(a, b Candidate) int {
		return cmp.Compare(b.Value, a.Value)
	})
}

// SplitCandidates returns the values and indices of c as parallel slices.
func SplitCandidates(c []Candidate) ([]float64, []int) {
	values := make([]float64, len(c))
	indices := make([]int, len(c))
	for i, cand := range c {
		values[i] = cand.Value
		indices[i] = cand.Index
	}
	return values, indices
}
