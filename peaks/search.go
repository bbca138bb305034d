package peaks

import "sort"

// SearchDescending returns the smallest i such that a[i] < a[0]*relativeThreshold,
// or len(a) when every element meets the threshold. a must be sorted in
// descending order.
//
// Equivalently, i is the largest index such that all of a[:i] are >= the
// threshold. An empty slice yields 0.
func SearchDescending(a []float64, relativeThreshold float64) int {
	if len(a) == 0 {
		return 0
	}

	threshold := a[0] * relativeThreshold
	return sort.Search(len(a), func(i int) bool {
		return a[i] < threshold
	})
}
