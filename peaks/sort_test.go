package peaks

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortDescending(t *testing.T) {
	tests := []struct {
		name string
		in   []Candidate
		want []Candidate
	}{
		{
			name: "empty",
			in:   []Candidate{},
			want: []Candidate{},
		},
		{
			name: "already sorted",
			in:   []Candidate{{3, 0}, {2, 1}, {1, 2}},
			want: []Candidate{{3, 0}, {2, 1}, {1, 2}},
		},
		{
			name: "ascending input",
			in:   []Candidate{{1, 0}, {2, 1}, {3, 2}},
			want: []Candidate{{3, 2}, {2, 1}, {1, 0}},
		},
		{
			name: "ties keep input order",
			in:   []Candidate{{1, 4}, {5, 9}, {1, 2}, {5, 3}, {1, 0}},
			want: []Candidate{{5, 9}, {5, 3}, {1, 4}, {1, 2}, {1, 0}},
		},
		{
			name: "negative values",
			in:   []Candidate{{-2, 0}, {0, 1}, {-1, 2}},
			want: []Candidate{{0, 1}, {-1, 2}, {-2, 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SortDescending(tt.in)
			assert.Equal(t, tt.want, tt.in)
		})
	}
}

func TestSortDescending_Stable(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 100; trial++ {
		n := rng.Intn(40)
		c := make([]Candidate, n)
		for i := range c {
			// Index doubles as the unique tag recording the input position.
			c[i] = Candidate{Value: float64(rng.Intn(5)), Index: i}
		}

		SortDescending(c)

		for i := 1; i < len(c); i++ {
			prev, cur := c[i-1], c[i]
			if prev.Value < cur.Value {
				t.Fatalf("trial %d: not descending at %d: %v then %v", trial, i, prev, cur)
			}
			if prev.Value == cur.Value && prev.Index > cur.Index {
				t.Fatalf("trial %d: equal values reordered at %d: %v then %v", trial, i, prev, cur)
			}
		}
	}
}

func TestSplitCandidates(t *testing.T) {
	values, indices := SplitCandidates([]Candidate{{3.5, 7}, {1.25, 2}})
	assert.Equal(t, []float64{3.5, 1.25}, values)
	assert.Equal(t, []int{7, 2}, indices)

	values, indices = SplitCandidates(nil)
	assert.Empty(t, values)
	assert.Empty(t, indices)
}
