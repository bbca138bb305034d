package peaks

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
)

// marker classifies a vertex against its neighbors.
type marker int8

const (
	// neutral: equal to every neighbor seen so far.
	neutral marker = iota
	// wins: greater than at least one neighbor and never smaller.
	wins
	// dominated: smaller than at least one neighbor.
	dominated
)

// merge combines two observations of the same vertex.
// dominated always wins over wins, which wins over neutral.
func (m marker) merge(o marker) marker {
	return max(m, o)
}

// CompareNeighbors returns the indices of the vertices that are greater than
// at least one neighbor and not smaller than any neighbor, in ascending order.
//
// Every edge is range checked before any comparison is made. A comparison
// that involves a NaN aborts the scan.
func CompareNeighbors(odf []float64, edges [][2]int) ([]int, error) {
	if err := validateEdges(edges, len(odf)); err != nil {
		return nil, err
	}

	markers := make([]marker, len(odf))
	if err := scanEdges(odf, edges, 0, markers); err != nil {
		return nil, err
	}
	return collectWinners(markers), nil
}

// CompareNeighborsParallel is CompareNeighbors with the edge scan split across
// workers. Each worker marks into its own buffer and the buffers are reduced
// with the same precedence rule, so the result matches the sequential scan.
// When several edges hold NaNs the reported edge may differ.
func CompareNeighborsParallel(ctx context.Context, odf []float64, edges [][2]int, workers int) ([]int, error) {
	if err := validateEdges(edges, len(odf)); err != nil {
		return nil, err
	}
	if workers < 2 || len(edges) < 2*workers {
		return CompareNeighbors(odf, edges)
	}

	chunk := (len(edges) + workers - 1) / workers
	buffers := make([][]marker, 0, workers)

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(edges); start += chunk {
		end := min(start+chunk, len(edges))
		buf := make([]marker, len(odf))
		buffers = append(buffers, buf)

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return scanEdges(odf, edges[start:end], start, buf)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	markers := buffers[0]
	for _, buf := range buffers[1:] {
		for i, m := range buf {
			markers[i] = markers[i].merge(m)
		}
	}
	return collectWinners(markers), nil
}

func validateEdges(edges [][2]int, n int) error {
	for i, e := range edges {
		if e[0] < 0 || e[0] >= n || e[1] < 0 || e[1] >= n {
			return &EdgeRangeError{Edge: i, A: e[0], B: e[1], N: n}
		}
	}
	return nil
}

// scanEdges marks every vertex touched by edges. offset is the position of
// edges[0] in the full edge list and is only used for error reporting.
func scanEdges(odf []float64, edges [][2]int, offset int, markers []marker) error {
	for i, e := range edges {
		a, b := e[0], e[1]
		va, vb := odf[a], odf[b]

		switch {
		case va < vb:
			markers[a] = dominated
			markers[b] = markers[b].merge(wins)
		case va > vb:
			markers[a] = markers[a].merge(wins)
			markers[b] = dominated
		case math.IsNaN(va) || math.IsNaN(vb):
			return &NaNError{Edge: offset + i, A: a, B: b}
		}
	}
	return nil
}

func collectWinners(markers []marker) []int {
	var winners []int
	for i, m := range markers {
		if m == wins {
			winners = append(winners, i)
		}
	}
	return winners
}
