// Package peaks finds the dominant directions of a function sampled on the
// vertices of a spherical mesh.
//
// Peaks are vertices that are greater than at least one neighbor and not
// smaller than any neighbor. They are sorted by value, filtered by their
// size relative to the largest peak and thinned so that no two kept
// directions are closer than a minimum angle.
package peaks

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Sphere is a discrete spherical mesh: unit vertices and the edges between
// neighboring vertices. A Sphere is never modified and can be shared.
type Sphere struct {
	Vertices []r3.Vec
	Edges    [][2]int
}

// NewSphere builds a Sphere from vertex rows, checking that every row has 3
// components and every edge references an existing vertex.
func NewSphere(vertices [][]float64, edges [][2]int) (*Sphere, error) {
	vecs, err := VecsFromRows(vertices)
	if err != nil {
		return nil, err
	}
	if err := validateEdges(edges, len(vecs)); err != nil {
		return nil, err
	}
	return &Sphere{Vertices: vecs, Edges: edges}, nil
}

// Params controls peak filtering.
type Params struct {
	// RelativePeakThreshold drops peaks below this fraction of the largest
	// peak, measured above max(0, min(odf)).
	RelativePeakThreshold float64 `json:"relativePeakThreshold" yaml:"relativePeakThreshold"`
	// MinSeparationAngle is the minimum angle in degrees between kept peaks.
	MinSeparationAngle float64 `json:"minSeparationAngle" yaml:"minSeparationAngle"`
	// MaxPeaks caps the number of returned peaks. 0 keeps all of them.
	MaxPeaks int `json:"maxPeaks,omitempty" yaml:"maxPeaks,omitempty"`
}

// DefaultParams returns a 0.5 relative threshold and a 25 degree separation.
func DefaultParams() Params {
	return Params{RelativePeakThreshold: 0.5, MinSeparationAngle: 25}
}

// Validate checks that the parameters are within their documented ranges.
func (p Params) Validate() error {
	if p.RelativePeakThreshold < 0 || p.RelativePeakThreshold > 1 {
		return fmt.Errorf("relative peak threshold %v not in [0, 1]", p.RelativePeakThreshold)
	}
	if p.MinSeparationAngle < 0 || p.MinSeparationAngle > 90 {
		return fmt.Errorf("min separation angle %v not in [0, 90]", p.MinSeparationAngle)
	}
	if p.MaxPeaks < 0 {
		return fmt.Errorf("max peaks %d is negative", p.MaxPeaks)
	}
	return nil
}

// Result holds the peaks of one sample, highest first. Values[i] is the
// sample at Indices[i] and Directions[i] is the vertex at Indices[i].
type Result struct {
	Directions []r3.Vec
	Values     []float64
	Indices    []int
}

// Len returns the number of peaks.
func (r Result) Len() int {
	return len(r.Indices)
}

func emptyResult() Result {
	return Result{Directions: []r3.Vec{}, Values: []float64{}, Indices: []int{}}
}

// LocalMaxima returns the values and indices of the local maxima of odf,
// sorted by value in descending order. Maxima with equal values stay in
// ascending index order.
//
// When no vertex is greater than any of its neighbors, for example on a
// constant function, no maxima are returned.
func LocalMaxima(odf []float64, edges [][2]int) ([]float64, []int, error) {
	winners, err := CompareNeighbors(odf, edges)
	if err != nil {
		return nil, nil, err
	}

	cands := make([]Candidate, len(winners))
	for i, idx := range winners {
		cands[i] = Candidate{Value: odf[idx], Index: idx}
	}
	SortDescending(cands)

	values, indices := SplitCandidates(cands)
	return values, indices, nil
}

// PeakDirections returns the peaks of odf, a function evaluated on the
// vertices of sphere.
//
// Peaks are sorted by value, peaks smaller than
// min + RelativePeakThreshold*(max-min) are dropped, where min is
// max(0, min(odf)), and peaks closer than MinSeparationAngle to a larger peak
// are dropped. v and -v are distinct directions. An odf without local maxima,
// or whose largest peak is negative, has no peaks.
func PeakDirections(odf []float64, sphere *Sphere, params Params) (Result, error) {
	values, indices, err := LocalMaxima(odf, sphere.Edges)
	if err != nil {
		return Result{}, err
	}

	switch {
	case len(values) == 0 || values[0] < 0:
		return emptyResult(), nil
	case len(values) == 1:
		return Result{
			Directions: []r3.Vec{sphere.Vertices[indices[0]]},
			Values:     values,
			Indices:    indices,
		}, nil
	}

	// The threshold is relative to the largest shifted value, so dividing by
	// (max - floor) would not change which peaks pass.
	floor := max(0, floats.Min(odf))
	shifted := make([]float64, len(values))
	for i, v := range values {
		shifted[i] = v - floor
	}

	n := SearchDescending(shifted, params.RelativePeakThreshold)
	values, indices = values[:n], indices[:n]

	dirs := make([]r3.Vec, n)
	for i, idx := range indices {
		dirs[i] = sphere.Vertices[idx]
	}
	dirs, keep := RemoveSimilarVertices(dirs, params.MinSeparationAngle, true)

	res := Result{
		Directions: dirs,
		Values:     make([]float64, len(keep)),
		Indices:    make([]int, len(keep)),
	}
	for i, k := range keep {
		res.Values[i] = values[k]
		res.Indices[i] = indices[k]
	}

	if params.MaxPeaks > 0 && res.Len() > params.MaxPeaks {
		res.Directions = res.Directions[:params.MaxPeaks]
		res.Values = res.Values[:params.MaxPeaks]
		res.Indices = res.Indices[:params.MaxPeaks]
	}
	return res, nil
}
