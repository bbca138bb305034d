package peaks

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// RemoveSimilarVertices keeps the vertices that are at least theta degrees
// away from every vertex kept before them.
//
// Vertices are visited in order, so earlier vertices win. When asym is false
// v and -v are the same direction and a vertex must also be theta degrees
// away from the negation of every kept vertex. The second return value holds,
// for each kept vertex, its position in vertices.
func RemoveSimilarVertices(vertices []r3.Vec, theta float64, asym bool) ([]r3.Vec, []int) {
	cosSimilarity := math.Cos(theta * math.Pi / 180)

	unique := make([]r3.Vec, 0, len(vertices))
	index := make([]int, 0, len(vertices))

	for i, v := range vertices {
		if tooSimilar(v, unique, cosSimilarity, asym) {
			continue
		}
		unique = append(unique, v)
		index = append(index, i)
	}
	return unique, index
}

func tooSimilar(v r3.Vec, kept []r3.Vec, cosSimilarity float64, asym bool) bool {
	for _, u := range kept {
		sim := r3.Dot(v, u)
		if !asym {
			sim = math.Abs(sim)
		}
		if sim > cosSimilarity {
			return true
		}
	}
	return false
}

// RemoveSimilarRows is RemoveSimilarVertices for directions given as rows of
// components. Every row must have exactly 3 components.
func RemoveSimilarRows(rows [][]float64, theta float64, asym bool) ([]r3.Vec, []int, error) {
	vertices, err := VecsFromRows(rows)
	if err != nil {
		return nil, nil, err
	}
	unique, index := RemoveSimilarVertices(vertices, theta, asym)
	return unique, index, nil
}

// VecsFromRows converts rows of 3 components into vectors.
func VecsFromRows(rows [][]float64) ([]r3.Vec, error) {
	vecs := make([]r3.Vec, len(rows))
	for i, row := range rows {
		if len(row) != 3 {
			return nil, &ShapeError{Row: i, Dim: len(row)}
		}
		vecs[i] = r3.Vec{X: row[0], Y: row[1], Z: row[2]}
	}
	return vecs, nil
}
