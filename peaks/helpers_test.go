package peaks

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const epsilon = 1e-10

// octahedron returns the six axis directions. Every vertex neighbors every
// other vertex except its antipode.
//
//	0:+x 1:-x 2:+y 3:-y 4:+z 5:-z
func octahedron() *Sphere {
	verts := []r3.Vec{
		{X: 1}, {X: -1},
		{Y: 1}, {Y: -1},
		{Z: 1}, {Z: -1},
	}
	var edges [][2]int
	for i := range verts {
		for j := i + 1; j < len(verts); j++ {
			if r3.Dot(verts[i], verts[j]) > -0.5 {
				edges = append(edges, [2]int{i, j})
			}
		}
	}
	return &Sphere{Vertices: verts, Edges: edges}
}

// icosahedron returns the 12 vertices and 30 edges of a regular icosahedron.
func icosahedron() *Sphere {
	phi := (1 + math.Sqrt(5)) / 2
	raw := []r3.Vec{
		{X: 0, Y: 1, Z: phi}, {X: 0, Y: -1, Z: phi}, {X: 0, Y: 1, Z: -phi}, {X: 0, Y: -1, Z: -phi},
		{X: 1, Y: phi, Z: 0}, {X: -1, Y: phi, Z: 0}, {X: 1, Y: -phi, Z: 0}, {X: -1, Y: -phi, Z: 0},
		{X: phi, Y: 0, Z: 1}, {X: -phi, Y: 0, Z: 1}, {X: phi, Y: 0, Z: -1}, {X: -phi, Y: 0, Z: -1},
	}
	verts := make([]r3.Vec, len(raw))
	for i, v := range raw {
		verts[i] = r3.Unit(v)
	}

	// Neighbors are 63.4 degrees apart (dot 1/sqrt(5)), everything else is
	// on the far side.
	var edges [][2]int
	for i := range verts {
		for j := i + 1; j < len(verts); j++ {
			if r3.Dot(verts[i], verts[j]) > 0.4 {
				edges = append(edges, [2]int{i, j})
			}
		}
	}
	return &Sphere{Vertices: verts, Edges: edges}
}

// sampleOn evaluates f on every vertex of s.
func sampleOn(s *Sphere, f func(r3.Vec) float64) []float64 {
	odf := make([]float64, len(s.Vertices))
	for i, v := range s.Vertices {
		odf[i] = f(v)
	}
	return odf
}

// angleDeg returns the angle between two unit vectors in degrees.
func angleDeg(a, b r3.Vec) float64 {
	c := math.Max(-1, math.Min(1, r3.Dot(a, b)))
	return math.Acos(c) * 180 / math.Pi
}

// unitAt returns the unit vector in the xy-plane at deg degrees from +x.
func unitAt(deg float64) r3.Vec {
	rad := deg * math.Pi / 180
	return r3.Vec{X: math.Cos(rad), Y: math.Sin(rad)}
}
