package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Point is a position on the projected disk or in image pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AffineMatrix for 2D transforms: x' = ax + by + tx, y' = cx + dy + ty
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// Identity returns the identity transform
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: 0, C: 0, D: 1, Ty: 0}
}

// ProjectedPeak is a peak direction placed on the unit disk
type ProjectedPeak struct {
	Point
	Value float64 `json:"value"`
	Index int     `json:"index"`
	// Flipped is set when the direction pointed into the lower hemisphere
	// and its antipode was projected instead.
	Flipped bool `json:"flipped"`
}

// Project maps a direction onto the unit disk with a Lambert azimuthal
// equal-area projection centered on +z. Lower hemisphere directions are
// replaced by their antipodes. The zero vector projects to the center.
func Project(d [3]float64) (Point, bool) {
	v := r3.Vec{X: d[0], Y: d[1], Z: d[2]}
	n := r3.Norm(v)
	if n == 0 {
		return Point{}, false
	}
	v = r3.Scale(1/n, v)

	flipped := false
	if v.Z < 0 {
		v = r3.Scale(-1, v)
		flipped = true
	}

	// The equator lands on radius sqrt(2); rescale to the unit disk.
	k := math.Sqrt(2/(1+v.Z)) / math.Sqrt2
	return Point{X: k * v.X, Y: k * v.Y}, flipped
}

// ProjectReport projects every peak of a report
func ProjectReport(r *PeakReport) []ProjectedPeak {
	out := make([]ProjectedPeak, len(r.Directions))
	for i, d := range r.Directions {
		p, flipped := Project(d)
		out[i] = ProjectedPeak{
			Point:   p,
			Value:   r.Values[i],
			Index:   r.Indices[i],
			Flipped: flipped,
		}
	}
	return out
}

// SphericalAngles returns the polar angle from +z and the azimuth from +x,
// both in degrees. The azimuth is normalized to [0, 360).
func SphericalAngles(d [3]float64) (theta, phi float64) {
	v := r3.Vec{X: d[0], Y: d[1], Z: d[2]}
	n := r3.Norm(v)
	if n == 0 {
		return 0, 0
	}
	cosTheta := math.Max(-1, math.Min(1, v.Z/n))
	theta = math.Acos(cosTheta) * 180 / math.Pi
	phi = NormalizeAngle(math.Atan2(v.Y, v.X) * 180 / math.Pi)
	return theta, phi
}

// ViewportTransform maps the unit disk onto a square image of the given
// size in pixels, leaving margin pixels on each side. Image y grows
// downward, so the disk's +y axis points up. rotationDeg turns the disk
// counterclockwise before placement.
func ViewportTransform(size, margin, rotationDeg float64) AffineMatrix {
	radius := size/2 - margin
	if radius <= 0 {
		radius = size / 2
	}
	center := size / 2

	place := MultiplyMatrices(Translation(center, center), Scale(radius, -radius))
	return MultiplyMatrices(place, RotationDeg(rotationDeg))
}

// TransformPoint applies an affine transform to a point
// x' = a*x + b*y + tx
// y' = c*x + d*y + ty
func TransformPoint(p Point, m AffineMatrix) Point {
	return Point{
		X: m.A*p.X + m.B*p.Y + m.Tx,
		Y: m.C*p.X + m.D*p.Y + m.Ty,
	}
}

// TransformPoints applies an affine transform to multiple points
func TransformPoints(points []Point, m AffineMatrix) []Point {
	result := make([]Point, len(points))
	for i, p := range points {
		result[i] = TransformPoint(p, m)
	}
	return result
}

// NormalizeAngle normalizes an angle in degrees to the range [0, 360).
func NormalizeAngle(degrees float64) float64 {
	degrees = math.Mod(degrees, 360)
	if degrees < 0 {
		degrees += 360
	}
	return degrees
}

// MultiplyMatrices composes two affine transforms: result = m1 * m2
// Applying result is equivalent to applying m2 first, then m1
func MultiplyMatrices(m1, m2 AffineMatrix) AffineMatrix {
	return AffineMatrix{
		A:  m1.A*m2.A + m1.B*m2.C,
		B:  m1.A*m2.B + m1.B*m2.D,
		Tx: m1.A*m2.Tx + m1.B*m2.Ty + m1.Tx,
		C:  m1.C*m2.A + m1.D*m2.C,
		D:  m1.C*m2.B + m1.D*m2.D,
		Ty: m1.C*m2.Tx + m1.D*m2.Ty + m1.Ty,
	}
}

// InvertMatrix computes the inverse of an affine transform
// Returns identity if matrix is singular (determinant ~= 0)
func InvertMatrix(m AffineMatrix) AffineMatrix {
	det := m.A*m.D - m.B*m.C
	if math.Abs(det) < 1e-10 {
		return Identity()
	}

	invDet := 1.0 / det
	return AffineMatrix{
		A:  m.D * invDet,
		B:  -m.B * invDet,
		Tx: (m.B*m.Ty - m.D*m.Tx) * invDet,
		C:  -m.C * invDet,
		D:  m.A * invDet,
		Ty: (m.C*m.Tx - m.A*m.Ty) * invDet,
	}
}

// Translation creates a translation-only transform
func Translation(tx, ty float64) AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: tx, C: 0, D: 1, Ty: ty}
}

// Rotation creates a rotation transform (angle in radians, around origin)
func Rotation(angle float64) AffineMatrix {
	cos := math.Cos(angle)
	sin := math.Sin(angle)
	return AffineMatrix{A: cos, B: -sin, Tx: 0, C: sin, D: cos, Ty: 0}
}

// RotationDeg creates a rotation transform (angle in degrees, around origin)
func RotationDeg(degrees float64) AffineMatrix {
	return Rotation(degrees * math.Pi / 180.0)
}

// Scale creates a scaling transform
func Scale(sx, sy float64) AffineMatrix {
	return AffineMatrix{A: sx, B: 0, Tx: 0, C: 0, D: sy, Ty: 0}
}

// Distance calculates Euclidean distance between two points
func Distance(p1, p2 Point) float64 {
	dx := p2.X - p1.X
	dy := p2.Y - p1.Y
	return math.Sqrt(dx*dx + dy*dy)
}
