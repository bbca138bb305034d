package peaks

import (
	"errors"
	"fmt"
)

var (
	// ErrEdgeOutOfRange is returned when an edge references a vertex outside the sample.
	ErrEdgeOutOfRange = errors.New("values in edges must be < len(odf)")

	// ErrNaN is returned when a NaN takes part in a neighbor comparison.
	ErrNaN = errors.New("odf can not have nans")

	// ErrShapeMismatch is returned when a direction is not 3-dimensional.
	ErrShapeMismatch = errors.New("vertices should be 2D with second dim length 3")
)

// EdgeRangeError reports the first edge that references a missing vertex.
type EdgeRangeError struct {
	Edge int
	A, B int
	N    int
}

func (e *EdgeRangeError) Error() string {
	return fmt.Sprintf("edge %d (%d, %d) out of range for %d vertices", e.Edge, e.A, e.B, e.N)
}

func (e *EdgeRangeError) Unwrap() error { return ErrEdgeOutOfRange }

// NaNError reports the edge whose comparison hit a NaN sample.
type NaNError struct {
	Edge int
	A, B int
}

func (e *NaNError) Error() string {
	return fmt.Sprintf("nan value at edge %d (%d, %d)", e.Edge, e.A, e.B)
}

func (e *NaNError) Unwrap() error { return ErrNaN }

// ShapeError reports a direction row with the wrong number of components.
type ShapeError struct {
	Row int
	Dim int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("vertex %d has %d components, want 3", e.Row, e.Dim)
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }
