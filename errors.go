package subd

import (
	"errors"
	"fmt"
)

var (
	// ErrNonManifold is returned when a cage edge is shared by more than two
	// faces or the faces around a vertex do not form a single fan.
	ErrNonManifold = errors.New("non-manifold topology")

	// ErrDegenerateFace is returned for faces with fewer than three vertices
	// or repeated vertex indices.
	ErrDegenerateFace = errors.New("degenerate face")

	// ErrVertexOutOfRange is returned when a face references a vertex index
	// outside the cage vertex slice.
	ErrVertexOutOfRange = errors.New("face vertex index out of range")

	// ErrBoundaryExtraordinary is returned for cages with an extraordinary
	// vertex on an open boundary, which exact evaluation does not support.
	ErrBoundaryExtraordinary = errors.New("extraordinary vertex on boundary")

	// ErrHandleReleased is returned when evaluating on a released evaluator.
	ErrHandleReleased = errors.New("evaluator handle released")
)

// TopologyError reports an invalid control cage. Build fails fast with no
// partial handle.
type TopologyError struct {
	// Face is the offending face index, or -1 when the defect is not tied to
	// a single face.
	Face int
	// Edge holds the offending edge endpoints when applicable.
	Edge [2]int
	// Err is one of the topology sentinel errors above.
	Err error
}

func (e *TopologyError) Error() string {
	if e.Face >= 0 {
		return fmt.Sprintf("cage topology: face %d: %v", e.Face, e.Err)
	}
	if e.Edge[0] != e.Edge[1] {
		return fmt.Sprintf("cage topology: edge (%d,%d): %v", e.Edge[0], e.Edge[1], e.Err)
	}
	return fmt.Sprintf("cage topology: %v", e.Err)
}

func (e *TopologyError) Unwrap() error { return e.Err }

// EvaluationError reports an invalid parametric query.
type EvaluationError struct {
	Point  ParametricPoint
	Reason string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate face %d (u=%g, v=%g): %s", e.Point.Face, e.Point.U, e.Point.V, e.Reason)
}

func evalErrorf(p ParametricPoint, format string, args ...interface{}) error {
	return &EvaluationError{Point: p, Reason: fmt.Sprintf(format, args...)}
}
