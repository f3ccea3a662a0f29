// Package subd evaluates Catmull-Clark subdivision limit surfaces exactly.
//
// A ControlCage describes the coarse polygonal control mesh. Build compiles
// the cage into an Evaluator whose limit surface can be queried at any
// parametric point (face, u, v) for position, normal and first and second
// derivatives. Evaluation is closed form: regular patches are bicubic
// B-splines, patches around extraordinary vertices use the eigenstructure of
// the local subdivision matrix, so no query ever depends on a tessellation.
//
// Tessellation exists only as a display product. The analysis packages
// (curvature, spectral, lens, mold) consume evaluator queries, never display
// triangles.
package subd

import "math"

const (
	// tolerance for geometric degeneracy checks.
	tolerance = 1e-9
	// epsilon below which vector components are considered zero.
	epsilon = 1e-12
	// maxSharpness caps crease sharpness. Sharper creases would require more
	// refinement rounds than is reasonable for exact evaluation.
	maxSharpness = 8.0
	// maxRefinements bounds the internal refinement loop that isolates
	// extraordinary vertices and flattens crease sharpness.
	maxRefinements = 10
)

func clamp(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}
