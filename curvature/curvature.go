// Package curvature computes differential-geometry quantities of a limit
// surface from exact evaluator derivatives: fundamental forms, the shape
// operator, principal curvatures and directions.
package curvature

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/moldwright/subd"
)

// Sample holds the curvature state of one parametric point. K1 >= K2 by
// convention, and curvature is positive where the surface bends away from
// its normal, so closed cages with outward winding report positive values on
// convex features. Dir1 and Dir2 are unit world-space principal directions
// lying in the tangent plane.
type Sample struct {
	Point      subd.ParametricPoint
	K1, K2     float64
	Dir1, Dir2 r3.Vec
	Gaussian   float64
	Mean       float64
}

// InstabilityError reports a degenerate first fundamental form: the metric
// determinant E*G - F*F vanished, so the shape operator is not defined at
// the point.
type InstabilityError struct {
	Point subd.ParametricPoint
	Det   float64
}

func (e *InstabilityError) Error() string {
	return fmt.Sprintf("curvature at face %d (u=%g, v=%g): degenerate metric, det=%g",
		e.Point.Face, e.Point.U, e.Point.V, e.Det)
}

// detFloor is the relative floor under the metric determinant. Below it the
// parametrization is treated as degenerate rather than divided through.
const detFloor = 1e-12

// Analyze computes the curvature state at a single parametric point.
func Analyze(ev *subd.Evaluator, p subd.ParametricPoint) (Sample, error) {
	d, err := ev.EvaluateWithSecondDerivatives(p)
	if err != nil {
		return Sample{}, err
	}
	return fromDerivatives(p, d)
}

// BatchAnalyze computes curvature for many points in one call. Evaluation is
// sharded internally; the first failing point aborts the batch. Results are
// index-aligned with pts.
func BatchAnalyze(ev *subd.Evaluator, pts []subd.ParametricPoint) ([]Sample, error) {
	ds, err := ev.BatchEvaluateWithSecondDerivatives(pts)
	if err != nil {
		return nil, err
	}
	out := make([]Sample, len(pts))
	for i, d := range ds {
		out[i], err = fromDerivatives(pts[i], d)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Grid returns an n x n sampling grid over one cage face. Samples sit at
// cell centers, so face corners (and any extraordinary vertex there) are
// never hit exactly.
func Grid(face, n int) []subd.ParametricPoint {
	pts := make([]subd.ParametricPoint, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			pts = append(pts, subd.ParametricPoint{
				Face: face,
				U:    (float64(i) + 0.5) / float64(n),
				V:    (float64(j) + 0.5) / float64(n),
			})
		}
	}
	return pts
}

func fromDerivatives(p subd.ParametricPoint, d subd.SecondDerivatives) (Sample, error) {
	// First fundamental form.
	E := r3.Dot(d.Du, d.Du)
	F := r3.Dot(d.Du, d.Dv)
	G := r3.Dot(d.Dv, d.Dv)
	det := E*G - F*F
	if !(det > detFloor*E*G) || math.IsNaN(det) {
		return Sample{}, &InstabilityError{Point: p, Det: det}
	}

	nrm := r3.Unit(r3.Cross(d.Du, d.Dv))

	// Second fundamental form, oriented against the surface normal so a
	// surface bending away from it (a sphere seen from outside) has positive
	// principal curvatures.
	L := -r3.Dot(d.Duu, nrm)
	M := -r3.Dot(d.Duv, nrm)
	N := -r3.Dot(d.Dvv, nrm)

	// Shape operator S = I^-1 * II in the (du, dv) basis.
	s00 := (G*L - F*M) / det
	s01 := (G*M - F*N) / det
	s10 := (E*M - F*L) / det
	s11 := (E*N - F*M) / det

	K := (L*N - M*M) / det
	H := (s00 + s11) / 2
	disc := H*H - K
	if disc < 0 {
		// Roundoff near umbilic points.
		disc = 0
	}
	rt := math.Sqrt(disc)
	k1, k2 := H+rt, H-rt

	dir1 := principalDir(s00, s01, s10, s11, k1, d.Du, d.Dv)
	if r3.Norm(dir1) < 1e-9 {
		// Umbilic: every tangent direction is principal.
		dir1 = r3.Unit(d.Du)
	} else {
		dir1 = r3.Unit(dir1)
	}
	dir2 := r3.Unit(r3.Cross(nrm, dir1))

	return Sample{
		Point:    p,
		K1:       k1,
		K2:       k2,
		Dir1:     dir1,
		Dir2:     dir2,
		Gaussian: K,
		Mean:     H,
	}, nil
}

// principalDir maps the eigenvector of the 2x2 shape operator for eigenvalue
// k into a world-space tangent vector. Of the two algebraic forms it picks
// the better-conditioned row.
func principalDir(s00, s01, s10, s11, k float64, du, dv r3.Vec) r3.Vec {
	a1, b1 := s01, k-s00
	a2, b2 := k-s11, s10
	if math.Abs(a1)+math.Abs(b1) >= math.Abs(a2)+math.Abs(b2) {
		return r3.Add(r3.Scale(a1, du), r3.Scale(b1, dv))
	}
	return r3.Add(r3.Scale(a2, du), r3.Scale(b2, dv))
}
