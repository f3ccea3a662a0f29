// Package mold validates discovered surface regions against mold
// manufacturability constraints: undercuts, minimum draft angle and a
// coarse wall-thickness heuristic. All angles come from exact limit
// normals, never from a display mesh.
package mold

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/moldwright/subd"
	"github.com/moldwright/subd/curvature"
	"github.com/moldwright/subd/lens"
)

// ConstraintInputError reports unusable validator input such as a zero
// pull direction or an empty region.
type ConstraintInputError struct {
	Reason string
}

func (e *ConstraintInputError) Error() string {
	return "constraint input: " + e.Reason
}

// Violation is one failing sample, carried for the UI to highlight.
type Violation struct {
	Point    subd.ParametricPoint
	Position r3.Vec
	// AngleDeg is the computed draft angle for angle checks and the
	// estimated wall thickness for the thickness check.
	AngleDeg float64
}

// Report is the outcome of one check on one region.
type Report struct {
	Region     uuid.UUID
	Check      string
	Passed     bool
	Checked    int
	Violations []Violation
	// Severity is the violating fraction of checked samples.
	Severity float64
}

// Validator checks regions against one demolding pull direction.
type Validator struct {
	pull r3.Vec
	// SamplesPerFace is the side of the per-face sampling grid.
	SamplesPerFace int
	// SampleDensity feeds the surface sampling behind the thickness
	// heuristic.
	SampleDensity int
}

// NewValidator returns a validator for the given pull direction.
func NewValidator(pull r3.Vec) (*Validator, error) {
	n := r3.Norm(pull)
	if n < 1e-12 || math.IsNaN(n) {
		return nil, &ConstraintInputError{Reason: "zero-length pull direction"}
	}
	return &Validator{
		pull:           r3.Scale(1/n, pull),
		SamplesPerFace: 3,
		SampleDensity:  3,
	}, nil
}

// Pull returns the unit pull direction.
func (v *Validator) Pull() r3.Vec { return v.pull }

func (v *Validator) regionSamples(ev *subd.Evaluator, region *lens.Region) ([]subd.ParametricPoint, []subd.Sample, error) {
	if region == nil || len(region.Faces) == 0 {
		return nil, nil, &ConstraintInputError{Reason: "empty region"}
	}
	var pts []subd.ParametricPoint
	for _, f := range region.Faces {
		pts = append(pts, curvature.Grid(f, v.SamplesPerFace)...)
	}
	samples, err := ev.BatchEvaluate(pts)
	if err != nil {
		return nil, nil, err
	}
	return pts, samples, nil
}

// CheckUndercuts flags samples whose normal points against the pull: the
// mold half cannot release past them.
func (v *Validator) CheckUndercuts(ev *subd.Evaluator, region *lens.Region) (*Report, error) {
	pts, samples, err := v.regionSamples(ev, region)
	if err != nil {
		return nil, err
	}
	rep := &Report{Region: region.ID, Check: "undercut", Checked: len(samples)}
	for i, s := range samples {
		d := r3.Dot(s.Normal, v.pull)
		if d < 0 {
			rep.Violations = append(rep.Violations, Violation{
				Point:    pts[i],
				Position: s.Position,
				AngleDeg: asinDeg(d),
			})
		}
	}
	rep.finish()
	return rep, nil
}

// CheckDraftAngle verifies every sample's draft angle, the angle between
// the surface tangent plane and the pull direction, reaches the minimum.
// A wall parallel to the pull has zero draft and cannot release cleanly.
func (v *Validator) CheckDraftAngle(ev *subd.Evaluator, region *lens.Region, minAngleDeg float64) (*Report, error) {
	if minAngleDeg <= 0 || minAngleDeg >= 90 {
		return nil, &ConstraintInputError{Reason: fmt.Sprintf("minimum draft %g outside (0,90) degrees", minAngleDeg)}
	}
	pts, samples, err := v.regionSamples(ev, region)
	if err != nil {
		return nil, err
	}
	rep := &Report{Region: region.ID, Check: "draft", Checked: len(samples)}
	for i, s := range samples {
		draft := asinDeg(math.Abs(r3.Dot(s.Normal, v.pull)))
		if draft < minAngleDeg {
			rep.Violations = append(rep.Violations, Violation{
				Point:    pts[i],
				Position: s.Position,
				AngleDeg: draft,
			})
		}
	}
	rep.finish()
	return rep, nil
}

func (r *Report) finish() {
	r.Passed = len(r.Violations) == 0
	if r.Checked > 0 {
		r.Severity = float64(len(r.Violations)) / float64(r.Checked)
	}
}

func asinDeg(x float64) float64 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return math.Asin(x) * 180 / math.Pi
}
