package mold

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/google/uuid"
	"github.com/moldwright/subd"
	"github.com/moldwright/subd/lens"
)

func regionOf(faces ...int) *lens.Region {
	return &lens.Region{ID: uuid.New(), Faces: faces, Lens: "test"}
}

func buildCube(t *testing.T) *subd.Evaluator {
	t.Helper()
	ev, err := subd.Build(subd.CubeCage(1))
	if err != nil {
		t.Fatalf("build cube: %v", err)
	}
	t.Cleanup(ev.Release)
	return ev
}

func TestCubeDraftScenario(t *testing.T) {
	// Cube, pull +Z, minimum draft 2 degrees: the four side walls run
	// parallel to the pull and must fail; top and bottom must pass.
	ev := buildCube(t)
	v, err := NewValidator(r3.Vec{Z: 1})
	if err != nil {
		t.Fatalf("validator: %v", err)
	}

	type want struct {
		face int
		pass bool
	}
	cases := []want{
		{face: 0, pass: true},  // bottom
		{face: 1, pass: true},  // top
		{face: 2, pass: false}, // -Y wall
		{face: 3, pass: false}, // +X wall
		{face: 4, pass: false}, // +Y wall
		{face: 5, pass: false}, // -X wall
	}
	for _, c := range cases {
		rep, err := v.CheckDraftAngle(ev, regionOf(c.face), 2)
		if err != nil {
			t.Fatalf("face %d: %v", c.face, err)
		}
		if rep.Passed != c.pass {
			t.Errorf("face %d: passed=%v (severity %g), want passed=%v",
				c.face, rep.Passed, rep.Severity, c.pass)
		}
	}
}

func TestUndercutFlip(t *testing.T) {
	ev := buildCube(t)
	top := regionOf(1)

	up, err := NewValidator(r3.Vec{Z: 1})
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	rep, err := up.CheckUndercuts(ev, top)
	if err != nil {
		t.Fatalf("undercuts +Z: %v", err)
	}
	if !rep.Passed || len(rep.Violations) != 0 {
		t.Fatalf("+Z pull on top face: %d violations, want 0", len(rep.Violations))
	}

	down, err := NewValidator(r3.Vec{Z: -1})
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	rep, err = down.CheckUndercuts(ev, top)
	if err != nil {
		t.Fatalf("undercuts -Z: %v", err)
	}
	if len(rep.Violations) != rep.Checked {
		t.Fatalf("-Z pull on top face: %d of %d flagged, want all", len(rep.Violations), rep.Checked)
	}
	if rep.Severity != 1 {
		t.Fatalf("severity %g, want 1", rep.Severity)
	}
}

func TestThicknessHeuristic(t *testing.T) {
	ev := buildCube(t)
	all := regionOf(0, 1, 2, 3, 4, 5)
	v, err := NewValidator(r3.Vec{Z: 1})
	if err != nil {
		t.Fatalf("validator: %v", err)
	}

	rep, err := v.CheckThickness(ev, all, 0.1)
	if err != nil {
		t.Fatalf("thin check: %v", err)
	}
	if !rep.Passed {
		t.Fatalf("cube flagged thinner than 0.1: %d violations", len(rep.Violations))
	}

	rep, err = v.CheckThickness(ev, all, 10)
	if err != nil {
		t.Fatalf("thick check: %v", err)
	}
	if rep.Passed {
		t.Fatal("cube passed an impossible 10-unit wall requirement")
	}
	// Every sample of a closed surface has an opposing wall well inside the
	// search radius, so all of them must be flagged with a finite estimate.
	if len(rep.Violations) != rep.Checked {
		t.Fatalf("flagged %d of %d samples, want all", len(rep.Violations), rep.Checked)
	}
	for _, viol := range rep.Violations {
		if !(viol.AngleDeg > 0 && viol.AngleDeg < 10) {
			t.Fatalf("violation at %v reports thickness %g, want finite positive under 10",
				viol.Position, viol.AngleDeg)
		}
	}
}

func TestConstraintInputErrors(t *testing.T) {
	ev := buildCube(t)

	if _, err := NewValidator(r3.Vec{}); err == nil {
		t.Fatal("zero pull accepted")
	}
	v, err := NewValidator(r3.Vec{Z: 1})
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	if _, err := v.CheckUndercuts(ev, &lens.Region{}); err == nil {
		t.Fatal("empty region accepted")
	}
	if _, err := v.CheckDraftAngle(ev, regionOf(0), 0); err == nil {
		t.Fatal("zero minimum draft accepted")
	}
	if _, err := v.CheckThickness(ev, regionOf(0), -1); err == nil {
		t.Fatal("negative thickness accepted")
	}
	_, err = v.CheckUndercuts(ev, nil)
	var cie *ConstraintInputError
	if !errors.As(err, &cie) {
		t.Fatalf("err %v, want *ConstraintInputError", err)
	}
}
