package curvature

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/moldwright/subd"
)

func TestSphereCurvature(t *testing.T) {
	const radius = 2.0
	ev, err := subd.Build(subd.SphereCage(radius, 3))
	if err != nil {
		t.Fatalf("build sphere: %v", err)
	}
	defer ev.Release()

	var pts []subd.ParametricPoint
	for f := 0; f < ev.NumFaces(); f++ {
		pts = append(pts, Grid(f, 3)...)
	}
	samples, err := BatchAnalyze(ev, pts)
	if err != nil {
		t.Fatalf("batch analyze: %v", err)
	}
	want := 1 / radius
	var sum float64
	for _, s := range samples {
		// Convex surface, outward winding: both principal curvatures must
		// come out positive and elliptic everywhere.
		if s.K2 <= 0 {
			t.Fatalf("point %+v: k1=%g k2=%g, want both positive", s.Point, s.K1, s.K2)
		}
		if s.K1 < s.K2 {
			t.Fatalf("point %+v: k1=%g < k2=%g", s.Point, s.K1, s.K2)
		}
		if s.Gaussian <= 0 {
			t.Fatalf("point %+v: K=%g, sphere must be elliptic", s.Point, s.Gaussian)
		}
		// The cage only approximates a sphere and curvature overshoots on
		// the faces around the cube-corner extraordinary vertices, so the
		// pointwise band is wide.
		if s.K1 > 2.2*want || s.K2 < 0.3*want {
			t.Fatalf("point %+v: k1=%g k2=%g, want within [%g, %g]",
				s.Point, s.K1, s.K2, 0.3*want, 2.2*want)
		}
		sum += s.Mean
	}
	mean := sum / float64(len(samples))
	if relErr(mean, want) > 0.3 {
		t.Errorf("mean curvature averaged %g, want near %g", mean, want)
	}
}

func TestPlaneCurvatureVanishes(t *testing.T) {
	ev, err := subd.Build(subd.PlaneCage(4, 4))
	if err != nil {
		t.Fatalf("build plane: %v", err)
	}
	defer ev.Release()

	var pts []subd.ParametricPoint
	for f := 0; f < ev.NumFaces(); f++ {
		pts = append(pts, Grid(f, 4)...)
	}
	samples, err := BatchAnalyze(ev, pts)
	if err != nil {
		t.Fatalf("batch analyze: %v", err)
	}
	for _, s := range samples {
		if math.Abs(s.Gaussian) > 1e-8 || math.Abs(s.Mean) > 1e-8 {
			t.Fatalf("point %+v: K=%g H=%g, want both ~0", s.Point, s.Gaussian, s.Mean)
		}
	}
}

func TestSaddleIsHyperbolic(t *testing.T) {
	ev, err := subd.Build(subd.SaddleCage(6, 0.8))
	if err != nil {
		t.Fatalf("build saddle: %v", err)
	}
	defer ev.Release()

	// Face touching the saddle point at x=y=0 (6x6 grid of quads).
	center := 3*6 + 3
	s, err := Analyze(ev, subd.ParametricPoint{Face: center, U: 0.5, V: 0.5})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if s.Gaussian >= 0 {
		t.Fatalf("saddle center K=%g, want negative", s.Gaussian)
	}
	if s.K1 <= 0 || s.K2 >= 0 {
		t.Fatalf("saddle center k1=%g k2=%g, want opposite signs", s.K1, s.K2)
	}
}

func TestPrincipalFrameOrthonormal(t *testing.T) {
	ev, err := subd.Build(subd.SphereCage(1, 2))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer ev.Release()

	for _, p := range []subd.ParametricPoint{
		{Face: 0, U: 0.3, V: 0.7},
		{Face: 3, U: 0.5, V: 0.5},
		{Face: 5, U: 0.9, V: 0.1},
	} {
		s, err := Analyze(ev, p)
		if err != nil {
			t.Fatalf("analyze %+v: %v", p, err)
		}
		if d := math.Abs(r3.Norm(s.Dir1) - 1); d > 1e-9 {
			t.Errorf("%+v: |dir1| off unit by %g", p, d)
		}
		if d := math.Abs(r3.Norm(s.Dir2) - 1); d > 1e-9 {
			t.Errorf("%+v: |dir2| off unit by %g", p, d)
		}
		if d := math.Abs(r3.Dot(s.Dir1, s.Dir2)); d > 1e-9 {
			t.Errorf("%+v: dir1.dir2 = %g, want 0", p, d)
		}
		smp, err := ev.Evaluate(p)
		if err != nil {
			t.Fatalf("evaluate %+v: %v", p, err)
		}
		if d := math.Abs(r3.Dot(s.Dir1, smp.Normal)); d > 1e-7 {
			t.Errorf("%+v: dir1 out of tangent plane by %g", p, d)
		}
	}
}

func TestAnalyzeBadPoint(t *testing.T) {
	ev, err := subd.Build(subd.CubeCage(1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer ev.Release()
	if _, err := Analyze(ev, subd.ParametricPoint{Face: 99, U: 0.5, V: 0.5}); err == nil {
		t.Fatal("expected error for out-of-range face")
	}
}

func relErr(got, want float64) float64 {
	return math.Abs(got-want) / math.Abs(want)
}
