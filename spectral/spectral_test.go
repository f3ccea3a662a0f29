package spectral

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/moldwright/subd"
)

func buildSphereOp(t *testing.T) *Operator {
	t.Helper()
	ev, err := subd.Build(subd.SphereCage(1, 2))
	if err != nil {
		t.Fatalf("build sphere: %v", err)
	}
	t.Cleanup(ev.Release)
	op, err := Build(ev, 3)
	if err != nil {
		t.Fatalf("build operator: %v", err)
	}
	return op
}

func TestSpectrumOrderedAndPositive(t *testing.T) {
	op := buildSphereOp(t)
	sp, err := op.Solve(context.Background(), 6)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if len(sp.Values) != 6 || len(sp.Vectors) != 6 {
		t.Fatalf("got %d values, %d vectors, want 6 each", len(sp.Values), len(sp.Vectors))
	}
	for i, v := range sp.Values {
		if v <= 1e-8 {
			t.Fatalf("eigenvalue %d = %g, zero mode must be excluded", i, v)
		}
		if i > 0 && v < sp.Values[i-1] {
			t.Fatalf("eigenvalues out of order: %g after %g", v, sp.Values[i-1])
		}
		if len(sp.Vectors[i]) != op.NumVertices() {
			t.Fatalf("eigenvector %d has length %d, want %d", i, len(sp.Vectors[i]), op.NumVertices())
		}
	}
	// The unit sphere's first nontrivial eigenvalue is 2 with multiplicity
	// three; the discrete values should cluster near it.
	mean := (sp.Values[0] + sp.Values[1] + sp.Values[2]) / 3
	for i := 0; i < 3; i++ {
		if math.Abs(sp.Values[i]-mean) > 0.3*mean {
			t.Errorf("eigenvalue %d = %g strays from cluster mean %g", i, sp.Values[i], mean)
		}
	}
	if math.Abs(mean-2) > 0.5 {
		t.Errorf("first cluster mean %g, want near 2", mean)
	}
}

func TestSolveDeterministic(t *testing.T) {
	op := buildSphereOp(t)
	a, err := op.Solve(context.Background(), 3)
	if err != nil {
		t.Fatalf("first solve: %v", err)
	}
	b, err := op.Solve(context.Background(), 3)
	if err != nil {
		t.Fatalf("second solve: %v", err)
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			t.Fatalf("eigenvalue %d differs between runs: %g vs %g", i, a.Values[i], b.Values[i])
		}
		for j := range a.Vectors[i] {
			if a.Vectors[i][j] != b.Vectors[i][j] {
				t.Fatalf("eigenvector %d entry %d differs between runs", i, j)
			}
		}
	}
}

func TestSolveIterationCap(t *testing.T) {
	op := buildSphereOp(t)
	op.MaxIterations = 3
	_, err := op.Solve(context.Background(), 5)
	if !errors.Is(err, ErrNonConvergence) {
		t.Fatalf("err = %v, want ErrNonConvergence", err)
	}
}

func TestSolveCancel(t *testing.T) {
	op := buildSphereOp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := op.Solve(ctx, 4); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFaceValuesShape(t *testing.T) {
	ev, err := subd.Build(subd.SphereCage(1, 1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer ev.Release()
	op, err := Build(ev, 2)
	if err != nil {
		t.Fatalf("build operator: %v", err)
	}
	sp, err := op.Solve(context.Background(), 2)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	fv := op.FaceValues(sp.Vectors[0])
	if len(fv) != ev.NumFaces() {
		t.Fatalf("face values length %d, want %d", len(fv), ev.NumFaces())
	}
}
