package subd

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestValidateRejects(t *testing.T) {
	quadStrip := func() ControlCage {
		return PlaneCage(2, 1)
	}
	cases := []struct {
		name string
		mod  func(c *ControlCage)
		want error
	}{
		{
			name: "vertex out of range",
			mod:  func(c *ControlCage) { c.Faces[0][2] = 99 },
			want: ErrVertexOutOfRange,
		},
		{
			name: "face too small",
			mod:  func(c *ControlCage) { c.Faces[0] = []int{0, 1} },
			want: ErrDegenerateFace,
		},
		{
			name: "repeated vertex in face",
			mod:  func(c *ControlCage) { c.Faces[0] = []int{0, 1, 1, 3} },
			want: ErrDegenerateFace,
		},
		{
			name: "edge shared by three faces",
			mod: func(c *ControlCage) {
				c.Vertices = append(c.Vertices, r3.Vec{Z: 1}, r3.Vec{X: 1, Z: 1})
				f := c.Faces[0]
				n := len(c.Vertices)
				c.Faces = append(c.Faces, []int{f[1], f[0], n - 2, n - 1})
				c.Faces = append(c.Faces, []int{f[1], f[0], n - 1, n - 2})
			},
			want: ErrNonManifold,
		},
		{
			name: "inconsistent winding",
			mod: func(c *ControlCage) {
				f := c.Faces[1]
				c.Faces[1] = []int{f[3], f[2], f[1], f[0]}
			},
			want: ErrNonManifold,
		},
		{
			name: "crease off the mesh",
			mod: func(c *ControlCage) {
				c.Creases = []Crease{{V0: 0, V1: 5, Sharpness: 2}}
			},
			want: ErrNonManifold,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := quadStrip()
			tc.mod(&c)
			err := c.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			var te *TopologyError
			if !errors.As(err, &te) {
				t.Fatalf("err %T, want *TopologyError", err)
			}
			if _, err := Build(c); err == nil {
				t.Fatal("Build accepted an invalid cage")
			}
		})
	}
}

func TestValidateRejectsBoundaryExtraordinary(t *testing.T) {
	// Three quads fanned around one boundary vertex: the reflected ring
	// scheme cannot evaluate there.
	c := ControlCage{
		Vertices: []r3.Vec{
			{},
			{X: 1}, {X: 1, Y: 1}, {Y: 1},
			{X: -1, Y: 1}, {X: -1},
			{X: -1, Y: -1}, {Y: -1},
		},
		Faces: [][]int{
			{0, 1, 2, 3},
			{0, 3, 4, 5},
			{0, 5, 6, 7},
		},
	}
	if err := c.Validate(); !errors.Is(err, ErrBoundaryExtraordinary) {
		t.Fatalf("err = %v, want ErrBoundaryExtraordinary", err)
	}
}

func TestCreasedCageEvaluates(t *testing.T) {
	c := CubeCage(1)
	c.Creases = []Crease{
		{V0: 4, V1: 5, Sharpness: 2},
		{V0: 5, V1: 6, Sharpness: 2},
		{V0: 6, V1: 7, Sharpness: 2},
		{V0: 7, V1: 4, Sharpness: 2},
	}
	ev := build(t, c)
	smooth := build(t, CubeCage(1))
	// The creased top rim pulls the limit surface out toward the cage.
	p := ParametricPoint{Face: 1, U: 0.5, V: 0}
	sc, err := ev.Evaluate(p)
	if err != nil {
		t.Fatalf("evaluate creased: %v", err)
	}
	ss, err := smooth.Evaluate(p)
	if err != nil {
		t.Fatalf("evaluate smooth: %v", err)
	}
	if r3.Norm(sc.Position) <= r3.Norm(ss.Position) {
		t.Fatalf("crease did not sharpen rim: |creased|=%g |smooth|=%g",
			r3.Norm(sc.Position), r3.Norm(ss.Position))
	}
}

func TestFingerprint(t *testing.T) {
	a := CubeCage(1)
	b := CubeCage(1)
	if a.fingerprint() != b.fingerprint() {
		t.Fatal("identical cages fingerprint differently")
	}
	b.Vertices[0].X += 1e-9
	if a.fingerprint() == b.fingerprint() {
		t.Fatal("perturbed cage fingerprints equal")
	}
	c := CubeCage(1)
	c.Creases = []Crease{{V0: 0, V1: 1, Sharpness: 1}}
	if a.fingerprint() == c.fingerprint() {
		t.Fatal("creased cage fingerprints equal")
	}
}
