package render

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fogleman/fauxgl"
	"github.com/nfnt/resize"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/moldwright/subd"
)

func TestLimitSurfaceStreamsTessellation(t *testing.T) {
	ev, err := subd.Build(subd.CubeCage(1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer ev.Release()

	ls, err := NewLimitSurface(ev, 2)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	tris, err := RenderAll(ls)
	if err != nil {
		t.Fatalf("render all: %v", err)
	}
	// 6 faces, 4^2 cells each, 2 triangles per cell.
	if want := 6 * 16 * 2; len(tris) != want {
		t.Fatalf("got %d triangles, want %d", len(tris), want)
	}
	for i, tr := range tris {
		n := tr.Normal()
		if r3.Norm(n) == 0 {
			t.Fatalf("triangle %d degenerate", i)
		}
	}
}

func TestSTLRoundTrip(t *testing.T) {
	ev, err := subd.Build(subd.SphereCage(1, 1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer ev.Release()
	ls, err := NewLimitSurface(ev, 1)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	tris, err := RenderAll(ls)
	if err != nil {
		t.Fatalf("render all: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteSTL(&buf, tris); err != nil {
		t.Fatalf("write stl: %v", err)
	}
	back, err := readBinarySTL(&buf)
	if err != nil {
		t.Fatalf("read stl: %v", err)
	}
	if len(back) != len(tris) {
		t.Fatalf("round trip lost triangles: %d != %d", len(back), len(tris))
	}
}

func TestCreateSTLAndSnapshot(t *testing.T) {
	ev, err := subd.Build(subd.SphereCage(1, 2))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer ev.Release()
	ls, err := NewLimitSurface(ev, 2)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}

	dir := t.TempDir()
	stlPath := filepath.Join(dir, "sphere.stl")
	if err := CreateSTL(stlPath, ls); err != nil {
		t.Fatalf("create stl: %v", err)
	}
	fi, err := os.Stat(stlPath)
	if err != nil || fi.Size() <= 84 {
		t.Fatalf("stl file missing or empty: %v", err)
	}
	// Visualization just in case; no golden comparison.
	stlToPNG(t, stlPath, filepath.Join(dir, "sphere.png"))
}

func stlToPNG(t testing.TB, stlName, outputname string) {
	mesh, err := fauxgl.LoadSTL(stlName)
	if err != nil {
		t.Fatal(err)
	}
	const (
		width, height = 960, 540
		fovy          = 30
	)
	var (
		eye    = fauxgl.V(3, 3, 3)
		center = fauxgl.V(0, 0, 0)
		up     = fauxgl.V(0, 0, 1)
		light  = fauxgl.V(-0.75, 1, 0.25).Normalize()
	)
	mesh.BiUnitCube()
	context := fauxgl.NewContext(width, height)
	context.ClearColorBufferWith(fauxgl.HexColor("#FFF8E3"))
	aspect := float64(width) / float64(height)
	matrix := fauxgl.LookAt(eye, center, up).Perspective(fovy, aspect, 1, 10)
	shader := fauxgl.NewPhongShader(matrix, light, eye)
	shader.ObjectColor = fauxgl.HexColor("#468966")
	context.Shader = shader
	context.DrawMesh(mesh)
	image := resize.Resize(width/2, height/2, context.Image(), resize.Bilinear)
	if err := fauxgl.SavePNG(outputname, image); err != nil {
		t.Fatal(err)
	}
}
