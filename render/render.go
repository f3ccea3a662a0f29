// Package render turns tessellated limit surfaces into display meshes and
// STL output. Everything here is display-only: analysis never reads back
// from these triangles.
package render

import (
	"io"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/moldwright/subd"
	"github.com/moldwright/subd/internal/d3"
)

// Triangle3 is a display triangle.
type Triangle3 struct {
	V [3]r3.Vec
}

// Normal returns the triangle's normal from its winding. It is not unit
// length for degenerate triangles.
func (t Triangle3) Normal() r3.Vec {
	return r3.Unit(r3.Cross(r3.Sub(t.V[1], t.V[0]), r3.Sub(t.V[2], t.V[0])))
}

// Renderer produces triangles in chunks until io.EOF.
type Renderer interface {
	ReadTriangles(t []Triangle3) (int, error)
}

// LimitSurface streams the display tessellation of an evaluator handle.
// The tessellation runs once at construction; ReadTriangles drains it.
type LimitSurface struct {
	buf triangle3Buffer
}

// NewLimitSurface tessellates the evaluator at the given level. The level
// locks the handle as usual; use a subd.Builder for several levels.
func NewLimitSurface(ev *subd.Evaluator, level int) (*LimitSurface, error) {
	tris, err := ev.Tessellate(level)
	if err != nil {
		return nil, err
	}
	ls := &LimitSurface{}
	conv := make([]Triangle3, len(tris))
	for i, tr := range tris {
		conv[i] = Triangle3{V: tr}
	}
	ls.buf.Write(conv)
	return ls, nil
}

// ReadTriangles implements Renderer.
func (ls *LimitSurface) ReadTriangles(t []Triangle3) (int, error) {
	if ls.buf.Len() == 0 {
		return 0, io.EOF
	}
	return ls.buf.Read(t), nil
}

// Bounds returns the axis-aligned bounding box of a display mesh.
func Bounds(tris []Triangle3) d3.Box {
	box := d3.EmptyBox()
	for _, tr := range tris {
		for _, v := range tr.V {
			box = box.Include(v)
		}
	}
	return box
}
