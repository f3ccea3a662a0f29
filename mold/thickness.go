package mold

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/moldwright/subd"
	"github.com/moldwright/subd/lens"
)

// opposeDot is how anti-parallel a neighbor normal must be to count as the
// far side of a wall.
const opposeDot = -0.3

// CheckThickness estimates local wall thickness at each region sample as
// the distance to the nearest surface sample whose normal opposes it, and
// flags estimates under minThickness. Samples with no opposing wall nearby
// are treated as thick. This is a coarse screening heuristic, not a medial
// axis computation.
func (v *Validator) CheckThickness(ev *subd.Evaluator, region *lens.Region, minThickness float64) (*Report, error) {
	if minThickness <= 0 {
		return nil, &ConstraintInputError{Reason: "non-positive minimum thickness"}
	}
	if region == nil || len(region.Faces) == 0 {
		return nil, &ConstraintInputError{Reason: "empty region"}
	}
	mesh, err := ev.SampleMesh(v.SampleDensity)
	if err != nil {
		return nil, err
	}

	pts := make(wallPoints, len(mesh.Positions))
	for i := range mesh.Positions {
		pts[i] = wallPoint{pos: mesh.Positions[i], normal: mesh.Normals[i]}
	}
	tree := kdtree.New(pts, true)

	inRegion := make(map[int]bool, len(region.Faces))
	for _, f := range region.Faces {
		inRegion[f] = true
	}
	memberVert := make(map[int]bool)
	for ti, tri := range mesh.Tris {
		if inRegion[mesh.TriFace[ti]] {
			for _, vi := range tri {
				memberVert[vi] = true
			}
		}
	}

	rep := &Report{Region: region.ID, Check: "thickness"}
	// Any opposing wall past twice the minimum cannot produce a violation,
	// so the search radius stays proportional to it rather than tied to a
	// fixed neighbor count the mesh density could outgrow.
	radius := 2 * minThickness
	for vi := range mesh.Positions {
		if !memberVert[vi] {
			continue
		}
		rep.Checked++
		th := v.thicknessAt(tree, pts[vi], radius)
		if th < minThickness {
			rep.Violations = append(rep.Violations, Violation{
				Point:    mesh.Params[vi],
				Position: mesh.Positions[vi],
				AngleDeg: th,
			})
		}
	}
	rep.finish()
	return rep, nil
}

// thicknessAt finds the nearest opposing-normal sample within radius of the
// query point. No opposing sample in range means the wall is thicker than
// the search radius.
func (v *Validator) thicknessAt(tree *kdtree.Tree, q wallPoint, radius float64) float64 {
	// wallPoint distances are squared, so the keeper bound is too.
	keep := kdtree.NewDistKeeper(radius * radius)
	tree.NearestSet(keep, q)
	best := math.Inf(1)
	for _, cd := range keep.Heap {
		p, ok := cd.Comparable.(wallPoint)
		if !ok {
			continue
		}
		d := math.Sqrt(cd.Dist)
		if d < 1e-9 || d >= best {
			continue
		}
		if r3.Dot(p.normal, q.normal) < opposeDot {
			best = d
		}
	}
	return best
}

// wallPoint is one surface sample in the thickness kd-tree.
type wallPoint struct {
	pos    r3.Vec
	normal r3.Vec
}

func (p wallPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(wallPoint)
	switch d {
	case 0:
		return p.pos.X - q.pos.X
	case 1:
		return p.pos.Y - q.pos.Y
	case 2:
		return p.pos.Z - q.pos.Z
	}
	panic("unreachable")
}

func (p wallPoint) Dims() int { return 3 }

func (p wallPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(wallPoint)
	return r3.Norm2(r3.Sub(p.pos, q.pos))
}

type wallPoints []wallPoint

func (w wallPoints) Index(i int) kdtree.Comparable { return w[i] }

func (w wallPoints) Len() int { return len(w) }

func (w wallPoints) Pivot(d kdtree.Dim) int {
	p := wallPlane{dim: int(d), points: w}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

func (w wallPoints) Slice(start, end int) kdtree.Interface { return w[start:end] }

type wallPlane struct {
	dim    int
	points wallPoints
}

func (p wallPlane) Less(i, j int) bool {
	return p.points[i].Compare(p.points[j], kdtree.Dim(p.dim)) < 0
}

func (p wallPlane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

func (p wallPlane) Len() int { return len(p.points) }

func (p wallPlane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
