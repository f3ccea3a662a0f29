package subd

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrRefinementBudget is returned when the internal refinement loop cannot
// reach an evaluable topology within its round budget.
var ErrRefinementBudget = errors.New("refinement budget exhausted")

var evaluatorIDs atomic.Uint64

// Evaluator owns the refined topology built from one control cage and
// answers exact limit surface queries. It is read-only after Build:
// concurrent evaluations from any number of goroutines are safe. Building
// twice from the same cage yields fully independent handles.
type Evaluator struct {
	id   uint64
	cage ControlCage

	levels    []*refMesh
	positions [][]r3.Vec
	children  [][][]int
	patches   []patch
	faceNbr   [][]int

	released atomic.Bool

	tessMu    sync.Mutex
	tessLevel int
}

// Build compiles a cage into an evaluator. It fails fast with a typed
// *TopologyError on invalid input and never returns a partial handle.
func Build(cage ControlCage) (*Evaluator, error) {
	if err := cage.Validate(); err != nil {
		return nil, err
	}
	ev := &Evaluator{
		id:        evaluatorIDs.Add(1),
		cage:      copyCage(cage),
		tessLevel: -1,
	}

	rm := newRefMesh(ev.cage)
	pos := append([]r3.Vec(nil), ev.cage.Vertices...)
	ev.levels = append(ev.levels, rm)
	ev.positions = append(ev.positions, pos)

	for round := 0; !rm.evalReady(); round++ {
		if round >= maxRefinements {
			return nil, &TopologyError{Face: -1, Err: ErrRefinementBudget}
		}
		child, stencils, kids := rm.refine()
		childPos := make([]r3.Vec, child.numVerts)
		for i, st := range stencils {
			childPos[i] = st.apply(pos)
		}
		ev.children = append(ev.children, kids)
		ev.levels = append(ev.levels, child)
		ev.positions = append(ev.positions, childPos)
		rm, pos = child, childPos
	}

	if err := ev.buildPatches(); err != nil {
		return nil, err
	}
	ev.buildFaceNeighbors()
	return ev, nil
}

func copyCage(c ControlCage) ControlCage {
	out := ControlCage{
		Vertices: append([]r3.Vec(nil), c.Vertices...),
		Faces:    make([][]int, len(c.Faces)),
		Creases:  append([]Crease(nil), c.Creases...),
	}
	for i, f := range c.Faces {
		out.Faces[i] = append([]int(nil), f...)
	}
	return out
}

// evalReady reports whether every face is a smooth quad patch with at most
// one isolated extraordinary corner.
func (rm *refMesh) evalReady() bool {
	for _, e := range rm.edgeList {
		if e.sharp > 0 {
			return false
		}
	}
	for fi, f := range rm.faces {
		if len(f) != 4 {
			return false
		}
		irr := -1
		for i, vi := range f {
			if !rm.regularVert(vi) {
				if irr >= 0 {
					return false
				}
				irr = i
			}
		}
		if irr >= 0 && !rm.ringClean(fi, irr) {
			return false
		}
	}
	return true
}

// ringClean reports whether the extraordinary patch ring of face fi is
// supported: the EV is interior and every other vertex of every face
// touching the patch corners is regular.
func (rm *refMesh) ringClean(fi, evCorner int) bool {
	f := rm.faces[fi]
	ev := f[evCorner]
	if rm.boundary[ev] {
		return false
	}
	for _, vi := range f {
		for _, fc := range rm.vertFaces[vi] {
			for _, w := range rm.faces[fc.face] {
				if w != ev && !rm.regularVert(w) {
					return false
				}
			}
		}
	}
	return true
}

func (ev *Evaluator) buildPatches() error {
	top := ev.topMesh()
	pos := ev.positions[len(ev.positions)-1]
	ev.patches = make([]patch, len(top.faces))
	for fi, f := range top.faces {
		irr := -1
		for i, vi := range f {
			if !top.regularVert(vi) {
				irr = i
			}
		}
		p := &ev.patches[fi]
		if irr < 0 {
			p.kind = patchRegular
			g := top.gather16(fi, [4]int{f[0], f[1], f[2], f[3]})
			p.grid = resolve16(g, pos)
			continue
		}
		ring, n := top.evRing(fi, irr)
		if ring == nil {
			return &TopologyError{Face: fi, Err: ErrNonManifold}
		}
		ep, err := eigenPatchFor(n)
		if err != nil {
			return fmt.Errorf("build patch for face %d: %w", fi, err)
		}
		rp := resolveEVRing(ring, n, pos)
		p.kind = patchExtraordinary
		p.rot = irr
		p.eig = ep
		p.cp = ep.project(rp)
		p.refNormal = fanNormal(rp, n)
	}
	return nil
}

// fanNormal estimates the outward normal at an EV from its control fan,
// used only to orient the eigenvector tangent frame.
func fanNormal(ring []r3.Vec, n int) r3.Vec {
	evp := ring[0]
	var sum r3.Vec
	for i := 0; i < n; i++ {
		a := ring[1+2*i]
		b := ring[1+2*((i+1)%n)]
		sum = r3.Add(sum, r3.Cross(r3.Sub(a, evp), r3.Sub(b, evp)))
	}
	return sum
}

func (ev *Evaluator) buildFaceNeighbors() {
	rm := ev.levels[0]
	nbr := make([][]int, len(rm.faces))
	for fi, f := range rm.faces {
		seen := map[int]bool{}
		for i := range f {
			of := rm.otherFace(f[i], f[(i+1)%len(f)], fi)
			if of >= 0 && !seen[of] {
				seen[of] = true
				nbr[fi] = append(nbr[fi], of)
			}
		}
		sort.Ints(nbr[fi])
	}
	ev.faceNbr = nbr
}

func (ev *Evaluator) topMesh() *refMesh { return ev.levels[len(ev.levels)-1] }

// ID identifies this handle. Result caches key on it.
func (ev *Evaluator) ID() uint64 { return ev.id }

// NumFaces returns the number of control cage faces, the valid range of
// ParametricPoint.Face.
func (ev *Evaluator) NumFaces() int { return len(ev.cage.Faces) }

// FaceNeighbors returns the cage faces sharing an edge with face, sorted
// ascending. The slice is owned by the evaluator; callers must not mutate.
func (ev *Evaluator) FaceNeighbors(face int) []int {
	if face < 0 || face >= len(ev.faceNbr) {
		return nil
	}
	return ev.faceNbr[face]
}

// Release marks the handle destroyed. Later evaluations fail with
// ErrHandleReleased instead of returning stale data.
func (ev *Evaluator) Release() { ev.released.Store(true) }

// lookup descends from a cage face parameter to the top-level patch,
// accumulating the affine parameter map.
func (ev *Evaluator) lookup(p ParametricPoint) (*patch, float64, float64, affine2, error) {
	if ev.released.Load() {
		return nil, 0, 0, identity2, ErrHandleReleased
	}
	if p.Face < 0 || p.Face >= len(ev.cage.Faces) {
		return nil, 0, 0, identity2, evalErrorf(p, "face index out of range [0,%d)", len(ev.cage.Faces))
	}
	if math.IsNaN(p.U) || math.IsNaN(p.V) || p.U < 0 || p.U > 1 || p.V < 0 || p.V > 1 {
		return nil, 0, 0, identity2, evalErrorf(p, "u,v outside [0,1]")
	}
	u, v := p.U, p.V
	m := identity2
	face := p.Face
	level := 0
	if n := len(ev.cage.Faces[face]); n != 4 {
		// N-gon faces address their corner quads through u sectors.
		s := int(u * float64(n))
		if s == n {
			s = n - 1
		}
		u = u*float64(n) - float64(s)
		m = affine2{{float64(n), 0}, {0, 1}}
		face = ev.children[0][face][s]
		level = 1
	}
	for ; level < len(ev.children); level++ {
		q := quadrantFor(u, v)
		face = ev.children[level][face][q]
		u, v = quadrantMaps[q](u, v)
		m = quadrantJacobians[q].compose(m)
	}
	pt := &ev.patches[face]
	if pt.rot != 0 {
		u, v = rotationMaps[pt.rot](u, v)
		m = rotationJacobians[pt.rot].compose(m)
	}
	return pt, clamp(u, 0, 1), clamp(v, 0, 1), m, nil
}

// Evaluate returns the exact limit position and unit normal at p.
func (ev *Evaluator) Evaluate(p ParametricPoint) (Sample, error) {
	pt, u, v, _, err := ev.lookup(p)
	if err != nil {
		return Sample{}, err
	}
	d, _ := pt.evalLocal(u, v)
	n := r3.Cross(d.Du, d.Dv)
	nn := r3.Norm(n)
	if nn < epsilon || !isFinite(d.Position) {
		return Sample{}, evalErrorf(p, "degenerate surface frame")
	}
	return Sample{Position: d.Position, Normal: r3.Scale(1/nn, n)}, nil
}

// EvaluateWithDerivatives returns position and first parametric derivatives
// with respect to the cage face parameters.
func (ev *Evaluator) EvaluateWithDerivatives(p ParametricPoint) (Derivatives, error) {
	pt, u, v, m, err := ev.lookup(p)
	if err != nil {
		return Derivatives{}, err
	}
	d, _ := pt.evalLocal(u, v)
	d = chainRule(d, m)
	return Derivatives{Position: d.Position, Du: d.Du, Dv: d.Dv}, nil
}

// EvaluateWithSecondDerivatives additionally returns the three second
// derivatives. Exactly at an extraordinary corner the second derivatives are
// unbounded and a typed error is returned instead.
func (ev *Evaluator) EvaluateWithSecondDerivatives(p ParametricPoint) (SecondDerivatives, error) {
	pt, u, v, m, err := ev.lookup(p)
	if err != nil {
		return SecondDerivatives{}, err
	}
	d, atEV := pt.evalLocal(u, v)
	if atEV {
		return SecondDerivatives{}, evalErrorf(p, "second derivatives unbounded at extraordinary vertex")
	}
	return chainRule(d, m), nil
}

func isFinite(v r3.Vec) bool {
	return !math.IsInf(v.X, 0) && !math.IsNaN(v.X) &&
		!math.IsInf(v.Y, 0) && !math.IsNaN(v.Y) &&
		!math.IsInf(v.Z, 0) && !math.IsNaN(v.Z)
}
