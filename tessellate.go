package subd

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrLevelLocked is returned when Tessellate is called with a level other
// than the one the handle is already refined for. The underlying topology
// refines once per build; use a Builder to obtain a handle per level.
var ErrLevelLocked = errors.New("handle already refined at a different level")

// Tessellate samples the limit surface into a display triangle mesh. Each
// quad face becomes a (2^level)^2 grid of sampled quads, n-gon faces one
// grid per corner sector. The result is for display only: analysis always
// goes through the evaluator queries, never through these triangles.
//
// A handle tessellates at exactly one level. The first call locks the
// level; calls with a different level fail with ErrLevelLocked.
func (ev *Evaluator) Tessellate(level int) ([]r3.Triangle, error) {
	if ev.released.Load() {
		return nil, ErrHandleReleased
	}
	if level < 0 || level > 8 {
		return nil, fmt.Errorf("tessellate: level %d outside [0,8]", level)
	}
	if err := ev.lockTessLevel(level); err != nil {
		return nil, err
	}
	res := 1 << uint(level)
	var tris []r3.Triangle
	for fi, f := range ev.cage.Faces {
		sectors := 1
		if len(f) != 4 {
			sectors = len(f)
		}
		for s := 0; s < sectors; s++ {
			t, err := ev.tessellateSector(fi, s, sectors, res)
			if err != nil {
				return nil, err
			}
			tris = append(tris, t...)
		}
	}
	return tris, nil
}

func (ev *Evaluator) lockTessLevel(level int) error {
	ev.tessMu.Lock()
	defer ev.tessMu.Unlock()
	if ev.tessLevel >= 0 && ev.tessLevel != level {
		return fmt.Errorf("tessellate at level %d: %w (locked at %d)", level, ErrLevelLocked, ev.tessLevel)
	}
	ev.tessLevel = level
	return nil
}

func (ev *Evaluator) tessellateSector(face, sector, sectors, res int) ([]r3.Triangle, error) {
	pts := make([]ParametricPoint, 0, (res+1)*(res+1))
	for i := 0; i <= res; i++ {
		for j := 0; j <= res; j++ {
			u := (float64(sector) + float64(i)/float64(res)) / float64(sectors)
			v := float64(j) / float64(res)
			pts = append(pts, ParametricPoint{Face: face, U: u, V: v})
		}
	}
	samples, err := ev.BatchEvaluate(pts)
	if err != nil {
		return nil, err
	}
	at := func(i, j int) r3.Vec { return samples[i*(res+1)+j].Position }
	tris := make([]r3.Triangle, 0, 2*res*res)
	for i := 0; i < res; i++ {
		for j := 0; j < res; j++ {
			a, b, c, d := at(i, j), at(i+1, j), at(i+1, j+1), at(i, j+1)
			tris = append(tris, r3.Triangle{a, b, c}, r3.Triangle{a, c, d})
		}
	}
	return tris, nil
}

// SampledMesh is a welded triangulation of exact limit samples, the input
// representation for the spectral operator and the mold validator. It is an
// analysis product, independent from display tessellation.
type SampledMesh struct {
	Positions []r3.Vec
	Normals   []r3.Vec
	// Params maps each mesh vertex back to cage face parameters.
	Params []ParametricPoint
	Tris   [][3]int
	// TriFace is the originating cage face per triangle.
	TriFace []int
}

// sampleKey identifies welded sample vertices: kind 0 keys cage-level quad
// vertices, kind 1 edge samples (edge id plus step), kind 2 face interior.
type sampleKey struct {
	kind       uint8
	a, b, i, j int
}

// SampleMesh evaluates the limit surface on a density x density grid per
// quadrangulated face and welds shared boundary samples into one mesh.
func (ev *Evaluator) SampleMesh(density int) (*SampledMesh, error) {
	if ev.released.Load() {
		return nil, ErrHandleReleased
	}
	if density < 1 || density > 64 {
		return nil, fmt.Errorf("sample mesh: density %d outside [1,64]", density)
	}
	qm, toOrig := ev.quadLevel()
	d := density

	sm := &SampledMesh{}
	index := make(map[sampleKey]int)
	var params []ParametricPoint
	vertexID := func(key sampleKey, p ParametricPoint) int {
		if id, ok := index[key]; ok {
			return id
		}
		id := len(params)
		index[key] = id
		params = append(params, p)
		return id
	}

	for qf, f := range qm.faces {
		orig := toOrig[qf]
		grid := make([]int, (d+1)*(d+1))
		for i := 0; i <= d; i++ {
			for j := 0; j <= d; j++ {
				uc := float64(i) / float64(d)
				vc := float64(j) / float64(d)
				pp := ParametricPoint{Face: orig.face}
				pp.U, pp.V = orig.mapUV(uc, vc)
				grid[i*(d+1)+j] = vertexID(ev.quadSampleKey(qm, qf, f, i, j, d), pp)
			}
		}
		for i := 0; i < d; i++ {
			for j := 0; j < d; j++ {
				a := grid[i*(d+1)+j]
				b := grid[(i+1)*(d+1)+j]
				c := grid[(i+1)*(d+1)+j+1]
				e := grid[i*(d+1)+j+1]
				sm.Tris = append(sm.Tris, [3]int{a, b, c}, [3]int{a, c, e})
				sm.TriFace = append(sm.TriFace, orig.face, orig.face)
			}
		}
	}

	samples, err := ev.BatchEvaluate(params)
	if err != nil {
		return nil, err
	}
	sm.Params = params
	sm.Positions = make([]r3.Vec, len(samples))
	sm.Normals = make([]r3.Vec, len(samples))
	for i, s := range samples {
		sm.Positions[i] = s.Position
		sm.Normals[i] = s.Normal
	}
	return sm, nil
}

// quadSampleKey classifies grid node (i,j) of quad face qf as corner, edge
// or interior so shared samples weld to one vertex.
func (ev *Evaluator) quadSampleKey(qm *refMesh, qf int, f []int, i, j, d int) sampleKey {
	onU0, onU1 := i == 0, i == d
	onV0, onV1 := j == 0, j == d
	switch {
	case onU0 && onV0:
		return sampleKey{kind: 0, a: f[0]}
	case onU1 && onV0:
		return sampleKey{kind: 0, a: f[1]}
	case onU1 && onV1:
		return sampleKey{kind: 0, a: f[2]}
	case onU0 && onV1:
		return sampleKey{kind: 0, a: f[3]}
	case onV0:
		return edgeSampleKey(f[0], f[1], i, d)
	case onU1:
		return edgeSampleKey(f[1], f[2], j, d)
	case onV1:
		return edgeSampleKey(f[3], f[2], i, d)
	case onU0:
		return edgeSampleKey(f[0], f[3], j, d)
	default:
		return sampleKey{kind: 2, a: qf, i: i, j: j}
	}
}

// edgeSampleKey canonicalizes an edge sample: step counts from the lower
// vertex index.
func edgeSampleKey(from, to, step, d int) sampleKey {
	if from > to {
		from, to = to, from
		step = d - step
	}
	return sampleKey{kind: 1, a: from, b: to, i: step}
}

// origRef maps a quadrangulated face back into its cage face parameters.
type origRef struct {
	face    int
	corner  int
	sectors int
	direct  bool
}

func (o origRef) mapUV(uc, vc float64) (u, v float64) {
	if o.direct {
		return uc, vc
	}
	if o.sectors != 4 || o.corner >= 4 {
		// N-gon sector: child corner quads in sector order.
		return (float64(o.corner) + uc) / float64(o.sectors), vc
	}
	switch o.corner {
	case 0:
		return uc / 2, vc / 2
	case 1:
		return 1 - vc/2, uc / 2
	case 2:
		return 1 - uc/2, 1 - vc/2
	default:
		return vc / 2, 1 - uc/2
	}
}

// quadLevel picks the first all-quad refinement level and its face mapping
// back to cage faces.
func (ev *Evaluator) quadLevel() (*refMesh, []origRef) {
	if allQuads(ev.levels[0]) {
		refs := make([]origRef, len(ev.levels[0].faces))
		for i := range refs {
			refs[i] = origRef{face: i, direct: true}
		}
		return ev.levels[0], refs
	}
	qm := ev.levels[1]
	refs := make([]origRef, len(qm.faces))
	for fi, f := range ev.levels[0].faces {
		for c, child := range ev.children[0][fi] {
			refs[child] = origRef{face: fi, corner: c, sectors: len(f)}
		}
	}
	return qm, refs
}

func allQuads(rm *refMesh) bool {
	for _, f := range rm.faces {
		if len(f) != 4 {
			return false
		}
	}
	return true
}
