package subd

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// faceCorner locates one use of a vertex: face index plus corner slot.
type faceCorner struct {
	face   int
	corner int
}

// edgeInfo records the one or two faces sharing an edge and its crease
// sharpness. faces[1] is -1 for boundary edges.
type edgeInfo struct {
	v0, v1 int
	faces  [2]int
	sharp  float64
}

// refMesh is one topology level of the refinement chain. It is connectivity
// only; positions live with the evaluator so the same stencil machinery can
// run on basis vectors when deriving eigenpatch matrices.
type refMesh struct {
	faces    [][]int
	numVerts int

	edgeList []edgeInfo
	edgeIdx  map[[2]int]int
	// vertFaces lists incident faces per vertex, vertEdges the unique
	// neighboring vertices.
	vertFaces [][]faceCorner
	vertEdges [][]int
	boundary  []bool
}

// stencilTerm is one weighted reference to a parent-level vertex.
type stencilTerm struct {
	idx int
	w   float64
}

type stencil []stencilTerm

// newRefMesh indexes a control cage, carrying crease sharpness onto edges.
func newRefMesh(c ControlCage) *refMesh {
	rm := buildRefMesh(c.Faces, len(c.Vertices))
	for _, cr := range c.Creases {
		if i, ok := rm.edgeIdx[edgeKey(cr.V0, cr.V1)]; ok {
			rm.edgeList[i].sharp = clamp(cr.Sharpness, 0, maxSharpness)
		}
	}
	return rm
}

// buildRefMesh derives adjacency for a face list. Edge order is the order of
// first appearance while walking faces, which keeps every derived table
// deterministic.
func buildRefMesh(faces [][]int, numVerts int) *refMesh {
	rm := &refMesh{
		faces:     faces,
		numVerts:  numVerts,
		edgeIdx:   make(map[[2]int]int),
		vertFaces: make([][]faceCorner, numVerts),
		vertEdges: make([][]int, numVerts),
		boundary:  make([]bool, numVerts),
	}
	for fi, f := range faces {
		for i, vi := range f {
			rm.vertFaces[vi] = append(rm.vertFaces[vi], faceCorner{face: fi, corner: i})
			a, b := vi, f[(i+1)%len(f)]
			k := edgeKey(a, b)
			ei, ok := rm.edgeIdx[k]
			if !ok {
				ei = len(rm.edgeList)
				rm.edgeIdx[k] = ei
				rm.edgeList = append(rm.edgeList, edgeInfo{v0: k[0], v1: k[1], faces: [2]int{fi, -1}})
			} else {
				rm.edgeList[ei].faces[1] = fi
			}
		}
	}
	for ei := range rm.edgeList {
		e := &rm.edgeList[ei]
		rm.vertEdges[e.v0] = append(rm.vertEdges[e.v0], e.v1)
		rm.vertEdges[e.v1] = append(rm.vertEdges[e.v1], e.v0)
		if e.faces[1] < 0 {
			rm.boundary[e.v0] = true
			rm.boundary[e.v1] = true
		}
	}
	return rm
}

func (rm *refMesh) edge(a, b int) *edgeInfo {
	if i, ok := rm.edgeIdx[edgeKey(a, b)]; ok {
		return &rm.edgeList[i]
	}
	return nil
}

// otherFace returns the face across edge (a,b) from face fi, or -1.
func (rm *refMesh) otherFace(a, b, fi int) int {
	e := rm.edge(a, b)
	if e == nil {
		return -1
	}
	if e.faces[0] == fi {
		return e.faces[1]
	}
	return e.faces[0]
}

// valence returns the number of edges incident to vertex vi.
func (rm *refMesh) valence(vi int) int { return len(rm.vertEdges[vi]) }

// regularVert reports whether vi needs no eigenpatch treatment: interior
// valence 4, or a boundary vertex with at most two incident faces.
func (rm *refMesh) regularVert(vi int) bool {
	if rm.boundary[vi] {
		return len(rm.vertFaces[vi]) <= 2
	}
	return rm.valence(vi) == 4
}

// sharpEdgeCount counts incident edges that behave sharp this round:
// boundary edges and creases with sharpness >= 1. sum accumulates the
// sharpness of semisharp incident edges for rule blending.
func (rm *refMesh) sharpEdges(vi int) (sharpEnds []int, blend float64) {
	n := 0
	for _, nb := range rm.vertEdges[vi] {
		e := rm.edge(vi, nb)
		if e.faces[1] < 0 {
			sharpEnds = append(sharpEnds, nb)
			blend += 1
			n++
		} else if e.sharp > 0 {
			sharpEnds = append(sharpEnds, nb)
			blend += clamp(e.sharp, 0, 1)
			n++
		}
	}
	if n > 0 {
		blend /= float64(n)
	}
	return sharpEnds, blend
}

// refine performs one Catmull-Clark round. It returns the child mesh, one
// stencil per child vertex expressed over parent vertices, and the child
// face ids per parent face corner. Child vertex order is face points, then
// edge points, then vertex points.
func (rm *refMesh) refine() (child *refMesh, stencils []stencil, children [][]int) {
	nf := len(rm.faces)
	ne := len(rm.edgeList)
	facePt := func(f int) int { return f }
	edgePt := func(e int) int { return nf + e }
	vertPt := func(v int) int { return nf + ne + v }

	stencils = make([]stencil, nf+ne+rm.numVerts)

	// Face points: centroid of the face.
	for fi, f := range rm.faces {
		st := make(stencil, 0, len(f))
		w := 1 / float64(len(f))
		for _, vi := range f {
			st = append(st, stencilTerm{idx: vi, w: w})
		}
		stencils[facePt(fi)] = st
	}

	// Edge points.
	for ei := range rm.edgeList {
		e := &rm.edgeList[ei]
		sharp := stencil{{e.v0, 0.5}, {e.v1, 0.5}}
		if e.faces[1] < 0 || e.sharp >= 1 {
			stencils[edgePt(ei)] = sharp
			continue
		}
		smooth := stencil{{e.v0, 0.25}, {e.v1, 0.25}}
		smooth = append(smooth, scaleStencil(stencils[facePt(e.faces[0])], 0.25)...)
		smooth = append(smooth, scaleStencil(stencils[facePt(e.faces[1])], 0.25)...)
		if e.sharp > 0 {
			stencils[edgePt(ei)] = lerpStencil(smooth, sharp, e.sharp)
		} else {
			stencils[edgePt(ei)] = mergeStencil(smooth)
		}
	}

	// Vertex points.
	for vi := 0; vi < rm.numVerts; vi++ {
		sharpEnds, blend := rm.sharpEdges(vi)
		var rule stencil
		switch {
		case len(sharpEnds) >= 3:
			rule = stencil{{vi, 1}}
		case len(sharpEnds) == 2:
			crease := stencil{{vi, 0.75}, {sharpEnds[0], 0.125}, {sharpEnds[1], 0.125}}
			if rm.boundary[vi] || blend >= 1 {
				rule = crease
			} else {
				rule = lerpStencil(rm.smoothVertexStencil(vi, stencils), crease, blend)
			}
		default:
			rule = rm.smoothVertexStencil(vi, stencils)
		}
		stencils[vertPt(vi)] = rule
	}

	// Child faces: one quad per parent face corner.
	children = make([][]int, nf)
	var faces [][]int
	for fi, f := range rm.faces {
		k := len(f)
		children[fi] = make([]int, k)
		for i, vi := range f {
			eNext := rm.edgeIdx[edgeKey(vi, f[(i+1)%k])]
			ePrev := rm.edgeIdx[edgeKey(f[(i-1+k)%k], vi)]
			children[fi][i] = len(faces)
			faces = append(faces, []int{vertPt(vi), edgePt(eNext), facePt(fi), edgePt(ePrev)})
		}
	}

	child = buildRefMesh(faces, nf+ne+rm.numVerts)
	// Decremented crease sharpness onto the two child halves of each edge.
	for ei := range rm.edgeList {
		e := &rm.edgeList[ei]
		if e.sharp <= 1 {
			continue
		}
		s := e.sharp - 1
		for _, end := range [2]int{e.v0, e.v1} {
			if ci, ok := child.edgeIdx[edgeKey(vertPt(end), edgePt(ei))]; ok {
				child.edgeList[ci].sharp = s
			}
		}
	}
	return child, stencils, children
}

// smoothVertexStencil is the interior Catmull-Clark vertex rule
// ((n-2)/n)v + (1/n)avg(neighbors) + (1/n)avg(face points).
func (rm *refMesh) smoothVertexStencil(vi int, stencils []stencil) stencil {
	n := float64(rm.valence(vi))
	st := stencil{{vi, (n - 2) / n}}
	wn := 1 / (n * n)
	for _, nb := range rm.vertEdges[vi] {
		st = append(st, stencilTerm{idx: nb, w: wn})
	}
	wf := 1 / (n * float64(len(rm.vertFaces[vi])))
	for _, fc := range rm.vertFaces[vi] {
		st = append(st, scaleStencil(stencils[fc.face], wf)...)
	}
	return mergeStencil(st)
}

func scaleStencil(st stencil, k float64) stencil {
	out := make(stencil, len(st))
	for i, t := range st {
		out[i] = stencilTerm{idx: t.idx, w: t.w * k}
	}
	return out
}

// mergeStencil sums duplicate vertex references, keeping first-seen order.
func mergeStencil(st stencil) stencil {
	pos := make(map[int]int, len(st))
	out := st[:0:0]
	for _, t := range st {
		if j, ok := pos[t.idx]; ok {
			out[j].w += t.w
			continue
		}
		pos[t.idx] = len(out)
		out = append(out, t)
	}
	return out
}

// lerpStencil blends two stencils: (1-t)a + t*b.
func lerpStencil(a, b stencil, t float64) stencil {
	t = clamp(t, 0, 1)
	out := scaleStencil(a, 1-t)
	out = append(out, scaleStencil(b, t)...)
	return mergeStencil(out)
}

// apply evaluates a stencil against parent positions.
func (st stencil) apply(pos []r3.Vec) r3.Vec {
	var p r3.Vec
	for _, t := range st {
		p = r3.Add(p, r3.Scale(t.w, pos[t.idx]))
	}
	return p
}

// applyBasis evaluates a stencil against parent basis rows of width k,
// accumulating into dst (len k).
func (st stencil) applyBasis(rows [][]float64, dst []float64) {
	for _, t := range st {
		row := rows[t.idx]
		if row == nil {
			continue
		}
		for j, x := range row {
			dst[j] += t.w * x
		}
	}
}
