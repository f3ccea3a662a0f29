package subd

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Patch gathering on an eval-ready quad mesh. Regular patches collect the
// usual 4x4 bicubic grid; patches with one extraordinary corner collect the
// 2N+8 control ring whose subdivision eigenstructure drives evaluation.
//
// Index gathers return -1 for control points beyond an open boundary; the
// position resolvers replace those with reflected phantom points, which
// extends the surface with natural spline end conditions.

// cornerOf returns the slot of vertex v in face f, or -1.
func cornerOf(f []int, v int) int {
	for i, vi := range f {
		if vi == v {
			return i
		}
	}
	return -1
}

// acrossEdge locates the two control points behind directed edge (a,b) of
// face fi: the vertex beyond a and the vertex beyond b in the neighbor quad.
func (rm *refMesh) acrossEdge(a, b, fi int) (beyondA, beyondB, nb int) {
	nb = rm.otherFace(a, b, fi)
	if nb < 0 {
		return -1, -1, -1
	}
	f := rm.faces[nb]
	k := cornerOf(f, b)
	if k < 0 || f[(k+1)%4] != a {
		// Inconsistent winding between the two faces.
		return -1, -1, -1
	}
	return f[(k+2)%4], f[(k+3)%4], nb
}

// diagVertex finds the control point across corner vertex v of face fi,
// where near1 and near2 are the faces already known to touch v. Returns -1
// when the diagonal face does not exist (boundary corner).
func (rm *refMesh) diagVertex(v, fi, near1, near2 int) int {
	for _, fc := range rm.vertFaces[v] {
		if fc.face == fi || fc.face == near1 || fc.face == near2 {
			continue
		}
		f := rm.faces[fc.face]
		return f[(fc.corner+2)%4]
	}
	return -1
}

// gather16 collects the bicubic control grid indices for the quad whose
// corner vertices, in patch frame order, are c[0..3]. Grid slot (i,j) flat
// index i*4+j has the face spanning grid (1,1)..(2,2).
func (rm *refMesh) gather16(fi int, c [4]int) [16]int {
	var g [16]int
	for i := range g {
		g[i] = -1
	}
	at := func(i, j, v int) { g[i*4+j] = v }
	at(1, 1, c[0])
	at(2, 1, c[1])
	at(2, 2, c[2])
	at(1, 2, c[3])

	// Side neighbors.
	bA, bB, fBottom := rm.acrossEdge(c[0], c[1], fi) // beyond c0, c1 at v=-1
	at(1, 0, bA)
	at(2, 0, bB)
	rA, rB, fRight := rm.acrossEdge(c[1], c[2], fi) // beyond c1, c2 at u=+2
	at(3, 1, rA)
	at(3, 2, rB)
	tA, tB, fTop := rm.acrossEdge(c[2], c[3], fi) // beyond c2, c3 at v=+2
	at(2, 3, tA)
	at(1, 3, tB)
	lA, lB, fLeft := rm.acrossEdge(c[3], c[0], fi) // beyond c3, c0 at u=-1
	at(0, 2, lA)
	at(0, 1, lB)

	// Diagonal corners.
	at(0, 0, safeDiag(rm, c[0], fi, fBottom, fLeft))
	at(3, 0, safeDiag(rm, c[1], fi, fBottom, fRight))
	at(3, 3, safeDiag(rm, c[2], fi, fRight, fTop))
	at(0, 3, safeDiag(rm, c[3], fi, fTop, fLeft))
	return g
}

func safeDiag(rm *refMesh, v, fi, n1, n2 int) int {
	if v < 0 {
		return -1
	}
	return rm.diagVertex(v, fi, n1, n2)
}

// resolve16 turns a gathered index grid into positions, reflecting phantom
// points across open boundaries.
func resolve16(g [16]int, pos []r3.Vec) [16]r3.Vec {
	var p [16]r3.Vec
	have := [16]bool{}
	for i, vi := range g {
		if vi >= 0 {
			p[i] = pos[vi]
			have[i] = true
		}
	}
	reflect := func(dst, mid, far int) {
		if !have[dst] && have[mid] && have[far] {
			p[dst] = r3.Sub(r3.Scale(2, p[mid]), p[far])
			have[dst] = true
		}
	}
	idx := func(i, j int) int { return i*4 + j }
	// Side rows first.
	for k := 1; k <= 2; k++ {
		reflect(idx(k, 0), idx(k, 1), idx(k, 2))
		reflect(idx(k, 3), idx(k, 2), idx(k, 1))
		reflect(idx(0, k), idx(1, k), idx(2, k))
		reflect(idx(3, k), idx(2, k), idx(1, k))
	}
	// Corners: parallelogram extension from the three inner neighbors.
	para := func(dst, a, b, o int) {
		if !have[dst] {
			p[dst] = r3.Sub(r3.Add(p[a], p[b]), p[o])
			have[dst] = true
		}
	}
	para(idx(0, 0), idx(0, 1), idx(1, 0), idx(1, 1))
	para(idx(3, 0), idx(3, 1), idx(2, 0), idx(2, 1))
	para(idx(3, 3), idx(3, 2), idx(2, 3), idx(2, 2))
	para(idx(0, 3), idx(0, 2), idx(1, 3), idx(1, 2))
	return p
}

// evRing gathers the 2N+8 control indices around the extraordinary corner of
// face fi. The extraordinary vertex sits at patch frame corner 0. Ordering:
// slot 0 the EV, then alternating spoke/diagonal pairs fanning from the
// patch face, then the seven far points in grid order
// (2,-1),(2,0),(2,1),(2,2),(1,2),(0,2),(-1,2).
func (rm *refMesh) evRing(fi, evCorner int) (ring []int, valence int) {
	f := rm.faces[fi]
	ev := f[evCorner]
	c1 := f[(evCorner+1)%4]
	c2 := f[(evCorner+2)%4]
	c3 := f[(evCorner+3)%4]
	n := rm.valence(ev)
	ring = make([]int, 0, 2*n+8)
	ring = append(ring, ev, c1, c2, c3)

	// Walk the face fan around the EV starting from fi, entering across the
	// (ev,c3) edge. Winding keeps each face's diagonal between its spokes.
	spoke := c3
	cur := fi
	for i := 1; i < n; i++ {
		next := rm.otherFace(ev, spoke, cur)
		if next < 0 {
			return nil, n // EV touches a boundary; caller rejects earlier.
		}
		nf := rm.faces[next]
		k := cornerOf(nf, ev)
		if k < 0 || nf[(k+1)%4] != spoke {
			return nil, n
		}
		diag := nf[(k+2)%4]
		spoke = nf[(k+3)%4]
		cur = next
		if i < n-1 {
			ring = append(ring, diag, spoke)
		} else {
			// Last fan face closes back onto spoke c1.
			ring = append(ring, diag)
			if spoke != c1 {
				return nil, n
			}
		}
	}
	lastRing := cur // fan face sharing edge (ev,c1) with fi

	// Far band beyond c1, c2, c3.
	g20, g21, fRight := rm.acrossEdge(c1, c2, fi)
	g12, g02, fTop := rm.acrossEdge(c2, c3, fi)
	g2m1 := -1
	if fRight >= 0 || lastRing >= 0 {
		g2m1 = rm.diagVertex(c1, fi, fRight, lastRing)
	}
	g22 := safeDiag(rm, c2, fi, fRight, fTop)
	firstRing := rm.otherFace(ev, c3, fi)
	gm12 := -1
	if fTop >= 0 || firstRing >= 0 {
		gm12 = rm.diagVertex(c3, fi, fTop, firstRing)
	}
	ring = append(ring, g2m1, g20, g21, g22, g12, g02, gm12)
	return ring, n
}

// resolveEVRing fills phantom far points of an EV ring. The fan itself must
// be complete. Ring layout matches evRing.
func resolveEVRing(ring []int, n int, pos []r3.Vec) []r3.Vec {
	p := make([]r3.Vec, len(ring))
	have := make([]bool, len(ring))
	for i, vi := range ring {
		if vi >= 0 {
			p[i] = pos[vi]
			have[i] = true
		}
	}
	ev, c1, c2, c3 := p[0], p[1], p[2], p[3]
	far := 2*n + 1 // first far slot
	fill := func(off int, v r3.Vec) {
		if !have[far+off] {
			p[far+off] = v
			have[far+off] = true
		}
	}
	// Reflections of the patch across its far edges.
	fill(1, r3.Sub(r3.Scale(2, c1), ev)) // (2,0)
	fill(2, r3.Sub(r3.Scale(2, c2), c3)) // (2,1)
	fill(4, r3.Sub(r3.Scale(2, c2), c1)) // (1,2)
	fill(5, r3.Sub(r3.Scale(2, c3), ev)) // (0,2)
	// Parallelogram corners.
	dLast := p[2*n] // diagonal of the last fan face, grid (1,-1)
	fill(0, r3.Sub(r3.Add(p[far+1], dLast), c1)) // (2,-1)
	fill(3, r3.Sub(r3.Add(p[far+2], p[far+4]), c2)) // (2,2)
	d1 := p[4] // diagonal of the first fan face entered across (ev,c3), grid (-1,1)
	fill(6, r3.Sub(r3.Add(p[far+5], d1), c3)) // (-1,2)
	return p
}

// patchKind discriminates evaluation strategies.
type patchKind uint8

const (
	patchRegular patchKind = iota
	patchExtraordinary
)

// patch is the precomputed evaluation state for one top-level quad face.
type patch struct {
	kind patchKind
	// rot rotates face-local (u,v) so the extraordinary vertex sits at the
	// local origin. Zero for regular patches.
	rot int
	// grid holds the bicubic control points of regular patches.
	grid [16]r3.Vec
	// eigen evaluation state for extraordinary patches.
	eig *eigenPatch
	// cp is the control ring projected onto the eigenbasis, one r3 vector
	// per eigen coordinate.
	cp []r3.Vec
	// refNormal orients the eigenvector tangent frame at the EV limit.
	refNormal r3.Vec
}

// affine2 is a 2x2 linear map used for parameter chain rules. m[i][j] is
// d(out_i)/d(in_j).
type affine2 [2][2]float64

var identity2 = affine2{{1, 0}, {0, 1}}

func (a affine2) compose(inner affine2) affine2 {
	var out affine2
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			out[i][j] = a[i][0]*inner[0][j] + a[i][1]*inner[1][j]
		}
	}
	return out
}

// quadrantMaps transform parent quad coordinates to the corner-child frame.
var quadrantMaps = [4]func(u, v float64) (float64, float64){
	func(u, v float64) (float64, float64) { return 2 * u, 2 * v },
	func(u, v float64) (float64, float64) { return 2 * v, 2 * (1 - u) },
	func(u, v float64) (float64, float64) { return 2 * (1 - u), 2 * (1 - v) },
	func(u, v float64) (float64, float64) { return 2 * (1 - v), 2 * u },
}

var quadrantJacobians = [4]affine2{
	{{2, 0}, {0, 2}},
	{{0, 2}, {-2, 0}},
	{{-2, 0}, {0, -2}},
	{{0, -2}, {2, 0}},
}

// rotationMaps move face corner r to the local origin, preserving winding.
var rotationMaps = [4]func(u, v float64) (float64, float64){
	func(u, v float64) (float64, float64) { return u, v },
	func(u, v float64) (float64, float64) { return v, 1 - u },
	func(u, v float64) (float64, float64) { return 1 - u, 1 - v },
	func(u, v float64) (float64, float64) { return 1 - v, u },
}

var rotationJacobians = [4]affine2{
	identity2,
	{{0, 1}, {-1, 0}},
	{{-1, 0}, {0, -1}},
	{{0, -1}, {1, 0}},
}

// quadrantFor picks the corner child containing (u,v).
func quadrantFor(u, v float64) int {
	switch {
	case u < 0.5 && v < 0.5:
		return 0
	case u >= 0.5 && v < 0.5:
		return 1
	case u >= 0.5 && v >= 0.5:
		return 2
	default:
		return 3
	}
}

// chainRule maps derivatives of the local patch parametrization back through
// the accumulated affine parameter map m (local = m(original)).
func chainRule(d SecondDerivatives, m affine2) SecondDerivatives {
	out := SecondDerivatives{Position: d.Position}
	a, b := m[0][0], m[1][0] // d(local)/du
	c, e := m[0][1], m[1][1] // d(local)/dv
	out.Du = r3.Add(r3.Scale(a, d.Du), r3.Scale(b, d.Dv))
	out.Dv = r3.Add(r3.Scale(c, d.Du), r3.Scale(e, d.Dv))
	out.Duu = r3.Add(r3.Add(r3.Scale(a*a, d.Duu), r3.Scale(2*a*b, d.Duv)), r3.Scale(b*b, d.Dvv))
	out.Dvv = r3.Add(r3.Add(r3.Scale(c*c, d.Duu), r3.Scale(2*c*e, d.Duv)), r3.Scale(e*e, d.Dvv))
	out.Duv = r3.Add(r3.Add(r3.Scale(a*c, d.Duu), r3.Scale(a*e+b*c, d.Duv)), r3.Scale(b*e, d.Dvv))
	return out
}

// evalLocal evaluates the patch at local coordinates (u,v) in [0,1]^2.
// atEV reports that the query hit an extraordinary corner exactly, where
// second derivatives are unbounded; Du/Dv then hold the limit tangent pair.
func (p *patch) evalLocal(u, v float64) (d SecondDerivatives, atEV bool) {
	if p.kind == patchRegular {
		return bicubicPatch(&p.grid, u, v), false
	}
	if u == 0 && v == 0 {
		pos, t1, t2 := p.eig.limit(p.cp)
		d.Position = pos
		d.Du, d.Dv = t1, t2
		if r3.Dot(r3.Cross(t1, t2), p.refNormal) < 0 {
			d.Du, d.Dv = t2, t1
		}
		return d, true
	}
	// Stam evaluation: pick the subdivision depth n that maps (u,v) into a
	// regular subpatch, then evaluate that bicubic patch through the
	// eigenbasis raised to the n-1 power.
	n := int(math.Floor(-math.Log2(math.Max(u, v)))) + 1
	pow := math.Ldexp(1, n-1)
	uu := u * pow
	vv := v * pow
	var k int
	var s, t float64
	switch {
	case uu > 0.5 && vv > 0.5:
		k = 1
		s, t = 2*uu-1, 2*vv-1
	case uu > 0.5:
		k = 0
		s, t = 2*uu-1, 2*vv
	default:
		k = 2
		s, t = 2*uu, 2*vv-1
	}
	pts := p.eig.subpatch(k, n, p.cp)
	d = bicubicPatch(&pts, s, t)
	// The subpatch parameters scale as 2^n relative to the patch.
	scale := math.Ldexp(1, n)
	d.Du = r3.Scale(scale, d.Du)
	d.Dv = r3.Scale(scale, d.Dv)
	d.Duu = r3.Scale(scale*scale, d.Duu)
	d.Dvv = r3.Scale(scale*scale, d.Dvv)
	d.Duv = r3.Scale(scale*scale, d.Duv)
	return d, false
}
