package subd

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// eigenPatch holds the eigenstructure of the Catmull-Clark subdivision
// matrix around an extraordinary vertex of a given valence. One instance is
// shared by every patch of that valence.
//
// The matrices are not transcribed from tables. A template fan mesh around a
// single extraordinary vertex is refined with the same stencil machinery
// used for real cages, and the subdivision matrix A (2N+8 square) plus the
// three regular-subpatch extraction matrices fall out of the stencils by
// refining a basis of indicator vectors. A is then diagonalized numerically,
// A = V diag(lambda) V^-1, so a patch evaluates in closed form at any depth.
type eigenPatch struct {
	valence int
	k       int
	lambda  []float64
	// vinv rows project a control ring onto the eigenbasis.
	vinv [][]float64
	// phiV[k] maps eigen coordinates (scaled by lambda^(n-1)) straight to
	// the 16 bicubic control points of regular subpatch k.
	phiV [3][][]float64
	// iLimit indexes the unit eigenvalue, iTan the subdominant pair.
	iLimit     int
	iTan       [2]int
	limitScale float64
}

var eigenCache = struct {
	sync.Mutex
	m map[int]*eigenPatch
}{m: make(map[int]*eigenPatch)}

// eigenPatchFor returns the shared eigenstructure for a valence, computing
// and caching it on first use.
func eigenPatchFor(valence int) (*eigenPatch, error) {
	eigenCache.Lock()
	defer eigenCache.Unlock()
	if ep, ok := eigenCache.m[valence]; ok {
		return ep, nil
	}
	ep, err := buildEigenPatch(valence)
	if err != nil {
		return nil, err
	}
	eigenCache.m[valence] = ep
	return ep, nil
}

// fanMesh builds the template: a single interior vertex of the requested
// valence surrounded by quads.
func fanMesh(valence int) *refMesh {
	faces := make([][]int, valence)
	for s := 0; s < valence; s++ {
		a := 1 + 2*s
		d := 2 + 2*s
		b := 1 + 2*((s+1)%valence)
		faces[s] = []int{0, a, d, b}
	}
	return buildRefMesh(faces, 1+2*valence)
}

func buildEigenPatch(valence int) (*eigenPatch, error) {
	if valence < 3 {
		return nil, fmt.Errorf("eigenpatch: unsupported valence %d", valence)
	}
	k := 2*valence + 8

	// Refine the fan three times so the patch ring and one further
	// subdivision round stay clear of the template boundary.
	t0 := fanMesh(valence)
	t1, _, ch0 := t0.refine()
	t2, _, ch1 := t1.refine()
	t3, _, ch2 := t2.refine()
	t4, st3, ch3 := t3.refine()

	// Chase the corner child chain so the EV stays at face corner 0.
	f1 := ch0[0][0]
	f2 := ch1[f1][0]
	f3 := ch2[f2][0]
	f4 := ch3[f3][0]

	ring3, _ := t3.evRing(f3, 0)
	ring4, _ := t4.evRing(f4, 0)
	if len(ring3) != k || len(ring4) != k || hasNegative(ring3) || hasNegative(ring4) {
		return nil, fmt.Errorf("eigenpatch: template ring extraction failed for valence %d", valence)
	}

	// Indicator basis over the level-3 ring.
	rows := make([][]float64, t3.numVerts)
	for i, vi := range ring3 {
		row := make([]float64, k)
		row[i] = 1
		rows[vi] = row
	}

	// Subdivision matrix: stencils of the next-level ring over the basis.
	a := mat.NewDense(k, k, nil)
	for i, vi := range ring4 {
		st3[vi].applyBasis(rows, a.RawRowView(i))
	}
	if err := affineRows(a); err != nil {
		return nil, fmt.Errorf("eigenpatch: subdivision matrix for valence %d: %w", valence, err)
	}

	// Regular subpatch extraction matrices. Child corner quads 1..3 of the
	// patch face are regular; their 16 point grids are gathered in the
	// parent parameter frame (origin rotated into each child).
	var phi [3]*mat.Dense
	childRot := [3]int{3, 2, 1}
	for sp := 0; sp < 3; sp++ {
		qf := ch3[f3][sp+1]
		qv := t4.faces[qf]
		var frame [4]int
		for j := 0; j < 4; j++ {
			frame[j] = qv[(childRot[sp]+j)%4]
		}
		g := t4.gather16(qf, frame)
		phi[sp] = mat.NewDense(16, k, nil)
		for i, vi := range g {
			if vi < 0 {
				return nil, fmt.Errorf("eigenpatch: template subpatch grid incomplete for valence %d", valence)
			}
			st3[vi].applyBasis(rows, phi[sp].RawRowView(i))
		}
		if err := affineRows(phi[sp]); err != nil {
			return nil, fmt.Errorf("eigenpatch: subpatch %d extraction for valence %d: %w", sp, valence, err)
		}
	}

	var eig mat.Eigen
	if !eig.Factorize(a, mat.EigenRight) {
		return nil, fmt.Errorf("eigenpatch: eigendecomposition failed for valence %d", valence)
	}
	vals := eig.Values(nil)
	var cvec mat.CDense
	eig.VectorsTo(&cvec)

	lambda := make([]float64, k)
	v := mat.NewDense(k, k, nil)
	for j := 0; j < k; j++ {
		if math.Abs(imag(vals[j])) > 1e-8 {
			return nil, fmt.Errorf("eigenpatch: complex eigenvalue for valence %d", valence)
		}
		lambda[j] = real(vals[j])
		for i := 0; i < k; i++ {
			v.Set(i, j, real(cvec.At(i, j)))
		}
	}

	var vinv mat.Dense
	if err := vinv.Inverse(v); err != nil {
		return nil, fmt.Errorf("eigenpatch: eigenvector inversion for valence %d: %w", valence, err)
	}

	ep := &eigenPatch{valence: valence, k: k, lambda: lambda}
	ep.vinv = denseRows(&vinv)
	for sp := 0; sp < 3; sp++ {
		var pv mat.Dense
		pv.Mul(phi[sp], v)
		ep.phiV[sp] = denseRows(&pv)
	}

	// Locate the unit eigenvalue and the subdominant pair.
	ep.iLimit = 0
	for j := 1; j < k; j++ {
		if math.Abs(lambda[j]-1) < math.Abs(lambda[ep.iLimit]-1) {
			ep.iLimit = j
		}
	}
	i1, i2 := -1, -1
	for j := 0; j < k; j++ {
		if j == ep.iLimit {
			continue
		}
		if i1 < 0 || lambda[j] > lambda[i1] {
			i1, i2 = j, i1
		} else if i2 < 0 || lambda[j] > lambda[i2] {
			i2 = j
		}
	}
	ep.iTan = [2]int{i1, i2}
	ep.limitScale = v.At(0, ep.iLimit)
	return ep, nil
}

// affineRows checks that every row sums to one. Subdivision stencils are
// affine combinations, so a deficit means a stencil reached a vertex outside
// the ring basis and its weight was dropped.
func affineRows(m *mat.Dense) error {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			sum += m.At(i, j)
		}
		if math.Abs(sum-1) > 1e-9 {
			return fmt.Errorf("row %d weight sum %g, want 1", i, sum)
		}
	}
	return nil
}

func hasNegative(xs []int) bool {
	for _, x := range xs {
		if x < 0 {
			return true
		}
	}
	return false
}

func denseRows(d *mat.Dense) [][]float64 {
	r, _ := d.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		out[i] = append([]float64(nil), d.RawRowView(i)...)
	}
	return out
}

// project maps a control ring into eigen coordinates, cp = V^-1 C.
func (ep *eigenPatch) project(ring []r3.Vec) []r3.Vec {
	cp := make([]r3.Vec, ep.k)
	for i := 0; i < ep.k; i++ {
		var p r3.Vec
		row := ep.vinv[i]
		for j, w := range row {
			p = r3.Add(p, r3.Scale(w, ring[j]))
		}
		cp[i] = p
	}
	return cp
}

// subpatch assembles the 16 bicubic control points of regular subpatch sp at
// subdivision depth n from eigen coordinates.
func (ep *eigenPatch) subpatch(sp, n int, cp []r3.Vec) [16]r3.Vec {
	scaled := make([]r3.Vec, ep.k)
	for j := 0; j < ep.k; j++ {
		w := math.Pow(ep.lambda[j], float64(n-1))
		scaled[j] = r3.Scale(w, cp[j])
	}
	var pts [16]r3.Vec
	rowsM := ep.phiV[sp]
	for i := 0; i < 16; i++ {
		var p r3.Vec
		for j, w := range rowsM[i] {
			p = r3.Add(p, r3.Scale(w, scaled[j]))
		}
		pts[i] = p
	}
	return pts
}

// limit returns the exact limit position and the tangent pair at the
// extraordinary vertex itself, straight from the dominant left eigenvectors.
func (ep *eigenPatch) limit(cp []r3.Vec) (pos, t1, t2 r3.Vec) {
	pos = r3.Scale(ep.limitScale, cp[ep.iLimit])
	return pos, cp[ep.iTan[0]], cp[ep.iTan[1]]
}
