package spectral

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrNonConvergence is returned when the eigensolver exhausts its iteration
// budget before the requested eigenpairs settle.
var ErrNonConvergence = errors.New("eigensolver did not converge")

// Spectrum holds the k smallest nontrivial eigenpairs of one operator
// build, ascending by eigenvalue. The constant (zero eigenvalue) mode is
// deflated out and never appears. Eigenvector sign carries no meaning.
type Spectrum struct {
	Values  []float64
	Vectors [][]float64
}

const ritzTol = 1e-9

// Solve computes the k smallest nontrivial eigenpairs of the generalized
// problem L*x = lambda*M*x. Lanczos sweeps on the mass-scaled operator lock
// converged Ritz pairs and restart deflated against them; a single Krylov
// space holds at most one copy of a repeated eigenvalue, so each restart
// recovers the next copy until the low spectrum is complete. The context
// cancels a long solve; exhausting the iteration budget returns an error
// wrapping ErrNonConvergence.
func (op *Operator) Solve(ctx context.Context, k int) (*Spectrum, error) {
	n := op.NumVertices()
	if k < 1 || k > n-2 {
		return nil, fmt.Errorf("spectral solve: k=%d outside [1,%d]", k, n-2)
	}
	if err := op.checkFinite(); err != nil {
		return nil, err
	}

	// The budget is shared by every deflation sweep; repeated eigenvalues
	// cost one sweep per copy.
	budget := op.MaxIterations
	if budget <= 0 {
		budget = 1000 + 300*k
	}

	// B = M^-1/2 L M^-1/2 shares eigenvalues with the generalized problem.
	d := make([]float64, n)
	null := make([]float64, n)
	for i, m := range op.mass {
		d[i] = 1 / math.Sqrt(m)
		null[i] = math.Sqrt(m)
	}
	floats.Scale(1/floats.Norm(null, 2), null)

	mulB := func(dst, x, scratch []float64) {
		for i := range scratch {
			scratch[i] = d[i] * x[i]
		}
		op.mulStiff(dst, scratch)
		for i := range dst {
			dst[i] *= d[i]
		}
	}

	rng := rand.New(rand.NewSource(1))
	var (
		locked     [][]float64
		lockedVals []float64
		spent      int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("spectral solve after %d iterations: %w", spent, err)
		}
		dim := n - 1 - len(locked)
		if dim < 1 {
			break
		}
		if spent >= budget {
			return nil, fmt.Errorf("spectral solve: %w after %d iterations (%d of %d pairs)",
				ErrNonConvergence, spent, len(locked), k)
		}
		want := k - len(locked)
		if want < 1 {
			want = 1
		}
		res, used, err := lanczosSweep(ctx, n, mulB, rng, null, locked, want, min(budget-spent, dim))
		spent += used
		if err != nil {
			return nil, fmt.Errorf("spectral solve after %d iterations: %w", spent, err)
		}
		if len(res.vals) == 0 {
			if res.exhausted {
				break
			}
			return nil, fmt.Errorf("spectral solve: %w after %d iterations (%d of %d pairs)",
				ErrNonConvergence, spent, len(locked), k)
		}
		sweepMin := res.vals[0]
		lockedVals = append(lockedVals, res.vals...)
		locked = append(locked, res.vecs...)
		if len(locked) >= k {
			kth := kthSmallest(lockedVals, k)
			// Each sweep surfaces the smallest eigenvalue remaining after
			// deflation; once that sits at or above the current k-th value
			// nothing below it is missing.
			if sweepMin >= kth-ritzTol*math.Max(1, math.Abs(kth)) {
				break
			}
		}
	}
	if len(locked) < k {
		return nil, fmt.Errorf("spectral solve: %w (subspace yields %d of %d pairs)",
			ErrNonConvergence, len(locked), k)
	}
	return op.assembleSpectrum(lockedVals, locked, d, k)
}

// sweepResult carries the converged smallest Ritz pairs of one Lanczos
// sweep, vectors unit-norm in the scaled basis. exhausted means the start
// vector vanished under deflation: the deflated operator has nothing left.
type sweepResult struct {
	vals      []float64
	vecs      [][]float64
	exhausted bool
}

// lanczosSweep grows a Krylov space orthogonal to the constant mode and all
// locked vectors, with full reorthogonalization, and harvests up to want
// converged Ritz pairs from the low end. It reports the operator
// applications it spent.
func lanczosSweep(ctx context.Context, n int, mulB func(dst, x, scratch []float64),
	rng *rand.Rand, null []float64, locked [][]float64, want, maxDim int) (sweepResult, int, error) {

	deflate := func(w []float64) {
		projectOut(w, null)
		for _, u := range locked {
			projectOut(w, u)
		}
	}

	v := make([]float64, n)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	deflate(v)
	nv := floats.Norm(v, 2)
	if nv < 1e-13 {
		return sweepResult{exhausted: true}, 0, nil
	}
	floats.Scale(1/nv, v)

	var (
		basis       [][]float64
		alpha, beta []float64
		w           = make([]float64, n)
		scratch     = make([]float64, n)
	)
	basis = append(basis, append([]float64(nil), v...))

	for m := 1; m <= maxDim; m++ {
		if err := ctx.Err(); err != nil {
			return sweepResult{}, m - 1, err
		}
		mulB(w, basis[m-1], scratch)
		a := floats.Dot(w, basis[m-1])
		alpha = append(alpha, a)
		floats.AddScaled(w, -a, basis[m-1])
		if m > 1 {
			floats.AddScaled(w, -beta[m-2], basis[m-2])
		}
		deflate(w)
		for _, b := range basis {
			projectOut(w, b)
		}
		b := floats.Norm(w, 2)
		if b < 1e-13 {
			// Invariant subspace: the Ritz pairs are exact.
			return harvest(alpha, beta, 0, basis, want), m, nil
		}
		beta = append(beta, b)
		floats.Scale(1/b, w)
		basis = append(basis, append([]float64(nil), w...))

		if m >= want+2 && m%10 == 0 {
			res := harvest(alpha, beta[:m-1], b, basis, want)
			if len(res.vals) >= want {
				return res, m, nil
			}
		}
	}
	m := len(alpha)
	return harvest(alpha, beta[:m-1], beta[m-1], basis, want), m, nil
}

// harvest solves the projected tridiagonal problem and returns the converged
// prefix of its ascending Ritz pairs, at most want of them. resid scales the
// convergence estimate; zero means the pairs are exact.
func harvest(alpha, offdiag []float64, resid float64, basis [][]float64, want int) sweepResult {
	m := len(alpha)
	if m == 0 {
		return sweepResult{}
	}
	vals, vecs := tridiagEigen(alpha, offdiag, true)
	if vals == nil {
		return sweepResult{}
	}
	var res sweepResult
	for i := 0; i < m && len(res.vals) < want; i++ {
		est := resid * math.Abs(vecs.At(m-1, i))
		if est > ritzTol*math.Max(1, math.Abs(vals[i])) {
			// Ascending order; accept only a converged prefix so the sweep
			// minimum is trustworthy.
			break
		}
		y := make([]float64, len(basis[0]))
		for j := 0; j < m; j++ {
			floats.AddScaled(y, vecs.At(j, i), basis[j])
		}
		floats.Scale(1/floats.Norm(y, 2), y)
		res.vals = append(res.vals, vals[i])
		res.vecs = append(res.vecs, y)
	}
	return res
}

func projectOut(v, u []float64) {
	floats.AddScaled(v, -floats.Dot(v, u), u)
}

func kthSmallest(vals []float64, k int) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	return s[k-1]
}

// tridiagEigen decomposes the Lanczos tridiagonal. Values come back
// ascending; vectors are column-aligned with them when requested.
func tridiagEigen(alpha, beta []float64, vectors bool) ([]float64, *mat.Dense) {
	m := len(alpha)
	t := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		t.SetSym(i, i, alpha[i])
		if i+1 < m {
			t.SetSym(i, i+1, beta[i])
		}
	}
	var es mat.EigenSym
	if !es.Factorize(t, vectors) {
		return nil, nil
	}
	vals := es.Values(nil)
	if !vectors {
		return vals, nil
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	return vals, &vecs
}

// assembleSpectrum orders the locked pairs, maps them back through the mass scaling
// and fixes a deterministic sign.
func (op *Operator) assembleSpectrum(vals []float64, vecs [][]float64, d []float64, k int) (*Spectrum, error) {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return vals[idx[a]] < vals[idx[b]] })

	n := op.NumVertices()
	sp := &Spectrum{
		Values:  make([]float64, k),
		Vectors: make([][]float64, k),
	}
	for e := 0; e < k; e++ {
		j := idx[e]
		sp.Values[e] = vals[j]
		x := make([]float64, n)
		norm2 := 0.0
		for i := range x {
			x[i] = vecs[j][i] * d[i]
			norm2 += op.mass[i] * x[i] * x[i]
		}
		floats.Scale(1/math.Sqrt(norm2), x)
		// Deterministic orientation; callers stay sign-agnostic.
		maxAt := 0
		for i := range x {
			if math.Abs(x[i]) > math.Abs(x[maxAt]) {
				maxAt = i
			}
		}
		if x[maxAt] < 0 {
			floats.Scale(-1, x)
		}
		sp.Vectors[e] = x
	}
	return sp, nil
}
