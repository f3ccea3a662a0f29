// Package spectral builds a discrete Laplace-Beltrami operator from exact
// limit-surface samples and solves for its lowest eigenpairs.
package spectral

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/moldwright/subd"
)

// Operator is a cotangent-weighted Laplace-Beltrami operator assembled on a
// welded sample mesh of one evaluator. It holds a non-owning reference to
// the sampling and is read-only after Build.
type Operator struct {
	mesh     *subd.SampledMesh
	numFaces int

	// Stiffness matrix in CSR form, symmetric positive semidefinite.
	rowPtr []int
	colIdx []int
	val    []float64
	// Lumped (barycentric) vertex masses.
	mass []float64

	// MaxIterations caps the total Lanczos work in Solve across all its
	// deflation sweeps. Zero picks a default from the request size.
	MaxIterations int
}

// minTriArea guards the cotangent weights against degenerate sample
// triangles.
const minTriArea = 1e-14

// Build samples the limit surface at the given density and assembles the
// operator. The density is quads per quadrangulated face side, as in
// Evaluator.SampleMesh.
func Build(ev *subd.Evaluator, sampleDensity int) (*Operator, error) {
	mesh, err := ev.SampleMesh(sampleDensity)
	if err != nil {
		return nil, fmt.Errorf("spectral build: %w", err)
	}
	op := &Operator{mesh: mesh, numFaces: ev.NumFaces()}
	op.assemble()
	return op, nil
}

// Mesh returns the sample mesh the operator was assembled on. Eigenvectors
// from Solve are indexed by its vertices.
func (op *Operator) Mesh() *subd.SampledMesh { return op.mesh }

// NumVertices returns the dimension of the operator.
func (op *Operator) NumVertices() int { return len(op.mass) }

func (op *Operator) assemble() {
	n := len(op.mesh.Positions)
	op.mass = make([]float64, n)
	entries := make([]map[int]float64, n)
	for i := range entries {
		entries[i] = map[int]float64{}
	}
	add := func(i, j int, w float64) {
		entries[i][j] += w
	}

	for _, tri := range op.mesh.Tris {
		a := op.mesh.Positions[tri[0]]
		b := op.mesh.Positions[tri[1]]
		c := op.mesh.Positions[tri[2]]
		area := 0.5 * r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
		if area < minTriArea {
			continue
		}
		for corner := 0; corner < 3; corner++ {
			op.mass[tri[corner]] += area / 3
			// Half-cotangent of the angle at this corner weighs the
			// opposite edge.
			i, j := tri[(corner+1)%3], tri[(corner+2)%3]
			p := op.mesh.Positions[tri[corner]]
			u := r3.Sub(op.mesh.Positions[i], p)
			v := r3.Sub(op.mesh.Positions[j], p)
			cot := r3.Dot(u, v) / (2 * area)
			w := cot / 2
			add(i, j, -w)
			add(j, i, -w)
			add(i, i, w)
			add(j, j, w)
		}
	}

	op.rowPtr = make([]int, n+1)
	for i := 0; i < n; i++ {
		op.rowPtr[i+1] = op.rowPtr[i] + len(entries[i])
	}
	op.colIdx = make([]int, op.rowPtr[n])
	op.val = make([]float64, op.rowPtr[n])
	for i := 0; i < n; i++ {
		at := op.rowPtr[i]
		for j, w := range entries[i] {
			op.colIdx[at] = j
			op.val[at] = w
			at++
		}
		sortRow(op.colIdx[op.rowPtr[i]:at], op.val[op.rowPtr[i]:at])
	}
	// Isolated vertices would zero the mass matrix; give them unit mass so
	// the scaled operator stays finite.
	for i := range op.mass {
		if op.mass[i] < minTriArea {
			op.mass[i] = 1
		}
	}
}

func sortRow(cols []int, vals []float64) {
	for i := 1; i < len(cols); i++ {
		c, v := cols[i], vals[i]
		j := i - 1
		for j >= 0 && cols[j] > c {
			cols[j+1], vals[j+1] = cols[j], vals[j]
			j--
		}
		cols[j+1], vals[j+1] = c, v
	}
}

// mulStiff computes dst = L*x.
func (op *Operator) mulStiff(dst, x []float64) {
	for i := range dst {
		s := 0.0
		for at := op.rowPtr[i]; at < op.rowPtr[i+1]; at++ {
			s += op.val[at] * x[op.colIdx[at]]
		}
		dst[i] = s
	}
}

// FaceValues averages a per-vertex eigenfunction over the samples of each
// cage face, giving the per-face signal the spectral lens partitions on.
func (op *Operator) FaceValues(vec []float64) []float64 {
	sum := make([]float64, op.numFaces)
	cnt := make([]float64, op.numFaces)
	for ti, tri := range op.mesh.Tris {
		f := op.mesh.TriFace[ti]
		for _, vi := range tri {
			sum[f] += vec[vi]
			cnt[f]++
		}
	}
	for f := range sum {
		if cnt[f] > 0 {
			sum[f] /= cnt[f]
		}
	}
	return sum
}

// checkFinite guards assembled state before a solve.
func (op *Operator) checkFinite() error {
	for _, v := range op.val {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("spectral build: non-finite stiffness entry")
		}
	}
	return nil
}
