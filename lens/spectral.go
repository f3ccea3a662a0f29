package lens

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/moldwright/subd"
	"github.com/moldwright/subd/spectral"
)

// Spectral discovers regions as nodal domains of low Laplace-Beltrami
// eigenfunctions: faces sharing the sign pattern of the selected
// eigenfunctions (or a k-means cluster over their values) form one domain,
// split into edge-connected components.
type Spectral struct{}

// Name implements Lens.
func (*Spectral) Name() string { return "spectral" }

// Discover implements Lens.
func (sl *Spectral) Discover(ctx context.Context, ev *subd.Evaluator, p Params, pinned map[int]bool) ([]Region, error) {
	op, err := spectral.Build(ev, p.SampleDensity)
	if err != nil {
		return nil, err
	}
	op.MaxIterations = p.MaxSolveIterations
	sp, err := op.Solve(ctx, p.Eigenfunctions)
	if err != nil {
		return nil, err
	}

	// Per-face eigenfunction values, one row per face.
	nf := ev.NumFaces()
	vecs := make([][]float64, len(sp.Vectors))
	for e, v := range sp.Vectors {
		vecs[e] = op.FaceValues(v)
	}
	var faces []int
	for f := 0; f < nf; f++ {
		if !pinned[f] {
			faces = append(faces, f)
		}
	}
	if len(faces) == 0 {
		return nil, nil
	}

	var groups map[string][]int
	if p.UseKMeans {
		groups = sl.clusterKMeans(faces, vecs, p.KMeansK)
	} else {
		groups = sl.clusterSigns(faces, vecs)
	}

	var regions []Region
	for _, label := range sortedKeys(groups) {
		for _, comp := range connectedComponents(ev, groups[label]) {
			regions = append(regions, newRegion(sl.Name(), comp, 0, map[string]string{
				"domain": label,
			}))
		}
	}

	dist := func(a, b *Region) float64 {
		return floats.Distance(meanVector(a.Faces, vecs), meanVector(b.Faces, vecs), 2)
	}
	regions = mergeSmall(ev, regions, p.MinRegionFaces, dist)
	for i := range regions {
		regions[i].UnityStrength = domainUnity(regions[i].Faces, faces, vecs)
	}
	return regions, nil
}

// clusterSigns groups faces by the sign pattern of the eigenfunctions.
// Sign flips between solves relabel domains but never regroup them, so
// callers stay sign-agnostic.
func (sl *Spectral) clusterSigns(faces []int, vecs [][]float64) map[string][]int {
	groups := map[string][]int{}
	var b strings.Builder
	for _, f := range faces {
		b.Reset()
		for _, v := range vecs {
			if v[f] >= 0 {
				b.WriteByte('+')
			} else {
				b.WriteByte('-')
			}
		}
		key := b.String()
		groups[key] = append(groups[key], f)
	}
	return groups
}

// clusterKMeans runs a deterministic k-means over per-face eigenfunction
// vectors: farthest-first seeding from the lowest-index face, then Lloyd
// iterations until labels settle.
func (sl *Spectral) clusterKMeans(faces []int, vecs [][]float64, k int) map[string][]int {
	if k < 1 {
		k = 1
	}
	if k > len(faces) {
		k = len(faces)
	}
	dim := len(vecs)
	row := func(f int) []float64 {
		r := make([]float64, dim)
		for e := range vecs {
			r[e] = vecs[e][f]
		}
		return r
	}

	centers := make([][]float64, 0, k)
	centers = append(centers, row(faces[0]))
	for len(centers) < k {
		far, farD := faces[0], -1.0
		for _, f := range faces {
			d := math.Inf(1)
			for _, c := range centers {
				if dd := floats.Distance(row(f), c, 2); dd < d {
					d = dd
				}
			}
			if d > farD {
				far, farD = f, d
			}
		}
		centers = append(centers, row(far))
	}

	labels := make(map[int]int, len(faces))
	for iter := 0; iter < 100; iter++ {
		changed := false
		for _, f := range faces {
			best, bestD := 0, math.Inf(1)
			for ci, c := range centers {
				if d := floats.Distance(row(f), c, 2); d < bestD {
					best, bestD = ci, d
				}
			}
			if labels[f] != best {
				labels[f] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		for ci := range centers {
			sum := make([]float64, dim)
			n := 0
			for _, f := range faces {
				if labels[f] == ci {
					floats.Add(sum, row(f))
					n++
				}
			}
			if n > 0 {
				floats.Scale(1/float64(n), sum)
				centers[ci] = sum
			}
		}
	}

	groups := map[string][]int{}
	for _, f := range faces {
		key := fmt.Sprintf("c%d", labels[f])
		groups[key] = append(groups[key], f)
	}
	return groups
}

func sortedKeys(m map[string][]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func meanVector(faces []int, vecs [][]float64) []float64 {
	mean := make([]float64, len(vecs))
	for e, v := range vecs {
		for _, f := range faces {
			mean[e] += v[f]
		}
		mean[e] /= float64(len(faces))
	}
	return mean
}

// domainUnity scores a domain by its within-domain eigenfunction spread
// relative to the global spread: tight domains approach 1.
func domainUnity(faces, all []int, vecs [][]float64) float64 {
	if len(faces) < 2 {
		return 1
	}
	ratio := 0.0
	for _, v := range vecs {
		in := make([]float64, len(faces))
		for i, f := range faces {
			in[i] = v[f]
		}
		glob := make([]float64, len(all))
		for i, f := range all {
			glob[i] = v[f]
		}
		gstd := stat.StdDev(glob, nil)
		if gstd < 1e-12 {
			continue
		}
		ratio += stat.StdDev(in, nil) / gstd
	}
	ratio /= float64(len(vecs))
	return 1 / (1 + ratio)
}
