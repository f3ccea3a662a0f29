package lens

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/moldwright/subd"
	"github.com/moldwright/subd/curvature"
)

// Differential discovers regions by curvature signature: faces are
// classified from per-face Gaussian/mean curvature statistics, then grown
// from high-curvature seeds across matching neighbors.
type Differential struct{}

// Name implements Lens.
func (*Differential) Name() string { return "differential" }

const (
	classElliptic   = "elliptic"
	classHyperbolic = "hyperbolic"
	classParabolic  = "parabolic"
	classPlanar     = "planar"
)

type faceStat struct {
	face     int
	class    string
	meanK    float64
	meanH    float64
	absK1    float64
	hSamples []float64
	boundary bool
}

// Discover implements Lens.
func (dl *Differential) Discover(ctx context.Context, ev *subd.Evaluator, p Params, pinned map[int]bool) ([]Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stats, err := dl.collect(ev, p, pinned)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, nil
	}
	dl.flagBoundaries(stats, p)

	regions := dl.grow(ev, stats, p, pinned)
	regions = mergeSmall(ev, regions, p.MinRegionFaces, signatureDistance)
	for i := range regions {
		regions[i].UnityStrength = unityFromSamples(regionSamples(&regions[i], stats), p.CurvatureEpsilon)
	}
	return regions, nil
}

// collect samples every unpinned face on a GridN x GridN parametric grid
// and aggregates curvature statistics per face. Any failed sample aborts
// the pass; skipping it would bias the region statistics.
func (dl *Differential) collect(ev *subd.Evaluator, p Params, pinned map[int]bool) (map[int]*faceStat, error) {
	var pts []subd.ParametricPoint
	var order []int
	for f := 0; f < ev.NumFaces(); f++ {
		if pinned[f] {
			continue
		}
		pts = append(pts, curvature.Grid(f, p.GridN)...)
		order = append(order, f)
	}
	samples, err := curvature.BatchAnalyze(ev, pts)
	if err != nil {
		return nil, fmt.Errorf("differential lens: %w", err)
	}

	per := p.GridN * p.GridN
	stats := make(map[int]*faceStat, len(order))
	for i, f := range order {
		chunk := samples[i*per : (i+1)*per]
		ks := make([]float64, len(chunk))
		hs := make([]float64, len(chunk))
		absK1 := 0.0
		for j, s := range chunk {
			ks[j] = s.Gaussian
			hs[j] = s.Mean
			absK1 += math.Abs(s.K1)
		}
		meanK := stat.Mean(ks, nil)
		meanH := stat.Mean(hs, nil)
		stats[f] = &faceStat{
			face:     f,
			class:    classify(meanK, meanH, p.CurvatureEpsilon),
			meanK:    meanK,
			meanH:    meanH,
			absK1:    absK1 / float64(len(chunk)),
			hSamples: hs,
		}
	}
	return stats, nil
}

func classify(k, h, eps float64) string {
	switch {
	case k > eps:
		return classElliptic
	case k < -eps:
		return classHyperbolic
	case math.Abs(h) > eps:
		return classParabolic
	default:
		return classPlanar
	}
}

// flagBoundaries marks faces in the |k1| ridge and valley percentile bands
// as region boundaries: growth never crosses them.
func (dl *Differential) flagBoundaries(stats map[int]*faceStat, p Params) {
	vals := make([]float64, 0, len(stats))
	for _, s := range stats {
		vals = append(vals, s.absK1)
	}
	sort.Float64s(vals)
	ridge := stat.Quantile(p.RidgePercentile, stat.Empirical, vals, nil)
	valley := stat.Quantile(p.ValleyPercentile, stat.Empirical, vals, nil)
	if ridge <= valley {
		return
	}
	// Near-uniform |k1| has no ridges or valleys worth cutting on, only
	// sampling noise.
	if ridge-valley <= p.CurvatureEpsilon+0.05*stat.Mean(vals, nil) {
		return
	}
	for _, s := range stats {
		if s.absK1 > ridge || s.absK1 < valley {
			s.boundary = true
		}
	}
}

// grow floods regions from unassigned seeds in descending |k1| order. A
// neighbor joins when its class matches the seed and its (K, H) stay
// within tolerance of the running region mean. Seed order makes the
// first-discovered region win contested faces.
func (dl *Differential) grow(ev *subd.Evaluator, stats map[int]*faceStat, p Params, pinned map[int]bool) []Region {
	seeds := make([]*faceStat, 0, len(stats))
	for _, s := range stats {
		seeds = append(seeds, s)
	}
	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].absK1 != seeds[j].absK1 {
			return seeds[i].absK1 > seeds[j].absK1
		}
		return seeds[i].face < seeds[j].face
	})

	assigned := make(map[int]bool, len(stats))
	var regions []Region
	for _, seed := range seeds {
		if assigned[seed.face] {
			continue
		}
		faces := []int{seed.face}
		assigned[seed.face] = true
		runK, runH := seed.meanK, seed.meanH
		for at := 0; at < len(faces); at++ {
			for _, nb := range ev.FaceNeighbors(faces[at]) {
				s, ok := stats[nb]
				if !ok || assigned[nb] || pinned[nb] || s.boundary {
					continue
				}
				if s.class != seed.class {
					continue
				}
				if !within(s.meanK, runK, p) || !within(s.meanH, runH, p) {
					continue
				}
				assigned[nb] = true
				faces = append(faces, nb)
				n := float64(len(faces))
				runK += (s.meanK - runK) / n
				runH += (s.meanH - runH) / n
			}
		}
		regions = append(regions, newRegion(dl.Name(), faces, 0, map[string]string{
			"classification": seed.class,
			"meanK":          fmt.Sprintf("%.6g", runK),
			"meanH":          fmt.Sprintf("%.6g", runH),
		}))
	}
	return regions
}

func within(v, mean float64, p Params) bool {
	return math.Abs(v-mean) <= p.GrowTolerance*(math.Abs(mean)+p.CurvatureEpsilon)
}

// signatureDistance compares two regions by their recorded mean curvature
// signature.
func signatureDistance(a, b *Region) float64 {
	ak, ah := parseSignature(a)
	bk, bh := parseSignature(b)
	return (ak-bk)*(ak-bk) + (ah-bh)*(ah-bh)
}

func parseSignature(r *Region) (k, h float64) {
	fmt.Sscanf(r.Metadata["meanK"], "%g", &k)
	fmt.Sscanf(r.Metadata["meanH"], "%g", &h)
	return k, h
}

func regionSamples(r *Region, stats map[int]*faceStat) []float64 {
	var out []float64
	for _, f := range r.Faces {
		if s, ok := stats[f]; ok {
			out = append(out, s.hSamples...)
		}
	}
	return out
}

// unityFromSamples scores coherence as 1/(1+cv) of the region's mean
// curvature samples. The epsilon keeps flat regions, whose mean is near
// zero, from collapsing the score.
func unityFromSamples(xs []float64, eps float64) float64 {
	if len(xs) < 2 {
		return 1
	}
	mean, std := stat.MeanStdDev(xs, nil)
	cv := std / (math.Abs(mean) + eps)
	return 1 / (1 + cv)
}
