package lens

import (
	"hash/fnv"
	"math"
)

// Params tunes both lenses. Thresholds have no canonical values; the
// defaults are starting points meant to be adjusted per model scale.
type Params struct {
	// GridN is the per-face curvature sampling grid side (differential
	// lens, n x n samples per face).
	GridN int
	// CurvatureEpsilon separates "zero" from signal when classifying
	// faces as elliptic, hyperbolic, parabolic or planar.
	CurvatureEpsilon float64
	// RidgePercentile and ValleyPercentile mark the |k1| band whose
	// faces act as region boundaries rather than region interiors.
	RidgePercentile  float64
	ValleyPercentile float64
	// GrowTolerance admits a neighbor whose (K, H) stay within this
	// relative distance of the running region mean.
	GrowTolerance float64
	// MinRegionFaces merges smaller regions into their closest neighbor.
	MinRegionFaces int

	// SampleDensity is the surface sampling density for the spectral
	// operator build.
	SampleDensity int
	// Eigenfunctions is how many nontrivial low eigenfunctions the
	// spectral lens partitions on.
	Eigenfunctions int
	// UseKMeans switches the spectral lens from sign-pattern nodal
	// domains to k-means over per-face eigenfunction vectors.
	UseKMeans bool
	KMeansK   int
	// MaxSolveIterations caps the eigensolver; zero uses its default.
	MaxSolveIterations int
}

// DefaultParams returns the baseline configuration.
func DefaultParams() Params {
	return Params{
		GridN:            4,
		CurvatureEpsilon: 1e-4,
		RidgePercentile:  0.95,
		ValleyPercentile: 0.05,
		GrowTolerance:    0.5,
		MinRegionFaces:   3,
		SampleDensity:    3,
		Eigenfunctions:   4,
		KMeansK:          4,
	}
}

// fingerprint hashes the parameter set for cache keying.
func (p Params) fingerprint() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(u uint64) {
		for i := 0; i < 8; i++ {
			buf[i] = byte(u >> (8 * i))
		}
		h.Write(buf[:])
	}
	put(uint64(p.GridN))
	put(math.Float64bits(p.CurvatureEpsilon))
	put(math.Float64bits(p.RidgePercentile))
	put(math.Float64bits(p.ValleyPercentile))
	put(math.Float64bits(p.GrowTolerance))
	put(uint64(p.MinRegionFaces))
	put(uint64(p.SampleDensity))
	put(uint64(p.Eigenfunctions))
	if p.UseKMeans {
		put(1)
	} else {
		put(0)
	}
	put(uint64(p.KMeansK))
	put(uint64(p.MaxSolveIterations))
	return h.Sum64()
}
