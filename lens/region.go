// Package lens discovers coherent surface regions on a limit surface. Two
// lenses are built in: a differential lens growing regions from curvature
// signatures and a spectral lens partitioning Laplace-Beltrami nodal
// domains. A Manager memoizes lens runs per evaluator and parameter set.
package lens

import (
	"sort"

	"github.com/google/uuid"
)

// Region is a set of control cage faces discovered as one coherent unit.
// Faces index the cage, never a display triangulation. A pinned region is
// excluded from re-analysis and passes through Manager.Analyze unchanged.
type Region struct {
	ID            uuid.UUID
	Faces         []int
	Lens          string
	UnityStrength float64
	Pinned        bool
	Metadata      map[string]string
}

// newRegion builds a region with sorted faces and a fresh id.
func newRegion(lens string, faces []int, unity float64, meta map[string]string) Region {
	sorted := append([]int(nil), faces...)
	sort.Ints(sorted)
	return Region{
		ID:            uuid.New(),
		Faces:         sorted,
		Lens:          lens,
		UnityStrength: unity,
		Metadata:      meta,
	}
}

// HasFace reports region membership. Faces are kept sorted.
func (r *Region) HasFace(f int) bool {
	i := sort.SearchInts(r.Faces, f)
	return i < len(r.Faces) && r.Faces[i] == f
}
