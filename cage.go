package subd

import (
	"hash/fnv"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Crease marks a cage edge as semisharp. Sharpness 0 is smooth, values are
// capped at 8; the edge loses one unit of sharpness per subdivision round.
type Crease struct {
	V0, V1    int
	Sharpness float64
}

// ControlCage is the coarse control mesh handed to Build. Faces are ordered
// vertex index lists (quads or n-gons, counter-clockwise seen from outside).
// The cage must be two-manifold; open boundaries are allowed as long as no
// extraordinary vertex lies on one. A cage is treated as immutable once a
// handle has been built from it.
type ControlCage struct {
	Vertices []r3.Vec
	Faces    [][]int
	Creases  []Crease
}

// NumFaces returns the number of cage faces.
func (c *ControlCage) NumFaces() int { return len(c.Faces) }

// Validate checks the cage invariants that Build relies on. It returns a
// *TopologyError describing the first defect found.
func (c *ControlCage) Validate() error {
	nv := len(c.Vertices)
	if nv == 0 || len(c.Faces) == 0 {
		return &TopologyError{Face: -1, Err: ErrDegenerateFace}
	}
	type edgeUse struct{ count int }
	edges := make(map[[2]int]*edgeUse)
	directed := make(map[[2]int]bool)
	for fi, f := range c.Faces {
		if len(f) < 3 {
			return &TopologyError{Face: fi, Err: ErrDegenerateFace}
		}
		seen := make(map[int]bool, len(f))
		for _, vi := range f {
			if vi < 0 || vi >= nv {
				return &TopologyError{Face: fi, Err: ErrVertexOutOfRange}
			}
			if seen[vi] {
				return &TopologyError{Face: fi, Err: ErrDegenerateFace}
			}
			seen[vi] = true
		}
		for i := range f {
			a, b := f[i], f[(i+1)%len(f)]
			// A directed edge reused means two faces disagree on winding.
			if directed[[2]int{a, b}] {
				return &TopologyError{Face: fi, Edge: [2]int{a, b}, Err: ErrNonManifold}
			}
			directed[[2]int{a, b}] = true
			k := edgeKey(a, b)
			u := edges[k]
			if u == nil {
				u = &edgeUse{}
				edges[k] = u
			}
			u.count++
			if u.count > 2 {
				return &TopologyError{Face: fi, Edge: k, Err: ErrNonManifold}
			}
		}
	}
	for _, cr := range c.Creases {
		if cr.V0 < 0 || cr.V0 >= nv || cr.V1 < 0 || cr.V1 >= nv || cr.V0 == cr.V1 {
			return &TopologyError{Face: -1, Edge: [2]int{cr.V0, cr.V1}, Err: ErrVertexOutOfRange}
		}
		if _, ok := edges[edgeKey(cr.V0, cr.V1)]; !ok {
			return &TopologyError{Face: -1, Edge: [2]int{cr.V0, cr.V1}, Err: ErrNonManifold}
		}
	}
	// Boundary vertices with three or more incident faces cannot be handled
	// by the reflected-ring evaluation scheme.
	faceCount := make([]int, nv)
	onBoundary := make([]bool, nv)
	for _, f := range c.Faces {
		for _, vi := range f {
			faceCount[vi]++
		}
	}
	for k, u := range edges {
		if u.count == 1 {
			onBoundary[k[0]] = true
			onBoundary[k[1]] = true
		}
	}
	for vi := 0; vi < nv; vi++ {
		if onBoundary[vi] && faceCount[vi] > 2 {
			return &TopologyError{Face: -1, Edge: [2]int{vi, vi}, Err: ErrBoundaryExtraordinary}
		}
	}
	return nil
}

// edgeKey returns the canonical (lower index first) key for an edge.
func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// fingerprint hashes the cage contents. The Builder uses it to key handles so
// the same cage never refines twice for the same tessellation level.
func (c *ControlCage) fingerprint() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(u uint64) {
		for i := 0; i < 8; i++ {
			buf[i] = byte(u >> (8 * i))
		}
		h.Write(buf[:])
	}
	for _, v := range c.Vertices {
		put(math.Float64bits(v.X))
		put(math.Float64bits(v.Y))
		put(math.Float64bits(v.Z))
	}
	for _, f := range c.Faces {
		put(uint64(len(f)))
		for _, vi := range f {
			put(uint64(vi))
		}
	}
	for _, cr := range c.Creases {
		put(uint64(cr.V0))
		put(uint64(cr.V1))
		put(math.Float64bits(cr.Sharpness))
	}
	return h.Sum64()
}
