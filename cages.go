package subd

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Canonical cages used across tests, examples and calibration.

// CubeCage returns the axis-aligned cube of the given half side length
// centered on the origin: 8 vertices, 6 quads, outward orientation.
func CubeCage(half float64) ControlCage {
	h := half
	return ControlCage{
		Vertices: []r3.Vec{
			{X: -h, Y: -h, Z: -h}, // 0
			{X: h, Y: -h, Z: -h},  // 1
			{X: h, Y: h, Z: -h},   // 2
			{X: -h, Y: h, Z: -h},  // 3
			{X: -h, Y: -h, Z: h},  // 4
			{X: h, Y: -h, Z: h},   // 5
			{X: h, Y: h, Z: h},    // 6
			{X: -h, Y: h, Z: h},   // 7
		},
		Faces: [][]int{
			{3, 2, 1, 0}, // bottom (-Z)
			{4, 5, 6, 7}, // top (+Z)
			{0, 1, 5, 4}, // -Y
			{1, 2, 6, 5}, // +X
			{2, 3, 7, 6}, // +Y
			{3, 0, 4, 7}, // -X
		},
	}
}

// PlaneCage returns an open flat grid of nx by ny unit quads in the z=0
// plane. Its limit surface is exactly planar.
func PlaneCage(nx, ny int) ControlCage {
	if nx < 1 || ny < 1 {
		panic("PlaneCage needs at least one quad per axis")
	}
	var c ControlCage
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			c.Vertices = append(c.Vertices, r3.Vec{X: float64(i), Y: float64(j)})
		}
	}
	at := func(i, j int) int { return j*(nx+1) + i }
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			c.Faces = append(c.Faces, []int{at(i, j), at(i+1, j), at(i+1, j+1), at(i, j+1)})
		}
	}
	return c
}

// SaddleCage returns an open grid cage over z = k*(x^2 - y^2) sampled on
// [-1,1]^2, a hyperbolic (negative Gaussian curvature) shape.
func SaddleCage(n int, k float64) ControlCage {
	c := PlaneCage(n, n)
	for i := range c.Vertices {
		x := 2*c.Vertices[i].X/float64(n) - 1
		y := 2*c.Vertices[i].Y/float64(n) - 1
		c.Vertices[i] = r3.Vec{X: x, Y: y, Z: k * (x*x - y*y)}
	}
	return c
}

// SphereCage returns a closed cage whose limit surface approximates a sphere
// of the given radius. It subdivides a cube `level` times, normalizing
// vertices onto the sphere after each round, then compensates for the
// shrinkage of Catmull-Clark limits so sampled limit radii land near radius.
// The approximation tightens as level grows; level 3 keeps the limit radius
// within a fraction of a percent.
func SphereCage(radius float64, level int) ControlCage {
	cage := CubeCage(1)
	project := func(c *ControlCage, r float64) {
		for i := range c.Vertices {
			n := r3.Norm(c.Vertices[i])
			if n > 0 {
				c.Vertices[i] = r3.Scale(r/n, c.Vertices[i])
			}
		}
	}
	project(&cage, radius)
	for l := 0; l < level; l++ {
		cage = subdivideCage(cage)
		project(&cage, radius)
	}
	// The limit surface of a convex cage lies inside the cage. Push control
	// points out by the mean observed limit shrink of projected cube meshes
	// so the limit lands on the requested radius.
	shrink := limitShrink(cage, radius)
	project(&cage, radius/shrink)
	return cage
}

// subdivideCage applies one linear Catmull-Clark round to a cage, returning
// an all-quad cage. Used only for cage construction; limit evaluation never
// goes through here.
func subdivideCage(c ControlCage) ControlCage {
	rm := newRefMesh(c)
	child, stencils, _ := rm.refine()
	out := ControlCage{
		Vertices: make([]r3.Vec, child.numVerts),
		Faces:    child.faces,
	}
	for i, st := range stencils {
		var p r3.Vec
		for _, t := range st {
			p = r3.Add(p, r3.Scale(t.w, c.Vertices[t.idx]))
		}
		out.Vertices[i] = p
	}
	return out
}

// limitShrink estimates the ratio between the limit radius and the control
// radius of a sphere-projected cage by applying the limit vertex stencil at
// a few vertices.
func limitShrink(c ControlCage, radius float64) float64 {
	rm := newRefMesh(c)
	sum, n := 0.0, 0
	for vi := 0; vi < rm.numVerts && n < 16; vi++ {
		if rm.boundary[vi] || len(rm.vertFaces[vi]) != 4 {
			continue
		}
		// Interior valence-4 limit mask: (16 v + 4 sum(edge) + sum(diag))/36.
		p := r3.Scale(16, c.Vertices[vi])
		for _, nb := range rm.vertEdges[vi] {
			p = r3.Add(p, r3.Scale(4, c.Vertices[nb]))
		}
		for _, fc := range rm.vertFaces[vi] {
			f := rm.faces[fc.face]
			d := f[(fc.corner+2)%len(f)]
			p = r3.Add(p, c.Vertices[d])
		}
		sum += r3.Norm(r3.Scale(1.0/36.0, p)) / radius
		n++
	}
	if n == 0 {
		return 1
	}
	s := sum / float64(n)
	return clamp(s, 0.5, 1)
}
