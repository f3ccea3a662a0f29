package subd

import "gonum.org/v1/gonum/spatial/r3"

// Uniform cubic B-spline basis over one knot span, t in [0,1]. Regular
// Catmull-Clark patches are exactly these bicubic patches.

func bsplineWeights(t float64) [4]float64 {
	s := 1 - t
	return [4]float64{
		s * s * s / 6,
		(3*t*t*t - 6*t*t + 4) / 6,
		(-3*t*t*t + 3*t*t + 3*t + 1) / 6,
		t * t * t / 6,
	}
}

func bsplineDWeights(t float64) [4]float64 {
	s := 1 - t
	return [4]float64{
		-s * s / 2,
		(9*t*t - 12*t) / 6,
		(-9*t*t + 6*t + 3) / 6,
		t * t / 2,
	}
}

func bsplineD2Weights(t float64) [4]float64 {
	return [4]float64{
		1 - t,
		3*t - 2,
		-3*t + 1,
		t,
	}
}

// bicubicPatch evaluates position and all derivatives of a 16 point control
// grid. The grid is indexed pts[i*4+j] with i along u and j along v; the
// patch surface spans the middle quad of the grid.
func bicubicPatch(pts *[16]r3.Vec, u, v float64) SecondDerivatives {
	bu := bsplineWeights(u)
	bv := bsplineWeights(v)
	du := bsplineDWeights(u)
	dv := bsplineDWeights(v)
	d2u := bsplineD2Weights(u)
	d2v := bsplineD2Weights(v)

	var out SecondDerivatives
	for i := 0; i < 4; i++ {
		var row, drow, d2row r3.Vec
		for j := 0; j < 4; j++ {
			p := pts[i*4+j]
			row = r3.Add(row, r3.Scale(bv[j], p))
			drow = r3.Add(drow, r3.Scale(dv[j], p))
			d2row = r3.Add(d2row, r3.Scale(d2v[j], p))
		}
		out.Position = r3.Add(out.Position, r3.Scale(bu[i], row))
		out.Du = r3.Add(out.Du, r3.Scale(du[i], row))
		out.Dv = r3.Add(out.Dv, r3.Scale(bu[i], drow))
		out.Duu = r3.Add(out.Duu, r3.Scale(d2u[i], row))
		out.Duv = r3.Add(out.Duv, r3.Scale(du[i], drow))
		out.Dvv = r3.Add(out.Dvv, r3.Scale(bu[i], d2row))
	}
	return out
}
