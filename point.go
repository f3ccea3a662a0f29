package subd

import "gonum.org/v1/gonum/spatial/r3"

// ParametricPoint addresses a location on the limit surface. Face indexes the
// control cage face list and u,v lie in [0,1]. For quad faces (u,v) spans the
// face with u running from corner 0 to corner 1 and v from corner 0 to corner
// 3. For an n-gon face the u interval is split into n equal sectors, one per
// corner quad of the quadrangulated face: sector s covers
// u in [s/n, (s+1)/n) with the sector-local coordinate stretched back to
// [0,1]. A ParametricPoint is the only way to address the surface; mesh
// vertex indices never are.
type ParametricPoint struct {
	Face int
	U, V float64
}

// Sample is a limit surface position with its unit normal.
type Sample struct {
	Position r3.Vec
	Normal   r3.Vec
}

// Derivatives holds a limit position with first parametric derivatives.
type Derivatives struct {
	Position r3.Vec
	Du, Dv   r3.Vec
}

// SecondDerivatives extends Derivatives with the three second derivatives.
type SecondDerivatives struct {
	Position      r3.Vec
	Du, Dv        r3.Vec
	Duu, Dvv, Duv r3.Vec
}
