package subd

import (
	"math"
	"testing"
)

func TestEigenPatchStructure(t *testing.T) {
	for _, valence := range []int{3, 5, 6, 7} {
		ep, err := eigenPatchFor(valence)
		if err != nil {
			// buildEigenPatch verifies every subdivision and extraction row
			// is an affine combination of the ring, so an error here means
			// stencil weight escaped the template ring.
			t.Fatalf("valence %d: %v", valence, err)
		}
		if ep.k != 2*valence+8 {
			t.Fatalf("valence %d: ring size %d, want %d", valence, ep.k, 2*valence+8)
		}
		if d := math.Abs(ep.lambda[ep.iLimit] - 1); d > 1e-8 {
			t.Errorf("valence %d: unit eigenvalue off by %g", valence, d)
		}
		for _, i := range ep.iTan {
			lam := ep.lambda[i]
			if lam <= 0 || lam >= 1 {
				t.Errorf("valence %d: subdominant eigenvalue %g outside (0,1)", valence, lam)
			}
		}
	}
}
