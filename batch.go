package subd

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BatchEvaluate evaluates many parametric points, sharding the work across
// CPUs. Queries are independent and the handle is read-only, so no locking
// is involved; a single call amortizes the scheduling overhead over the
// whole slice. Results are index-aligned with pts. The first failing point
// aborts the batch and its error is returned.
func (ev *Evaluator) BatchEvaluate(pts []ParametricPoint) ([]Sample, error) {
	out := make([]Sample, len(pts))
	var g errgroup.Group
	nw := runtime.GOMAXPROCS(0)
	chunk := (len(pts) + nw - 1) / nw
	if chunk < 64 {
		chunk = 64
	}
	for start := 0; start < len(pts); start += chunk {
		end := start + chunk
		if end > len(pts) {
			end = len(pts)
		}
		s, e := start, end
		g.Go(func() error {
			for i := s; i < e; i++ {
				smp, err := ev.Evaluate(pts[i])
				if err != nil {
					return err
				}
				out[i] = smp
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// BatchEvaluateWithSecondDerivatives is the batched form of
// EvaluateWithSecondDerivatives, used by the curvature analyzer.
func (ev *Evaluator) BatchEvaluateWithSecondDerivatives(pts []ParametricPoint) ([]SecondDerivatives, error) {
	out := make([]SecondDerivatives, len(pts))
	var g errgroup.Group
	nw := runtime.GOMAXPROCS(0)
	chunk := (len(pts) + nw - 1) / nw
	if chunk < 64 {
		chunk = 64
	}
	for start := 0; start < len(pts); start += chunk {
		end := start + chunk
		if end > len(pts) {
			end = len(pts)
		}
		s, e := start, end
		g.Go(func() error {
			for i := s; i < e; i++ {
				d, err := ev.EvaluateWithSecondDerivatives(pts[i])
				if err != nil {
					return err
				}
				out[i] = d
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
