package lens

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/moldwright/subd"
)

func TestDifferentialSphereSingleRegion(t *testing.T) {
	ev, err := subd.Build(subd.SphereCage(1, 2))
	if err != nil {
		t.Fatalf("build sphere: %v", err)
	}
	defer ev.Release()

	var dl Differential
	regions, err := dl.Discover(context.Background(), ev, DefaultParams(), nil)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("got %d regions on a sphere, want exactly 1", len(regions))
	}
	r := regions[0]
	if len(r.Faces) != ev.NumFaces() {
		t.Fatalf("region covers %d of %d faces", len(r.Faces), ev.NumFaces())
	}
	if r.UnityStrength <= 0.8 {
		t.Fatalf("unity strength %g, want > 0.8", r.UnityStrength)
	}
	if r.Metadata["classification"] != classElliptic {
		t.Errorf("classification %q, want %q", r.Metadata["classification"], classElliptic)
	}
}

func TestDifferentialSaddleHyperbolic(t *testing.T) {
	ev, err := subd.Build(subd.SaddleCage(6, 0.8))
	if err != nil {
		t.Fatalf("build saddle: %v", err)
	}
	defer ev.Release()

	var dl Differential
	regions, err := dl.Discover(context.Background(), ev, DefaultParams(), nil)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	for _, r := range regions {
		if r.Metadata["classification"] == classHyperbolic {
			return
		}
	}
	t.Fatalf("no hyperbolic region among %d regions", len(regions))
}

func TestSpectralLensCoversSphere(t *testing.T) {
	ev, err := subd.Build(subd.SphereCage(1, 1))
	if err != nil {
		t.Fatalf("build sphere: %v", err)
	}
	defer ev.Release()

	var sl Spectral
	regions, err := sl.Discover(context.Background(), ev, DefaultParams(), nil)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(regions) == 0 {
		t.Fatal("spectral lens returned no regions")
	}
	covered := map[int]bool{}
	for _, r := range regions {
		if r.Lens != "spectral" {
			t.Fatalf("region lens %q, want spectral", r.Lens)
		}
		if r.UnityStrength <= 0 || r.UnityStrength > 1 {
			t.Fatalf("unity strength %g outside (0,1]", r.UnityStrength)
		}
		for _, f := range r.Faces {
			if covered[f] {
				t.Fatalf("face %d in two regions", f)
			}
			covered[f] = true
		}
	}
	if len(covered) != ev.NumFaces() {
		t.Fatalf("regions cover %d of %d faces", len(covered), ev.NumFaces())
	}
}

func TestSpectralLensKMeans(t *testing.T) {
	ev, err := subd.Build(subd.SphereCage(1, 1))
	if err != nil {
		t.Fatalf("build sphere: %v", err)
	}
	defer ev.Release()

	p := DefaultParams()
	p.UseKMeans = true
	p.KMeansK = 3
	var sl Spectral
	regions, err := sl.Discover(context.Background(), ev, p, nil)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(regions) == 0 {
		t.Fatal("k-means partition returned no regions")
	}
}

// stubLens counts discoveries so cache behavior is observable.
type stubLens struct {
	name  string
	delay time.Duration
	calls atomic.Int32
}

func (s *stubLens) Name() string { return s.name }

func (s *stubLens) Discover(ctx context.Context, ev *subd.Evaluator, p Params, pinned map[int]bool) ([]Region, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	var faces []int
	for f := 0; f < ev.NumFaces(); f++ {
		if !pinned[f] {
			faces = append(faces, f)
		}
	}
	return []Region{newRegion(s.name, faces, 0.5, nil)}, nil
}

func TestManagerCaches(t *testing.T) {
	stub := &stubLens{name: "stub-cache"}
	Register(stub)

	ev, err := subd.Build(subd.CubeCage(1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer ev.Release()

	m := NewManager()
	p := DefaultParams()
	for i := 0; i < 3; i++ {
		if _, err := m.Analyze(context.Background(), ev, stub.name, p, nil); err != nil {
			t.Fatalf("analyze %d: %v", i, err)
		}
	}
	if n := stub.calls.Load(); n != 1 {
		t.Fatalf("lens ran %d times for one key, want 1", n)
	}
	p.GridN++
	if _, err := m.Analyze(context.Background(), ev, stub.name, p, nil); err != nil {
		t.Fatalf("analyze changed params: %v", err)
	}
	if n := stub.calls.Load(); n != 2 {
		t.Fatalf("lens ran %d times for two keys, want 2", n)
	}
}

func TestManagerSingleFlight(t *testing.T) {
	stub := &stubLens{name: "stub-flight", delay: 50 * time.Millisecond}
	Register(stub)

	ev, err := subd.Build(subd.CubeCage(1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer ev.Release()

	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Analyze(context.Background(), ev, stub.name, DefaultParams(), nil); err != nil {
				t.Errorf("analyze: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := stub.calls.Load(); n != 1 {
		t.Fatalf("lens ran %d times under concurrent same-key calls, want 1", n)
	}
}

func TestManagerPinnedPassthrough(t *testing.T) {
	ev, err := subd.Build(subd.CubeCage(1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer ev.Release()

	pinned := newRegion("differential", []int{0, 2}, 0.93, map[string]string{
		"classification": "elliptic",
		"note":           "kept by hand",
	})
	pinned.Pinned = true

	m := NewManager()
	out, err := m.Analyze(context.Background(), ev, "differential", DefaultParams(), []Region{pinned})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var got *Region
	for i := range out {
		if out[i].ID == pinned.ID {
			got = &out[i]
			continue
		}
		for _, f := range out[i].Faces {
			if f == 0 || f == 2 {
				t.Fatalf("pinned face %d reappeared in discovered region %s", f, out[i].ID)
			}
		}
	}
	if got == nil {
		t.Fatal("pinned region missing from result")
	}
	if !reflect.DeepEqual(*got, pinned) {
		t.Fatalf("pinned region changed: got %+v want %+v", *got, pinned)
	}
}

func TestManagerUnknownLens(t *testing.T) {
	ev, err := subd.Build(subd.CubeCage(1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer ev.Release()
	if _, err := NewManager().Analyze(context.Background(), ev, "no-such-lens", DefaultParams(), nil); err == nil {
		t.Fatal("expected error for unregistered lens")
	}
}

func TestCompareRanksByMeanUnity(t *testing.T) {
	low := []Region{{UnityStrength: 0.2}, {UnityStrength: 0.4}}
	high := []Region{{UnityStrength: 0.9}, {UnityStrength: 0.7}}
	ranks := NewManager().Compare(low, high)
	if ranks[0].Index != 1 || ranks[1].Index != 0 {
		t.Fatalf("ranking %+v, want high set first", ranks)
	}
	if ranks[0].MeanUnity != 0.8 {
		t.Fatalf("mean unity %g, want 0.8", ranks[0].MeanUnity)
	}
}
