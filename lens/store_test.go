package lens

import (
	"errors"
	"testing"
)

func TestStorePutPinnedNotOverwritten(t *testing.T) {
	s := NewStore()
	r := newRegion("differential", []int{1, 2, 3}, 0.7, nil)
	if err := s.Put(r); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Pin(r.ID, true); err != nil {
		t.Fatalf("pin: %v", err)
	}
	r.UnityStrength = 0.1
	if err := s.Put(r); !errors.Is(err, ErrPinned) {
		t.Fatalf("put over pinned: err = %v, want ErrPinned", err)
	}
	got, ok := s.Get(r.ID)
	if !ok || got.UnityStrength != 0.7 {
		t.Fatalf("pinned region mutated: %+v", got)
	}
	if err := s.Remove(r.ID); !errors.Is(err, ErrPinned) {
		t.Fatalf("remove pinned: err = %v, want ErrPinned", err)
	}
}

func TestStoreMerge(t *testing.T) {
	s := NewStore()
	a := newRegion("differential", []int{0, 1}, 0.6, nil)
	b := newRegion("differential", []int{2, 3, 4, 5}, 0.9, nil)
	if err := s.Put(a); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := s.Put(b); err != nil {
		t.Fatalf("put b: %v", err)
	}
	merged, err := s.Merge(a.ID, b.ID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(merged.Faces) != 6 {
		t.Fatalf("merged faces %v, want 6 faces", merged.Faces)
	}
	want := (0.6*2 + 0.9*4) / 6
	if diff := merged.UnityStrength - want; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("merged unity %g, want %g", merged.UnityStrength, want)
	}
	if _, ok := s.Get(a.ID); ok {
		t.Fatal("merged-away region still present")
	}
	if got := s.List(); len(got) != 1 {
		t.Fatalf("store holds %d regions after merge, want 1", len(got))
	}
}

func TestStoreSplit(t *testing.T) {
	s := NewStore()
	r := newRegion("spectral", []int{0, 1, 2, 3}, 0.8, map[string]string{"domain": "++"})
	if err := s.Put(r); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Split(r.ID, [][]int{{0, 1}, {2}}); err == nil {
		t.Fatal("partial split should fail")
	}
	parts, err := s.Split(r.ID, [][]int{{0, 1}, {2, 3}})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	for _, p := range parts {
		if p.Lens != "spectral" || p.Metadata["domain"] != "++" {
			t.Fatalf("part lost provenance: %+v", p)
		}
	}
	if _, ok := s.Get(r.ID); ok {
		t.Fatal("split region still present")
	}
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	defer cancel()

	r := newRegion("differential", []int{7}, 0.5, nil)
	if err := s.Put(r); err != nil {
		t.Fatalf("put: %v", err)
	}
	ev := <-ch
	if ev.Kind != EventPut || len(ev.Regions) != 1 || ev.Regions[0].ID != r.ID {
		t.Fatalf("unexpected event %+v", ev)
	}
	if err := s.Pin(r.ID, true); err != nil {
		t.Fatalf("pin: %v", err)
	}
	ev = <-ch
	if ev.Kind != EventPin || !ev.Regions[0].Pinned {
		t.Fatalf("unexpected pin event %+v", ev)
	}
	cancel()
	if _, open := <-ch; open {
		t.Fatal("channel still open after cancel")
	}
}
