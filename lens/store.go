package lens

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrPinned is returned when a write would silently replace a pinned
// region. Pinned state must be cleared explicitly first.
var ErrPinned = errors.New("region is pinned")

// ErrNotFound is returned for operations on unknown region ids.
var ErrNotFound = errors.New("region not found")

// EventKind tags store change notifications.
type EventKind int

const (
	EventPut EventKind = iota
	EventRemove
	EventPin
	EventMerge
	EventSplit
)

// Event describes one store mutation. Regions carries the regions after
// the mutation (for EventRemove, the removed region).
type Event struct {
	Kind    EventKind
	Regions []Region
}

// Store is the shared region state container. UI-facing layers subscribe
// for change events instead of polling; nothing here is global.
type Store struct {
	mu      sync.RWMutex
	regions map[uuid.UUID]Region
	subs    map[int]chan Event
	nextSub int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		regions: make(map[uuid.UUID]Region),
		subs:    make(map[int]chan Event),
	}
}

// Put inserts or replaces a region. Replacing a pinned region fails with
// ErrPinned.
func (s *Store) Put(r Region) error {
	s.mu.Lock()
	if old, ok := s.regions[r.ID]; ok && old.Pinned {
		s.mu.Unlock()
		return fmt.Errorf("put region %s: %w", r.ID, ErrPinned)
	}
	s.regions[r.ID] = r
	s.mu.Unlock()
	s.notify(Event{Kind: EventPut, Regions: []Region{r}})
	return nil
}

// Get returns the region with the given id.
func (s *Store) Get(id uuid.UUID) (Region, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regions[id]
	return r, ok
}

// List returns all regions ordered by id.
func (s *Store) List() []Region {
	s.mu.RLock()
	out := make([]Region, 0, len(s.regions))
	for _, r := range s.regions {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

// Pin sets or clears the pinned flag.
func (s *Store) Pin(id uuid.UUID, pinned bool) error {
	s.mu.Lock()
	r, ok := s.regions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("pin region %s: %w", id, ErrNotFound)
	}
	r.Pinned = pinned
	s.regions[id] = r
	s.mu.Unlock()
	s.notify(Event{Kind: EventPin, Regions: []Region{r}})
	return nil
}

// Merge unions two or more regions into a fresh one, removing the
// originals. Unity blends by face count; the lens name carries over when
// all parts agree, otherwise it becomes "merged".
func (s *Store) Merge(ids ...uuid.UUID) (Region, error) {
	if len(ids) < 2 {
		return Region{}, errors.New("merge needs at least two regions")
	}
	s.mu.Lock()
	parts := make([]Region, 0, len(ids))
	for _, id := range ids {
		r, ok := s.regions[id]
		if !ok {
			s.mu.Unlock()
			return Region{}, fmt.Errorf("merge region %s: %w", id, ErrNotFound)
		}
		parts = append(parts, r)
	}
	merged := parts[0]
	merged.ID = uuid.New()
	merged.Pinned = false
	merged.Faces = append([]int(nil), parts[0].Faces...)
	for _, p := range parts[1:] {
		merged = absorb(merged, p)
		if p.Lens != merged.Lens {
			merged.Lens = "merged"
		}
	}
	for _, id := range ids {
		delete(s.regions, id)
	}
	s.regions[merged.ID] = merged
	s.mu.Unlock()
	s.notify(Event{Kind: EventMerge, Regions: []Region{merged}})
	return merged, nil
}

// Split replaces a region with one region per face subset. The subsets
// must partition the region's faces exactly.
func (s *Store) Split(id uuid.UUID, parts [][]int) ([]Region, error) {
	if len(parts) < 2 {
		return nil, errors.New("split needs at least two parts")
	}
	s.mu.Lock()
	r, ok := s.regions[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("split region %s: %w", id, ErrNotFound)
	}
	seen := make(map[int]bool)
	total := 0
	for _, p := range parts {
		for _, f := range p {
			if !r.HasFace(f) || seen[f] {
				s.mu.Unlock()
				return nil, fmt.Errorf("split region %s: face %d not exactly once in parts", id, f)
			}
			seen[f] = true
			total++
		}
	}
	if total != len(r.Faces) {
		s.mu.Unlock()
		return nil, fmt.Errorf("split region %s: parts cover %d of %d faces", id, total, len(r.Faces))
	}
	out := make([]Region, len(parts))
	for i, p := range parts {
		out[i] = newRegion(r.Lens, p, r.UnityStrength, copyMeta(r.Metadata))
	}
	delete(s.regions, id)
	for _, nr := range out {
		s.regions[nr.ID] = nr
	}
	s.mu.Unlock()
	s.notify(Event{Kind: EventSplit, Regions: out})
	return out, nil
}

// Remove deletes a region. Pinned regions must be unpinned first.
func (s *Store) Remove(id uuid.UUID) error {
	s.mu.Lock()
	r, ok := s.regions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("remove region %s: %w", id, ErrNotFound)
	}
	if r.Pinned {
		s.mu.Unlock()
		return fmt.Errorf("remove region %s: %w", id, ErrPinned)
	}
	delete(s.regions, id)
	s.mu.Unlock()
	s.notify(Event{Kind: EventRemove, Regions: []Region{r}})
	return nil
}

// Subscribe registers a change listener. Events are delivered best-effort
// on a buffered channel; a subscriber that stops draining loses events
// rather than blocking the store. The returned func cancels the
// subscription and closes the channel.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()
	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
