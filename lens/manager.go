package lens

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/moldwright/subd"
)

// Manager runs lenses with memoized results. Cache entries key on the
// evaluator identity, lens name, parameter fingerprint and the pinned face
// set, so a repeat analysis is a lookup. Concurrent calls on the same key
// share one computation.
type Manager struct {
	mu    sync.RWMutex
	cache map[string][]Region
	sf    singleflight.Group
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{cache: make(map[string][]Region)}
}

// Analyze discovers regions with the named lens. Regions in pinned with
// the Pinned flag set are excluded from the face pool handed to the lens
// and re-appended to the result unchanged. Newly discovered regions are
// copies; callers may mutate them freely.
func (m *Manager) Analyze(ctx context.Context, ev *subd.Evaluator, lensName string, p Params, pinned []Region) ([]Region, error) {
	l, ok := Lookup(lensName)
	if !ok {
		return nil, fmt.Errorf("lens: no lens registered as %q", lensName)
	}

	pinnedFaces := make(map[int]bool)
	var passthrough []Region
	for _, r := range pinned {
		if !r.Pinned {
			continue
		}
		passthrough = append(passthrough, r)
		for _, f := range r.Faces {
			pinnedFaces[f] = true
		}
	}

	key := m.key(ev, lensName, p, passthrough)
	m.mu.RLock()
	hit, ok := m.cache[key]
	m.mu.RUnlock()
	if !ok {
		v, err, _ := m.sf.Do(key, func() (interface{}, error) {
			// A racing caller may have filled the cache before we
			// entered the group.
			m.mu.RLock()
			cached, ok := m.cache[key]
			m.mu.RUnlock()
			if ok {
				return cached, nil
			}
			discovered, err := l.Discover(ctx, ev, p, pinnedFaces)
			if err != nil {
				return nil, err
			}
			m.mu.Lock()
			m.cache[key] = discovered
			m.mu.Unlock()
			return discovered, nil
		})
		if err != nil {
			return nil, err
		}
		hit = v.([]Region)
	}

	out := copyRegions(hit)
	out = append(out, passthrough...)
	return out, nil
}

// Invalidate drops every cached result for the evaluator, for callers that
// released its handle.
func (m *Manager) Invalidate(ev *subd.Evaluator) {
	prefix := fmt.Sprintf("%d/", ev.ID())
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.cache {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.cache, k)
		}
	}
}

func (m *Manager) key(ev *subd.Evaluator, lensName string, p Params, pinned []Region) string {
	ids := make([]string, len(pinned))
	for i, r := range pinned {
		ids[i] = r.ID.String()
	}
	sort.Strings(ids)
	return fmt.Sprintf("%d/%s/%x/%v", ev.ID(), lensName, p.fingerprint(), ids)
}

func copyRegions(rs []Region) []Region {
	out := make([]Region, len(rs))
	for i, r := range rs {
		out[i] = r
		out[i].Faces = append([]int(nil), r.Faces...)
		if r.Metadata != nil {
			out[i].Metadata = make(map[string]string, len(r.Metadata))
			for k, v := range r.Metadata {
				out[i].Metadata[k] = v
			}
		}
	}
	return out
}

// Ranking orders one analyzed result set by coherence.
type Ranking struct {
	Index     int
	MeanUnity float64
}

// Compare ranks result sets by mean unity strength, best first. Index
// refers to the argument position.
func (m *Manager) Compare(sets ...[]Region) []Ranking {
	out := make([]Ranking, len(sets))
	for i, rs := range sets {
		sum := 0.0
		for _, r := range rs {
			sum += r.UnityStrength
		}
		mean := 0.0
		if len(rs) > 0 {
			mean = sum / float64(len(rs))
		}
		out[i] = Ranking{Index: i, MeanUnity: mean}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].MeanUnity > out[b].MeanUnity
	})
	return out
}
