package lens

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/moldwright/subd"
)

// Lens is one region-discovery strategy. Discover never sees pinned faces:
// the manager subtracts them from the pool and re-inserts their regions
// afterwards. Implementations abort on the first analysis error instead of
// skipping samples.
type Lens interface {
	Name() string
	Discover(ctx context.Context, ev *subd.Evaluator, p Params, pinned map[int]bool) ([]Region, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Lens{}
)

// Register adds a lens under its name. Registering a duplicate name is a
// programmer error and panics.
func Register(l Lens) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[l.Name()]; dup {
		panic(fmt.Sprintf("lens: duplicate registration of %q", l.Name()))
	}
	registry[l.Name()] = l
}

// Lookup returns the registered lens with the given name.
func Lookup(name string) (Lens, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	l, ok := registry[name]
	return l, ok
}

// Names lists registered lenses, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register(&Differential{})
	Register(&Spectral{})
}

// connectedComponents splits a face set into edge-adjacent components,
// each sorted ascending. Components come back ordered by their lowest
// face so the split is deterministic.
func connectedComponents(ev *subd.Evaluator, faces []int) [][]int {
	in := make(map[int]bool, len(faces))
	for _, f := range faces {
		in[f] = true
	}
	seen := make(map[int]bool, len(faces))
	var comps [][]int
	sorted := append([]int(nil), faces...)
	sort.Ints(sorted)
	for _, start := range sorted {
		if seen[start] {
			continue
		}
		comp := []int{start}
		seen[start] = true
		for at := 0; at < len(comp); at++ {
			for _, nb := range ev.FaceNeighbors(comp[at]) {
				if in[nb] && !seen[nb] {
					seen[nb] = true
					comp = append(comp, nb)
				}
			}
		}
		sort.Ints(comp)
		comps = append(comps, comp)
	}
	return comps
}

// mergeSmall folds every region under minFaces into the adjacent region
// with the closest signature, by the caller's distance function. Regions
// with no adjacent sibling stay as they are.
func mergeSmall(ev *subd.Evaluator, regions []Region, minFaces int, dist func(a, b *Region) float64) []Region {
	for {
		smallest := -1
		for i := range regions {
			if len(regions[i].Faces) >= minFaces {
				continue
			}
			if smallest < 0 || len(regions[i].Faces) < len(regions[smallest].Faces) {
				smallest = i
			}
		}
		if smallest < 0 || len(regions) < 2 {
			return regions
		}
		target := -1
		best := 0.0
		for j := range regions {
			if j == smallest || !regionsAdjacent(ev, &regions[smallest], &regions[j]) {
				continue
			}
			d := dist(&regions[smallest], &regions[j])
			if target < 0 || d < best {
				target, best = j, d
			}
		}
		if target < 0 {
			// Isolated; nothing adjacent to absorb it.
			return regions
		}
		regions[target] = absorb(regions[target], regions[smallest])
		regions = append(regions[:smallest], regions[smallest+1:]...)
	}
}

func regionsAdjacent(ev *subd.Evaluator, a, b *Region) bool {
	for _, f := range a.Faces {
		for _, nb := range ev.FaceNeighbors(f) {
			if b.HasFace(nb) {
				return true
			}
		}
	}
	return false
}

// absorb merges b into a, keeping a's identity and blending unity by face
// count.
func absorb(a, b Region) Region {
	na, nb := float64(len(a.Faces)), float64(len(b.Faces))
	a.Faces = append(a.Faces, b.Faces...)
	sort.Ints(a.Faces)
	a.UnityStrength = (a.UnityStrength*na + b.UnityStrength*nb) / (na + nb)
	return a
}
