package subd

import "sync"

// Builder hands out evaluator handles keyed by cage content and display
// tessellation level. The refined topology under a handle cannot re-refine
// at another level, so callers wanting several display levels go through a
// Builder and receive one handle per (cage, level) pair instead of
// retrying on a locked handle.
type Builder struct {
	mu      sync.Mutex
	handles map[builderKey]*Evaluator
}

type builderKey struct {
	cage  uint64
	level int
}

// NewBuilder returns an empty handle factory.
func NewBuilder() *Builder {
	return &Builder{handles: make(map[builderKey]*Evaluator)}
}

// HandleAt returns the evaluator for the cage with its display level locked
// to level, building it on first request. Handles are shared: callers must
// not Release a handle obtained here, use Drop instead.
func (b *Builder) HandleAt(cage ControlCage, level int) (*Evaluator, error) {
	key := builderKey{cage: cage.fingerprint(), level: level}
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev, ok := b.handles[key]; ok {
		return ev, nil
	}
	ev, err := Build(cage)
	if err != nil {
		return nil, err
	}
	if err := ev.lockTessLevel(level); err != nil {
		return nil, err
	}
	b.handles[key] = ev
	return ev, nil
}

// Drop releases and forgets every handle built from the cage.
func (b *Builder) Drop(cage ControlCage) {
	fp := cage.fingerprint()
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, ev := range b.handles {
		if key.cage == fp {
			ev.Release()
			delete(b.handles, key)
		}
	}
}
