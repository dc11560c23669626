// Package slotguard serialises writes that target the same schedule slot.
package slotguard

import (
	"context"
	"sync"
)

// Key identifies one slot of one batch.
type Key struct {
	BatchID       string
	SessionNumber int
}

type entry struct {
	sem  chan struct{}
	refs int
}

// Guard admits at most one holder per Key. Later acquirers for the same key
// wait until the holder releases or their context ends. Distinct keys never
// contend.
type Guard struct {
	mu    sync.Mutex
	slots map[Key]*entry
}

// New creates an empty Guard.
func New() *Guard {
	return &Guard{slots: make(map[Key]*entry)}
}

// Acquire blocks until the caller holds key.
// PRE: ctx is non-nil
// POST: On success the returned release func must be called exactly once;
//
//	calling it again is a no-op. On ctx expiry returns ctx.Err() and holds nothing.
func (g *Guard) Acquire(ctx context.Context, key Key) (func(), error) {
	g.mu.Lock()
	e, ok := g.slots[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		g.slots[key] = e
	}
	e.refs++
	g.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				g.unref(key, e)
			})
		}, nil
	case <-ctx.Done():
		g.unref(key, e)
		return nil, ctx.Err()
	}
}

// Pending returns the number of keys that are held or waited on.
func (g *Guard) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.slots)
}

func (g *Guard) unref(key Key, e *entry) {
	g.mu.Lock()
	e.refs--
	if e.refs == 0 && g.slots[key] == e {
		delete(g.slots, key)
	}
	g.mu.Unlock()
}
