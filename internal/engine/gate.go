// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import "sync"

// Gate is the single-slot processing lease. At most one batch holds it at
// a time; everything that needs to know whether processing is underway
// asks the gate instead of consulting shared mutable state.
type Gate struct {
	mu     sync.Mutex
	holder string
}

// TryAcquire claims the gate for the batch. It reports false when another
// batch already holds it. Acquiring is non-blocking by design: a busy gate
// means the caller waits for a later scheduler tick.
func (g *Gate) TryAcquire(batchID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holder != "" {
		return false
	}
	g.holder = batchID
	return true
}

// Release frees the gate if batchID currently holds it. Releasing a gate
// held by someone else is a no-op, so a stale deferred release cannot
// free another batch's lease.
func (g *Gate) Release(batchID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holder == batchID {
		g.holder = ""
	}
}

// Holder returns the batch currently holding the gate, or "".
func (g *Gate) Holder() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder
}
