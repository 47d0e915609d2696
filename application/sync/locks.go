package sync

import "sync"

// LockRegistry serializes work per map ID. All operations targeting the
// same map run one at a time; operations on different maps proceed in
// parallel with no shared mutable state. The merge and rollback engines
// share one registry so a rollback can never interleave with a merge on
// the same map.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the critical section for mapID and returns the release
// function. Locks are created on first use and kept for the life of the
// process; the per-map footprint is one mutex.
func (r *LockRegistry) Lock(mapID string) func() {
	r.mu.Lock()
	l, ok := r.locks[mapID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[mapID] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}
