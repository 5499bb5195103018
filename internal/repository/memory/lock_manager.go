package memory

import (
	"context"
	"sync"
)

// lockEntry is a per-key mutex with a reference count. The count lets the
// manager drop entries nobody is waiting on, so the map only ever holds keys
// that are in use.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// LockManager hands out one mutex per key (ride id). Holding the lock for
// one ride never blocks work on another ride; the manager's own mutex only
// guards the bookkeeping map and is never held while a caller's critical
// section runs.
//
// Go Learning Note — Keyed Locks:
// A single sync.Mutex around "all rides" would serialize unrelated drivers.
// A map of mutexes gives per-entity serialization, but naive versions leak
// an entry per key forever. Reference counting removes an entry as soon as
// the last holder or waiter releases it.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*lockEntry),
	}
}

// Lock blocks until the lock for key is held and returns the function that
// releases it. The release function is safe to call once.
func (lm *LockManager) Lock(key string) (unlock func()) {
	entry := lm.acquireEntry(key)
	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		lm.releaseEntry(key, entry)
	}
}

// LockContext is Lock with cancellation: if ctx ends before the lock is
// acquired, it returns ctx.Err() and holds nothing.
func (lm *LockManager) LockContext(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry := lm.acquireEntry(key)
	acquired := make(chan struct{})
	go func() {
		entry.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return func() {
			entry.mu.Unlock()
			lm.releaseEntry(key, entry)
		}, nil
	case <-ctx.Done():
		// The goroutine still takes the lock eventually; hand it straight
		// back so the key is not left locked.
		go func() {
			<-acquired
			entry.mu.Unlock()
			lm.releaseEntry(key, entry)
		}()
		return nil, ctx.Err()
	}
}

// IsLocked reports whether any caller currently holds or waits on key.
func (lm *LockManager) IsLocked(key string) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	_, exists := lm.locks[key]
	return exists
}

// Len returns the number of keys with holders or waiters.
func (lm *LockManager) Len() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	return len(lm.locks)
}

func (lm *LockManager) acquireEntry(key string) *lockEntry {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	entry, exists := lm.locks[key]
	if !exists {
		entry = &lockEntry{}
		lm.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (lm *LockManager) releaseEntry(key string, entry *lockEntry) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(lm.locks, key)
	}
}
