// Package keymutex provides blocking, per-key mutual exclusion. The recovery
// engine locks on the original code id so that check-then-act eligibility
// evaluation, candidate selection, execution and the ledger write form one
// atomic unit per code even though the underlying reads and writes are not
// transactional.
package keymutex

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// KeyMutex hands out one lock per key. A second caller for the same key blocks
// until the first releases; callers for different keys proceed independently.
type KeyMutex struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// New constructs an empty keyed mutex.
func New() *KeyMutex {
	return &KeyMutex{entries: map[int64]*entry{}}
}

// Lock blocks until the key is exclusively held and returns a release func.
// The release func is idempotent and must be called on every path; the
// canonical shape is:
//
//	release, err := km.Lock(ctx, id)
//	if err != nil { ... }
//	defer release()
//
// Context cancellation aborts a pending acquire but never interrupts a held
// lock.
func (k *KeyMutex) Lock(ctx context.Context, key int64) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		k.unref(key, e)
		return nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			e.sem.Release(1)
			k.unref(key, e)
		})
	}
	return release, nil
}

func (k *KeyMutex) unref(key int64, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs <= 0 {
		delete(k.entries, key)
	}
}

// Len reports how many keys currently have interested holders or waiters.
func (k *KeyMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
