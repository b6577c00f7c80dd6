// Package locks provides per-key serialization for fan-out workers. The
// default is an in-process keyed mutex; deployments running several workers
// swap in the redis-backed implementation.
package locks

import (
	"context"
	"sync"
)

// Locker serializes work on a string key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// KeyedMutex is an in-process Locker. Mutex entries are reference counted
// and removed once the last holder releases, so the map does not grow with
// the key space.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*mutexEntry
}

type mutexEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[string]*mutexEntry),
	}
}

// WithLock runs fn while holding the mutex for key. The context is checked
// before acquiring; a held lock is never abandoned mid-fn.
func (k *KeyedMutex) WithLock(ctx context.Context, key string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &mutexEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}()

	return fn()
}
