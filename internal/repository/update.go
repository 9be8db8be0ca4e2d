package repository

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"
)

// UpdateFunc receives the current value of a key (found is false when it is
// absent) and returns the value to store in its place.
type UpdateFunc func(current string, found bool) (string, error)

// Updater is implemented by stores that can apply a read-modify-write cycle
// to one key atomically. ttl > 0 also sets the key's expiry; ttl == 0 keeps
// the value forever.
type Updater interface {
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error
}

// Update runs fn against key as one atomic cycle. Stores that implement
// Updater do it natively (a lock in memory, WATCH/MULTI in Redis); for any
// other store the cycle is serialized by a process-wide lock on the store
// and key, so separate callers sharing the store never interleave.
func Update(ctx context.Context, store KeyValueStore, key string, ttl time.Duration, fn UpdateFunc) error {
	if u, ok := store.(Updater); ok {
		return u.Update(ctx, key, ttl, fn)
	}

	unlock := keyLocks.lock(store, key)
	defer unlock()

	current, err := store.Get(ctx, key)
	found := err == nil
	if err != nil && !errors.Is(err, ErrKeyNotFound) {
		return err
	}
	next, err := fn(current, found)
	if err != nil {
		return err
	}
	if es, ok := store.(ExpiringStore); ok && ttl > 0 {
		return es.SetWithTTL(ctx, key, next, ttl)
	}
	return store.Set(ctx, key, next)
}

// keyedMutex hands out one mutex per (store, key). Entries are reference
// counted and freed when the last holder unlocks, so the map only ever
// holds keys that are being updated right now.
//
// Go Learning Note — Keyed Locks:
// A single mutex for the whole store would serialize unrelated keys. A map
// of mutexes guarded by a small outer mutex gives per-key exclusion; the
// outer lock is held only while looking up or releasing an entry, never
// while the caller's critical section runs.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[lockID]*refMutex
}

type lockID struct {
	store KeyValueStore
	key   string
}

type refMutex struct {
	sync.Mutex
	refs int
}

var keyLocks = &keyedMutex{locks: make(map[lockID]*refMutex)}

// lock blocks until the caller owns (store, key) and returns the release
// function. Stores whose dynamic type cannot be a map key share a lock per
// key name.
func (k *keyedMutex) lock(store KeyValueStore, key string) func() {
	id := lockID{key: key}
	if t := reflect.TypeOf(store); t != nil && t.Comparable() {
		id.store = store
	}

	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
