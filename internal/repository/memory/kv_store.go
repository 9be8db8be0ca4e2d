package memory

import (
	"context"
	"sync"
	"time"

	"dishfinder/internal/repository"
)

// kvEntry is a stored value with an optional expiration time. A zero
// expiresAt means the value never expires.
type kvEntry struct {
	value     string
	expiresAt time.Time
}

func (e kvEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// KVStore is an in-memory KeyValueStore. It stands in for browser
// localStorage in tests and single-instance deployments.
//
// Keys written with SetWithTTL expire on their own. Expired keys are hidden
// from Get immediately and physically removed by a background sweeper, the
// same way Redis lazily and periodically evicts keys with an EX ttl.
//
// Go Learning Note — Channels for Signaling:
// The `stop` field is a `chan struct{}` used purely for signaling. close(stop)
// wakes every goroutine blocked on `<-stop`, because a closed channel returns
// immediately on receive.
type KVStore struct {
	mu       sync.RWMutex
	data     map[string]kvEntry
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewKVStore creates a store whose sweeper runs every sweepInterval. A
// non-positive interval disables the sweeper; expired keys are then only
// hidden, not freed.
func NewKVStore(sweepInterval time.Duration) *KVStore {
	s := &KVStore{
		data: make(map[string]kvEntry),
		now:  time.Now,
		stop: make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepExpired(sweepInterval)
	}
	return s
}

var (
	_ repository.ExpiringStore = (*KVStore)(nil)
	_ repository.Updater       = (*KVStore)(nil)
)

func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.data[key]
	if !exists || entry.expired(s.now()) {
		return "", repository.ErrKeyNotFound
	}
	return entry.value, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = kvEntry{value: value}
	return nil
}

// SetWithTTL stores value and schedules it to disappear after ttl.
func (s *KVStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := kvEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.data[key] = entry
	return nil
}

// Update applies fn to key while holding the store's write lock, so
// concurrent cycles on the same store never lose each other's writes.
func (s *KVStore) Update(ctx context.Context, key string, ttl time.Duration, fn repository.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	current, exists := s.data[key]
	found := exists && !current.expired(now)
	if !found {
		current = kvEntry{}
	}
	next, err := fn(current.value, found)
	if err != nil {
		return err
	}

	entry := kvEntry{value: next}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	s.data[key] = entry
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Keys returns every live key. Used by tests and debugging endpoints.
//
// Go Learning Note — make() with Length 0 and Capacity:
// make([]string, 0, len(s.data)) pre-allocates the backing array so append
// never has to grow it.
func (s *KVStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	keys := make([]string, 0, len(s.data))
	for k, e := range s.data {
		if !e.expired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// sweepExpired runs in a background goroutine and periodically frees keys
// that have passed their TTL.
//
// Go Learning Note — time.NewTicker + select:
// A ticker delivers on its channel at a fixed interval until stopped; always
// defer ticker.Stop() so the runtime timer is released. The select waits for
// either the next tick or the stop signal, the idiomatic shape of a
// cancellable periodic task.
func (s *KVStore) sweepExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			now := s.now()
			for key, entry := range s.data {
				if entry.expired(now) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}

// Stop signals the sweeper goroutine to exit. Safe to call more than once.
func (s *KVStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
