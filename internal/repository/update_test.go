package repository

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

// mapStore is a bare KeyValueStore with a read latency. It implements
// neither Updater nor ExpiringStore, so Update falls back to keyed locks.
type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string]string)}
}

func (m *mapStore) Get(ctx context.Context, key string) (string, error) {
	time.Sleep(time.Millisecond)
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (m *mapStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func incr(current string, found bool) (string, error) {
	n := 0
	if found {
		n, _ = strconv.Atoi(current)
	}
	return strconv.Itoa(n + 1), nil
}

func TestUpdate_SerializesPlainStores(t *testing.T) {
	root := newMapStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// A fresh Namespace per caller, the way each request builds one.
			ns := NewNamespace(root, "profile:laptop")
			if err := ns.Update(ctx, "counter", 0, incr); err != nil {
				t.Errorf("Update failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := root.data["profile:laptop:counter"]; got != "20" {
		t.Errorf("Expected 20 increments, got %q", got)
	}
	keyLocks.mu.Lock()
	left := len(keyLocks.locks)
	keyLocks.mu.Unlock()
	if left != 0 {
		t.Errorf("Expected every key lock released, %d left", left)
	}
}

func TestUpdate_PropagatesErrors(t *testing.T) {
	root := newMapStore()
	root.data["k"] = "v"
	ctx := context.Background()

	boom := errors.New("boom")
	if err := Update(ctx, root, "k", 0, func(string, bool) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if root.data["k"] != "v" {
		t.Errorf("Expected value untouched, got %q", root.data["k"])
	}
}
