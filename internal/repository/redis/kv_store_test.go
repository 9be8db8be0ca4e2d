package redis

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"dishfinder/internal/repository"
)

// setupStore connects to REDIS_ADDR (localhost:6379 by default) and skips
// the test when no server answers. Keys are removed on cleanup.
func setupStore(t *testing.T, keys ...string) *KVStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	store, err := Dial(addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		for _, k := range keys {
			store.Delete(context.Background(), k)
		}
		store.Close()
	})
	return store
}

func TestKVStore_MissingKeyIsErrKeyNotFound(t *testing.T) {
	const key = "dishfinder-test:missing"
	store := setupStore(t, key)
	ctx := context.Background()
	store.Delete(ctx, key)

	if _, err := store.Get(ctx, key); !errors.Is(err, repository.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

func TestKVStore_SetGetDelete(t *testing.T) {
	const key = "dishfinder-test:kv"
	store := setupStore(t, key)
	ctx := context.Background()

	if err := store.Set(ctx, key, "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got, err := store.Get(ctx, key); err != nil || got != "v" {
		t.Fatalf("Expected v, got %q (%v)", got, err)
	}
	if ttl := store.cli.TTL(key).Val(); ttl >= 0 {
		t.Errorf("Expected no expiry on Set, got %v", ttl)
	}

	store.Delete(ctx, key)
	if _, err := store.Get(ctx, key); !errors.Is(err, repository.ErrKeyNotFound) {
		t.Errorf("Expected key deleted, got %v", err)
	}
}

func TestKVStore_SetWithTTLForwardsExpiry(t *testing.T) {
	const key = "dishfinder-test:ttl"
	store := setupStore(t, key)
	ctx := context.Background()

	if err := store.SetWithTTL(ctx, key, "v", time.Minute); err != nil {
		t.Fatalf("SetWithTTL failed: %v", err)
	}
	if ttl := store.cli.TTL(key).Val(); ttl <= 0 || ttl > time.Minute {
		t.Errorf("Expected a ttl of at most 1m, got %v", ttl)
	}

	store.SetWithTTL(ctx, key, "v", 50*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	if _, err := store.Get(ctx, key); !errors.Is(err, repository.ErrKeyNotFound) {
		t.Errorf("Expected key expired, got %v", err)
	}
}

func TestKVStore_UpdateUnderContention(t *testing.T) {
	const key = "dishfinder-test:counter"
	store := setupStore(t, key)
	ctx := context.Background()
	store.Delete(ctx, key)

	incr := func(current string, found bool) (string, error) {
		n := 0
		if found {
			n, _ = strconv.Atoi(current)
		}
		return strconv.Itoa(n + 1), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Update(ctx, key, time.Minute, incr); err != nil {
				t.Errorf("Update failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got, _ := store.Get(ctx, key); got != "5" {
		t.Errorf("Expected 5 increments, got %q", got)
	}
	if ttl := store.cli.TTL(key).Val(); ttl <= 0 {
		t.Errorf("Expected Update to set the expiry, got %v", ttl)
	}
}
