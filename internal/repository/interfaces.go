package repository

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get when a key is absent (or expired).
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore is the persistence contract for everything the distance
// subsystem stores client-side: the user location, the distance cache blob,
// the prompt-dismissed flag, the last known user scope and the auth token.
// Values are opaque strings; callers own the encoding.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// ExpiringStore is implemented by backends that can drop keys on their own
// after a time-to-live, like Redis's SET key value EX ttl.
type ExpiringStore interface {
	KeyValueStore
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

// Namespace prefixes every key with a fixed string so several client
// profiles (browser profiles, devices) can share one backend without seeing
// each other's keys.
type Namespace struct {
	store  KeyValueStore
	prefix string
}

// NewNamespace wraps store so every key becomes "<prefix>:<key>".
func NewNamespace(store KeyValueStore, prefix string) *Namespace {
	return &Namespace{store: store, prefix: prefix}
}

func (n *Namespace) key(k string) string {
	return n.prefix + ":" + k
}

func (n *Namespace) Get(ctx context.Context, key string) (string, error) {
	return n.store.Get(ctx, n.key(key))
}

func (n *Namespace) Set(ctx context.Context, key, value string) error {
	return n.store.Set(ctx, n.key(key), value)
}

func (n *Namespace) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.key(key))
}

// Update runs fn on the prefixed key. A wrapped Updater keeps the cycle
// atomic across processes; otherwise it is serialized in this process on
// the wrapped store and full key, so two Namespaces over the same profile
// still exclude each other.
func (n *Namespace) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	return Update(ctx, n.store, n.key(key), ttl, fn)
}

// SetWithTTL forwards to the wrapped store when it supports expiry and
// falls back to a plain Set otherwise.
func (n *Namespace) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if es, ok := n.store.(ExpiringStore); ok {
		return es.SetWithTTL(ctx, n.key(key), value, ttl)
	}
	return n.store.Set(ctx, n.key(key), value)
}
