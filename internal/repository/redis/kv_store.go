// Package redis implements the KeyValueStore on top of Redis, so profile
// state survives restarts and can be shared by several server instances.
// Abstracting storage behind an interface lets the services run their unit
// tests against the in-memory store without a Redis server.
package redis

import (
	"context"
	"errors"
	"time"

	"dishfinder/internal/repository"

	goredis "github.com/go-redis/redis"
)

// KVStore is a KeyValueStore backed by a Redis client.
type KVStore struct {
	cli *goredis.Client
}

// NewKVStore wraps an already configured client.
func NewKVStore(cli *goredis.Client) *KVStore {
	return &KVStore{cli: cli}
}

// Dial creates a client for addr and verifies the connection with PING.
func Dial(addr, password string, db int) (*KVStore, error) {
	cli := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := cli.Ping().Err(); err != nil {
		cli.Close()
		return nil, err
	}
	return NewKVStore(cli), nil
}

var (
	_ repository.ExpiringStore = (*KVStore)(nil)
	_ repository.Updater       = (*KVStore)(nil)
)

// maxUpdateRetries bounds how often Update retries a transaction that lost
// a race with another writer.
const maxUpdateRetries = 10

// ErrUpdateContention is returned when Update keeps losing its optimistic
// transaction to concurrent writers.
var ErrUpdateContention = errors.New("redis: too much contention on key")

func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.cli.WithContext(ctx).Get(key).Result()
	if err == goredis.Nil {
		return "", repository.ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	return s.cli.WithContext(ctx).Set(key, value, 0).Err()
}

// SetWithTTL maps to SET key value EX ttl.
func (s *KVStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.cli.WithContext(ctx).Set(key, value, ttl).Err()
}

// Update runs fn as an optimistic transaction: WATCH key, GET it, then
// SET the new value inside MULTI/EXEC. EXEC fails if another client touched
// the key in between, in which case the whole cycle is retried.
//
// Go Learning Note — WATCH/MULTI/EXEC:
// go-redis exposes optimistic locking through Client.Watch. The callback
// gets a *Tx bound to one connection; commands queued in tx.Pipelined are
// sent as MULTI ... EXEC and Redis aborts them with TxFailedErr when a
// watched key changed, so no write is ever silently lost.
func (s *KVStore) Update(ctx context.Context, key string, ttl time.Duration, fn repository.UpdateFunc) error {
	cli := s.cli.WithContext(ctx)
	txf := func(tx *goredis.Tx) error {
		current, err := tx.Get(key).Result()
		found := err == nil
		if err != nil && err != goredis.Nil {
			return err
		}
		next, err := fn(current, found)
		if err != nil {
			return err
		}
		_, err = tx.Pipelined(func(pipe goredis.Pipeliner) error {
			pipe.Set(key, next, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := cli.Watch(txf, key)
		if err != goredis.TxFailedErr {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ErrUpdateContention
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	return s.cli.WithContext(ctx).Del(key).Err()
}

// Close releases the underlying connection pool.
func (s *KVStore) Close() error {
	return s.cli.Close()
}
