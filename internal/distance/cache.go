// Package distance resolves travel distances from the user to restaurants,
// memoizing results per user scope and guarding against implausible route
// answers.
package distance

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"dishfinder/internal/domain/entities"
	"dishfinder/internal/logger"
	"dishfinder/internal/repository"
	"dishfinder/internal/scope"

	"go.uber.org/zap"
)

// DefaultTTL is how long a cached distance stays usable.
const DefaultTTL = 7 * 24 * time.Hour

// DefaultRetention is how long a scope's blob may sit untouched before the
// backend drops it. Freshness is decided per entry on read; retention only
// reclaims blobs of scopes nobody uses any more.
const DefaultRetention = 90 * 24 * time.Hour

// Signature identifies the query a distance was resolved for: the origin
// rounded to 5 decimal places (about 1.1 m), the destination name and the
// address, joined as "lat,lng|name|address". GPS jitter below the rounding
// keeps the signature stable; any other change produces a new one.
func Signature(origin entities.LatLng, name, address string) string {
	return strconv.FormatFloat(origin.Lat, 'f', 5, 64) + "," +
		strconv.FormatFloat(origin.Lng, 'f', 5, 64) + "|" +
		name + "|" + address
}

// Cache is the per-scope distance cache. Each scope's entries live in one
// JSON blob that is rewritten whole. Writes go through repository.Update, so
// caches built by different requests (or different server instances on
// Redis) over the same profile never drop each other's entries.
type Cache struct {
	kv        repository.KeyValueStore
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewCache creates a cache with the given TTL (DefaultTTL when ttl <= 0).
// Blobs are retained for DefaultRetention, or for ttl when that is longer.
func NewCache(kv repository.KeyValueStore, ttl time.Duration, log *zap.SugaredLogger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	retention := DefaultRetention
	if ttl > retention {
		retention = ttl
	}
	return &Cache{kv: kv, ttl: ttl, retention: retention, now: time.Now, log: logger.OrNop(log)}
}

// TTL returns the cache's default time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Retention returns how long an untouched blob is kept by the backend.
// GetWithTTL honours any ttl up to this horizon.
func (c *Cache) Retention() time.Duration {
	return c.retention
}

func cacheID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// read loads the blob for scope. Missing or corrupt blobs read as empty.
func (c *Cache) read(ctx context.Context, sc string) entities.DistanceCache {
	raw, err := c.kv.Get(ctx, scope.DistanceCacheKey(sc))
	if err != nil {
		if !errors.Is(err, repository.ErrKeyNotFound) {
			c.log.Warnf("[DISTANCE] reading cache: %v", err)
		}
		return entities.DistanceCache{}
	}
	return c.decode(sc, raw)
}

func (c *Cache) decode(sc, raw string) entities.DistanceCache {
	var cache entities.DistanceCache
	if err := json.Unmarshal([]byte(raw), &cache); err != nil || cache == nil {
		c.log.Debugf("[DISTANCE] ignoring malformed cache blob for scope %q", sc)
		return entities.DistanceCache{}
	}
	return cache
}

// Get returns the cached meters for id when the stored signature equals
// signature exactly and the entry is no older than the cache TTL.
func (c *Cache) Get(ctx context.Context, sc string, id int64, signature string) (float64, bool) {
	return c.GetWithTTL(ctx, sc, id, signature, c.ttl)
}

// GetWithTTL is Get with an explicit time-to-live. Only the entry's age is
// compared with ttl; the blob itself outlives the cache's own TTL.
func (c *Cache) GetWithTTL(ctx context.Context, sc string, id int64, signature string, ttl time.Duration) (float64, bool) {
	entry, ok := c.read(ctx, sc)[cacheID(id)]
	if !ok {
		return 0, false
	}
	if entry.Signature != signature {
		return 0, false
	}
	if entry.Age(c.now()) > ttl {
		return 0, false
	}
	return entry.Meters, true
}

// Set upserts the entry for id, stamped with the current time. The blob is
// read and rewritten as one atomic cycle on the backing store.
func (c *Cache) Set(ctx context.Context, sc string, id int64, signature string, meters float64) error {
	entry := entities.CachedDistanceEntry{
		Meters:    meters,
		Signature: signature,
		UpdatedAt: c.now().UnixMilli(),
	}
	return repository.Update(ctx, c.kv, scope.DistanceCacheKey(sc), c.retention, func(raw string, found bool) (string, error) {
		cache := entities.DistanceCache{}
		if found {
			cache = c.decode(sc, raw)
		}
		cache[cacheID(id)] = entry
		b, err := json.Marshal(cache)
		if err != nil {
			return "", err
		}
		return string(b), nil
	})
}

// Clear deletes the whole blob for scope and the unscoped legacy blob.
// Called whenever the user's location changes.
func (c *Cache) Clear(ctx context.Context, sc string) error {
	if err := c.kv.Delete(ctx, scope.DistanceCacheKey(sc)); err != nil {
		return err
	}
	if sc != "" {
		if err := c.kv.Delete(ctx, scope.DistanceCacheKeyPrefix); err != nil {
			c.log.Debugf("[DISTANCE] removing legacy cache key: %v", err)
		}
	}
	return nil
}
