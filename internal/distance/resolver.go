package distance

import (
	"context"
	"errors"
	"math"
	"time"

	"dishfinder/internal/domain/entities"
	"dishfinder/internal/logger"
	"dishfinder/internal/telemetry"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RouteLookup is the external route service: given an origin and a
// free-text destination it returns the travel distance in meters, or an
// error when no route exists or the provider misbehaves.
type RouteLookup interface {
	DistanceMeters(ctx context.Context, origin entities.LatLng, destination string) (float64, error)
}

// Plausibility decides when a fresh route result contradicts the backend's
// own estimate badly enough to be a geocoding mismatch (a same-named place
// in another city, typically).
type Plausibility struct {
	// NearbyThresholdMeters: the check applies only when the fallback is
	// positive and at most this far.
	NearbyThresholdMeters float64
	// FloorMeters and Factor: a result is anomalous when it exceeds
	// max(FloorMeters, fallback*Factor).
	FloorMeters float64
	Factor      float64
}

// DefaultPlausibility is the guard used by the web client.
var DefaultPlausibility = Plausibility{
	NearbyThresholdMeters: 10_000,
	FloorMeters:           50_000,
	Factor:                10,
}

// IsAnomalous reports whether meters should be rejected in favour of
// fallback. A nil, non-finite, non-positive or far fallback disables the
// check.
func (p Plausibility) IsAnomalous(meters float64, fallback *float64) bool {
	if fallback == nil {
		return false
	}
	fb := *fallback
	if math.IsNaN(fb) || math.IsInf(fb, 0) || fb <= 0 || fb > p.NearbyThresholdMeters {
		return false
	}
	return meters > math.Max(p.FloorMeters, fb*p.Factor)
}

// Resolver turns (origin, destination) into meters: cache first, then the
// route service, then the plausibility guard, then cache write-back.
//
// Identical lookups in flight at the same time share one route request. The
// key is the signature, so it collapses duplicates even across destination
// ids; each caller still applies its own fallback and writes its own cache
// entry.
type Resolver struct {
	cache    *Cache
	routes   RouteLookup
	guard    Plausibility
	metrics  *telemetry.Metrics
	log      *zap.SugaredLogger
	inflight singleflight.Group
}

// NewResolver wires a resolver. metrics and log may be nil.
func NewResolver(cache *Cache, routes RouteLookup, guard Plausibility, metrics *telemetry.Metrics, log *zap.SugaredLogger) *Resolver {
	return &Resolver{
		cache:   cache,
		routes:  routes,
		guard:   guard,
		metrics: metrics,
		log:     logger.OrNop(log),
	}
}

// Cache exposes the underlying cache.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve returns the distance in meters from origin to dest for scope.
// Route errors are returned unchanged; substituting a fallback on error is
// the caller's decision (see ResolveOrFallback).
func (r *Resolver) Resolve(ctx context.Context, sc string, origin entities.LatLng, dest entities.Destination) (float64, error) {
	res, err := r.ResolveDetailed(ctx, sc, origin, dest)
	if err != nil {
		return 0, err
	}
	return res.Meters, nil
}

// ResolveDetailed is Resolve but also reports where the number came from.
func (r *Resolver) ResolveDetailed(ctx context.Context, sc string, origin entities.LatLng, dest entities.Destination) (entities.ResolvedDistance, error) {
	signature := Signature(origin, dest.Name, dest.Address)

	if meters, ok := r.cache.Get(ctx, sc, dest.ID, signature); ok {
		r.metrics.CacheHit()
		r.log.Debugf("[DISTANCE] cache hit for %d", dest.ID)
		return entities.ResolvedDistance{Destination: dest, Meters: meters, Source: entities.DistanceSourceCache}, nil
	}
	r.metrics.CacheMiss()

	meters, err := r.lookup(ctx, signature, origin, dest.Query())
	if err != nil {
		return entities.ResolvedDistance{}, err
	}

	if r.guard.IsAnomalous(meters, dest.FallbackMeters) {
		r.metrics.AnomalyFallback()
		r.log.Infof("[DISTANCE] implausible route for %d (%q): %.0f m vs fallback %.0f m",
			dest.ID, dest.Name, meters, *dest.FallbackMeters)
		return entities.ResolvedDistance{Destination: dest, Meters: *dest.FallbackMeters, Source: entities.DistanceSourceFallback}, nil
	}

	if err := r.cache.Set(ctx, sc, dest.ID, signature, meters); err != nil {
		r.log.Warnf("[DISTANCE] caching distance for %d: %v", dest.ID, err)
	}
	return entities.ResolvedDistance{Destination: dest, Meters: meters, Source: entities.DistanceSourceRoute}, nil
}

// lookup calls the route service, sharing the call with concurrent
// identical lookups. The shared call runs under the first caller's context;
// if that caller goes away while this one is still interested, the lookup
// is retried once on this caller's own context.
func (r *Resolver) lookup(ctx context.Context, signature string, origin entities.LatLng, query string) (float64, error) {
	do := func() (float64, error) {
		ch := r.inflight.DoChan(signature, func() (interface{}, error) {
			start := time.Now()
			meters, err := r.routes.DistanceMeters(ctx, origin, query)
			r.log.Debugf("[DISTANCE] route lookup %q took %s", query, time.Since(start))
			return meters, err
		})
		select {
		case res := <-ch:
			if res.Err != nil {
				return 0, res.Err
			}
			return res.Val.(float64), nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	meters, err := do()
	if err != nil && isContextErr(err) && ctx.Err() == nil {
		return do()
	}
	return meters, err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ResolveOrFallback resolves dest and, when the route service fails,
// substitutes dest.FallbackMeters. ok is false only when the lookup failed
// and there is no fallback to show.
func (r *Resolver) ResolveOrFallback(ctx context.Context, sc string, origin entities.LatLng, dest entities.Destination) (entities.ResolvedDistance, bool) {
	res, err := r.ResolveDetailed(ctx, sc, origin, dest)
	if err == nil {
		return res, true
	}
	r.log.Infof("[DISTANCE] route lookup failed for %d (%q): %v", dest.ID, dest.Name, err)
	if dest.FallbackMeters == nil {
		return entities.ResolvedDistance{Destination: dest}, false
	}
	r.metrics.ErrorFallback()
	return entities.ResolvedDistance{Destination: dest, Meters: *dest.FallbackMeters, Source: entities.DistanceSourceFallback}, true
}
