package services

import (
	"context"
	"errors"
	"sort"

	"dishfinder/internal/distance"
	"dishfinder/internal/domain/entities"
	"dishfinder/internal/logger"

	"go.uber.org/zap"
)

// ErrNoOrigin means neither the request nor the profile has a location to
// measure from.
var ErrNoOrigin = errors.New("no origin: request a location first")

// NearbyResult is the outcome of resolving a list of destinations.
// Distances maps destination id to meters and only holds destinations that
// got a number. Restaurants lists every destination, resolved ones first in
// ascending distance, then the rest in input order.
type NearbyResult struct {
	Origin      entities.LatLng             `json:"origin"`
	Distances   map[int64]float64           `json:"distances"`
	Restaurants []entities.ResolvedDistance `json:"restaurants"`
}

// NearbyService resolves distances for whole result pages: search results,
// nearby lists and recommended dishes.
type NearbyService struct {
	limit int
	log   *zap.SugaredLogger
}

// NewNearbyService creates a service issuing at most limit route lookups at
// once (distance.DefaultConcurrency when limit <= 0).
func NewNearbyService(limit int, log *zap.SugaredLogger) *NearbyService {
	if limit <= 0 {
		limit = distance.DefaultConcurrency
	}
	return &NearbyService{limit: limit, log: logger.OrNop(log)}
}

// Resolve computes distances from origin (or, when origin is nil, the
// profile's stored location) to every destination. A destination without an
// id is keyed by a hash of its name. Route failures fall back to the
// destination's own distance when it has one.
func (n *NearbyService) Resolve(ctx context.Context, svc *LocationService, origin *entities.LatLng, dests []entities.Destination) (*NearbyResult, error) {
	from, err := n.origin(ctx, svc, origin)
	if err != nil {
		return nil, err
	}
	sc := svc.Scope(ctx)

	type outcome struct {
		res entities.ResolvedDistance
		ok  bool
	}

	items := make([]entities.Destination, len(dests))
	for i, d := range dests {
		if d.ID == 0 {
			d.ID = int64(distance.StableHash32(d.Name))
		}
		items[i] = d
	}

	outcomes, err := distance.MapWithConcurrency(ctx, items, n.limit, func(ctx context.Context, d entities.Destination) (outcome, error) {
		res, ok := svc.Resolver().ResolveOrFallback(ctx, sc, from, d)
		return outcome{res: res, ok: ok}, ctx.Err()
	})
	if err != nil {
		return nil, err
	}

	result := &NearbyResult{
		Origin:      from,
		Distances:   make(map[int64]float64, len(items)),
		Restaurants: make([]entities.ResolvedDistance, 0, len(items)),
	}
	var unresolved []entities.ResolvedDistance
	for _, o := range outcomes {
		if !o.ok {
			unresolved = append(unresolved, o.res)
			continue
		}
		result.Distances[o.res.Destination.ID] = o.res.Meters
		result.Restaurants = append(result.Restaurants, o.res)
	}

	sort.SliceStable(result.Restaurants, func(i, j int) bool {
		return result.Restaurants[i].Meters < result.Restaurants[j].Meters
	})
	result.Restaurants = append(result.Restaurants, unresolved...)

	n.log.Debugf("[NEARBY] resolved %d of %d destinations", len(result.Distances), len(items))
	return result, nil
}

func (n *NearbyService) origin(ctx context.Context, svc *LocationService, origin *entities.LatLng) (entities.LatLng, error) {
	if origin != nil {
		if !origin.IsFinite() {
			return entities.LatLng{}, ErrNoOrigin
		}
		return *origin, nil
	}
	stored, _ := svc.Location(ctx)
	if stored == nil {
		return entities.LatLng{}, ErrNoOrigin
	}
	return stored.LatLng(), nil
}
