package services

import (
	"context"
	"errors"
	"time"

	"dishfinder/internal/distance"
	"dishfinder/internal/domain/entities"
	"dishfinder/internal/location"
	"dishfinder/internal/logger"
	"dishfinder/internal/repository"
	"dishfinder/internal/scope"
	"dishfinder/internal/telemetry"

	"go.uber.org/zap"
)

// ErrMissingProfile is returned when a request carries no client profile id.
var ErrMissingProfile = errors.New("missing client profile id")

// ProfileOptions configure every LocationService opened by a Profiles
// factory.
type ProfileOptions struct {
	CacheTTL        time.Duration
	Plausibility    distance.Plausibility
	PositionOptions location.PositionOptions
}

// Profiles opens per-client LocationServices over one shared backend. Each
// client profile (a browser profile or device) gets its own key namespace,
// so profiles never see each other's tokens, locations or caches.
//
// Go Learning Note — Cheap Per-Request Construction:
// Everything a LocationService holds is either shared (backend, route
// lookup, metrics) or a thin wrapper around it, so building one per request
// costs a few small allocations. State lives in the key-value store, which
// also lets several server instances share it through Redis.
type Profiles struct {
	root    repository.KeyValueStore
	routes  distance.RouteLookup
	opts    ProfileOptions
	metrics *telemetry.Metrics
	log     *zap.SugaredLogger
}

func NewProfiles(root repository.KeyValueStore, routes distance.RouteLookup, opts ProfileOptions, metrics *telemetry.Metrics, log *zap.SugaredLogger) *Profiles {
	return &Profiles{
		root:    root,
		routes:  routes,
		opts:    opts,
		metrics: metrics,
		log:     logger.OrNop(log),
	}
}

// Open returns the LocationService for profileID. A non-empty token is
// stored as the profile's auth token first, the way a login would.
func (p *Profiles) Open(ctx context.Context, profileID, token string) (*LocationService, error) {
	if profileID == "" {
		return nil, ErrMissingProfile
	}

	kv := repository.NewNamespace(p.root, "profile:"+profileID)
	session := scope.NewSession(kv, p.log)
	if token != "" && session.Token(ctx) != token {
		if err := session.SetToken(ctx, token); err != nil {
			return nil, err
		}
	}

	cache := distance.NewCache(kv, p.opts.CacheTTL, p.log)
	return &LocationService{
		profileID: profileID,
		session:   session,
		store:     location.NewStore(kv, p.log),
		resolver:  distance.NewResolver(cache, p.routes, p.opts.Plausibility, p.metrics, p.log),
		opts:      p.opts.PositionOptions,
		log:       p.log,
	}, nil
}

// LocationService is the per-profile facade over the location store, the
// acquisition controller and the distance cache. Every operation resolves
// the current user scope first, so data written under one account is
// invisible to the next.
type LocationService struct {
	profileID string
	session   *scope.Session
	store     *location.Store
	resolver  *distance.Resolver
	opts      location.PositionOptions
	log       *zap.SugaredLogger
}

func (s *LocationService) Session() *scope.Session {
	return s.session
}

func (s *LocationService) Resolver() *distance.Resolver {
	return s.resolver
}

// Scope returns the current user scope ("" when anonymous).
func (s *LocationService) Scope(ctx context.Context) string {
	return s.session.CurrentUserScope(ctx)
}

func (s *LocationService) controller(env location.Environment) *location.Controller {
	return location.NewController(s.store, s.session, env, s.opts, s.log)
}

// Location returns the stored location and the status a freshly loaded
// client would show for it: granted when one exists, idle otherwise.
func (s *LocationService) Location(ctx context.Context) (*entities.UserLocation, entities.LocationStatus) {
	c := s.controller(location.Environment{})
	c.Hydrate(ctx)
	return c.Location(), c.Status()
}

// RequestLocation acquires a fix from the client's device and stores it.
// The returned status is the controller's state after the attempt.
func (s *LocationService) RequestLocation(ctx context.Context, env location.Environment) (*entities.UserLocation, entities.LocationStatus, error) {
	c := s.controller(env)
	loc, err := c.RequestLocation(ctx)
	return loc, c.Status(), err
}

// RefreshLocation is RequestLocation followed, on success, by clearing the
// distance cache: an explicit "update my location" starts from fresh
// distances even when the new fix rounds to the old signature.
func (s *LocationService) RefreshLocation(ctx context.Context, env location.Environment) (*entities.UserLocation, entities.LocationStatus, error) {
	loc, status, err := s.RequestLocation(ctx, env)
	if err != nil {
		return nil, status, err
	}
	if cerr := s.ClearDistanceCache(ctx); cerr != nil {
		s.log.Warnf("[LOCATION] clearing distance cache after refresh: %v", cerr)
	}
	return loc, status, nil
}

// ClearLocation removes the stored location. With withCaches the distance
// cache goes too.
func (s *LocationService) ClearLocation(ctx context.Context, withCaches bool) error {
	if err := s.controller(location.Environment{}).ClearLocation(ctx); err != nil {
		return err
	}
	if withCaches {
		return s.ClearDistanceCache(ctx)
	}
	return nil
}

func (s *LocationService) ClearDistanceCache(ctx context.Context) error {
	return s.resolver.Cache().Clear(ctx, s.Scope(ctx))
}

func (s *LocationService) DismissPrompt(ctx context.Context) error {
	return s.store.DismissPrompt(ctx, s.Scope(ctx))
}

func (s *LocationService) PromptDismissed(ctx context.Context) bool {
	return s.store.PromptDismissed(ctx, s.Scope(ctx))
}

// Logout clears the user's location data and caches, then forgets the
// token and the stored scope. The scope is resolved before the token is
// dropped so the cleanup targets the departing user's keys.
func (s *LocationService) Logout(ctx context.Context) error {
	sc := s.Scope(ctx)
	if err := s.store.ClearAll(ctx, sc); err != nil {
		return err
	}
	if err := s.session.RemoveToken(ctx); err != nil {
		return err
	}
	if err := s.session.ClearStoredUserScope(ctx); err != nil {
		return err
	}
	s.log.Infof("[SESSION] profile %s logged out", s.profileID)
	return nil
}
