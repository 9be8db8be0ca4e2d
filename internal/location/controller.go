package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dishfinder/internal/domain/entities"
	"dishfinder/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// PositionErrorCode mirrors the device geolocation API's error codes.
type PositionErrorCode int

const (
	PermissionDenied    PositionErrorCode = 1
	PositionUnavailable PositionErrorCode = 2
	Timeout             PositionErrorCode = 3
)

// PositionError is returned by a Geolocator when no fix could be obtained.
type PositionError struct {
	Code    PositionErrorCode
	Message string
}

func (e *PositionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("geolocation error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("geolocation error %d", e.Code)
}

var (
	// ErrInsecureContext means the page is not served over a secure origin,
	// so the device API must not be touched.
	ErrInsecureContext = errors.New("geolocation requires a secure context")

	// ErrGeolocationUnsupported means the client exposes no geolocation API.
	ErrGeolocationUnsupported = errors.New("geolocation is not supported")
)

// Position is one fix reported by the device.
type Position struct {
	Lat      float64
	Lng      float64
	Accuracy float64
}

// PositionOptions are passed through to the device request.
type PositionOptions struct {
	EnableHighAccuracy bool
	Timeout            time.Duration
	MaximumAge         time.Duration
}

// DefaultPositionOptions match what the web client asks the browser for.
var DefaultPositionOptions = PositionOptions{
	EnableHighAccuracy: true,
	Timeout:            10 * time.Second,
	MaximumAge:         30 * time.Second,
}

// Geolocator is the device's one-shot position API.
type Geolocator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
}

// Environment describes the client the controller runs in. A nil
// Geolocator means the client has no geolocation capability.
type Environment struct {
	SecureContext bool
	Geolocator    Geolocator
}

// Scoper yields the scope that storage operations are partitioned by.
// *scope.Session implements it.
type Scoper interface {
	CurrentUserScope(ctx context.Context) string
}

// Controller is the location acquisition state machine:
//
//	idle ──RequestLocation──▶ loading ──fix──▶ granted
//	  ▲                          ├──denied──▶ denied
//	  │                          └──other───▶ error
//	  └──ClearLocation (from any state)
//
// Preconditions failing (insecure context, no capability) go straight to
// unavailable without touching the device. Hydrate moves idle to granted
// when a stored location exists.
//
// Concurrent RequestLocation calls share one device request.
//
// Go Learning Note — singleflight:
// golang.org/x/sync/singleflight collapses concurrent calls with the same key
// into one execution; every caller receives the same result. It is the
// standard tool for "don't ask the device (or the network) twice at once".
type Controller struct {
	store  *Store
	scoper Scoper
	env    Environment
	opts   PositionOptions
	now    func() time.Time
	log    *zap.SugaredLogger

	mu       sync.RWMutex
	status   entities.LocationStatus
	location *entities.UserLocation

	inflight singleflight.Group
}

// NewController creates a controller in the idle state.
func NewController(store *Store, scoper Scoper, env Environment, opts PositionOptions, log *zap.SugaredLogger) *Controller {
	return &Controller{
		store:  store,
		scoper: scoper,
		env:    env,
		opts:   opts,
		now:    time.Now,
		log:    logger.OrNop(log),
		status: entities.LocationStatusIdle,
	}
}

// Status returns the current state.
func (c *Controller) Status() entities.LocationStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Location returns the last hydrated or acquired location. A failed
// request keeps the previous value; ClearLocation resets it to nil.
func (c *Controller) Location() *entities.UserLocation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.location
}

func (c *Controller) set(status entities.LocationStatus, loc *entities.UserLocation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	c.location = loc
}

func (c *Controller) setStatus(status entities.LocationStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

// Hydrate loads a previously stored location without prompting the device.
// It reports whether one was found.
func (c *Controller) Hydrate(ctx context.Context) bool {
	stored := c.store.Read(ctx, c.scoper.CurrentUserScope(ctx))
	if stored == nil {
		return false
	}
	c.set(entities.LocationStatusGranted, stored)
	return true
}

// RequestLocation asks the device for a fresh fix. On success the location
// is persisted and returned. On failure it returns nil and an error
// describing why; Status reflects the outcome.
func (c *Controller) RequestLocation(ctx context.Context) (*entities.UserLocation, error) {
	if !c.env.SecureContext {
		c.setStatus(entities.LocationStatusUnavailable)
		return nil, ErrInsecureContext
	}
	if c.env.Geolocator == nil {
		c.setStatus(entities.LocationStatusUnavailable)
		return nil, ErrGeolocationUnsupported
	}

	ch := c.inflight.DoChan("request", func() (interface{}, error) {
		return c.acquire(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entities.UserLocation), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Controller) acquire(ctx context.Context) (*entities.UserLocation, error) {
	c.setStatus(entities.LocationStatusLoading)

	reqCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	pos, err := c.env.Geolocator.CurrentPosition(reqCtx, c.opts)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = &PositionError{Code: Timeout, Message: "position request timed out"}
	}
	if err != nil {
		var perr *PositionError
		if errors.As(err, &perr) && perr.Code == PermissionDenied {
			c.setStatus(entities.LocationStatusDenied)
		} else {
			c.setStatus(entities.LocationStatusError)
		}
		c.log.Infof("[LOCATION] acquisition failed: %v", err)
		return nil, err
	}

	next := entities.NewUserLocation(pos.Lat, pos.Lng, c.now())
	if werr := c.store.Write(ctx, next, c.scoper.CurrentUserScope(ctx)); werr != nil {
		c.log.Warnf("[LOCATION] persisting location: %v", werr)
	}
	c.set(entities.LocationStatusGranted, next)
	c.log.Debugf("[LOCATION] granted (%.5f, %.5f)", next.Lat, next.Lng)
	return next, nil
}

// ClearLocation deletes the persisted location and returns to idle.
func (c *Controller) ClearLocation(ctx context.Context) error {
	err := c.store.Remove(ctx, c.scoper.CurrentUserScope(ctx))
	c.set(entities.LocationStatusIdle, nil)
	return err
}
