// Package entities defines the core domain models for distance discovery:
// coordinates, the user's last known location, cached distances and the
// destinations (restaurants) whose distance is being resolved. These structs
// live in the innermost layer of the architecture and have no dependencies on
// storage, HTTP, or routing providers.
//
// Go Learning Note — "internal/" directory:
// Packages under internal/ cannot be imported by code outside this module. Go
// enforces this at the compiler level, so the domain types can change freely
// without breaking external callers.
package entities

import (
	"encoding/json"
	"math"
	"time"
)

// LatLng is a geographic coordinate pair in decimal degrees.
//
// Go Learning Note — Value Types vs Reference Types:
// LatLng is a small, immutable data holder (two float64s, 16 bytes), so it is
// passed and returned by value. Larger or mutable structs are returned as
// pointers to avoid copies and allow shared mutation.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsFinite reports whether both components are finite numbers.
func (p LatLng) IsFinite() bool {
	return isFinite(p.Lat) && isFinite(p.Lng)
}

// UserLocation is the last coordinate fix obtained from the device.
// Timestamp is milliseconds since the Unix epoch.
type UserLocation struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
}

// NewUserLocation stamps a coordinate pair with the given time.
func NewUserLocation(lat, lng float64, at time.Time) *UserLocation {
	return &UserLocation{
		Lat:       lat,
		Lng:       lng,
		Timestamp: at.UnixMilli(),
	}
}

// LatLng returns the coordinate part of the location.
func (l *UserLocation) LatLng() LatLng {
	return LatLng{Lat: l.Lat, Lng: l.Lng}
}

// ParseUserLocation decodes a persisted location record. A record is only
// accepted when lat, lng and timestamp are all present as JSON numbers and
// lat/lng are finite; anything else yields (nil, false).
//
// Go Learning Note — Pointer Fields for "Presence":
// Decoding into *float64 lets us tell a missing field (nil) apart from an
// explicit zero. With plain float64 fields, {"lat":0} and {} would look the
// same after json.Unmarshal.
func ParseUserLocation(raw []byte) (*UserLocation, bool) {
	var rec struct {
		Lat       *float64 `json:"lat"`
		Lng       *float64 `json:"lng"`
		Timestamp *float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}
	if rec.Lat == nil || rec.Lng == nil || rec.Timestamp == nil {
		return nil, false
	}
	if !isFinite(*rec.Lat) || !isFinite(*rec.Lng) || !isFinite(*rec.Timestamp) {
		return nil, false
	}
	return &UserLocation{
		Lat:       *rec.Lat,
		Lng:       *rec.Lng,
		Timestamp: int64(*rec.Timestamp),
	}, true
}

// LocationStatus is the acquisition controller's current state.
//
// Go Learning Note — Typed String Enums:
// Go has no enum keyword. The idiomatic pattern is a named string type plus
// constants. String values serialize readably to JSON, which is why they are
// preferred over iota ints for anything that crosses an API boundary.
type LocationStatus string

const (
	LocationStatusIdle        LocationStatus = "idle"
	LocationStatusLoading     LocationStatus = "loading"
	LocationStatusGranted     LocationStatus = "granted"
	LocationStatusDenied      LocationStatus = "denied"
	LocationStatusUnavailable LocationStatus = "unavailable"
	LocationStatusError       LocationStatus = "error"
)

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
