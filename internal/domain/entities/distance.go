package entities

import "time"

// CachedDistanceEntry is one memoized distance. It is valid only while its
// Signature matches the current query and it is younger than the cache TTL.
// UpdatedAt is milliseconds since the Unix epoch.
type CachedDistanceEntry struct {
	Meters    float64 `json:"meters"`
	Signature string  `json:"signature"`
	UpdatedAt int64   `json:"updatedAt"`
}

// Age returns how old the entry is relative to now.
func (e CachedDistanceEntry) Age(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-e.UpdatedAt) * time.Millisecond
}

// DistanceCache maps a destination id (decimal string) to its cached entry.
// It is persisted as a single JSON object per user scope.
type DistanceCache map[string]CachedDistanceEntry

// Destination is a restaurant (or a dish's restaurant) whose travel distance
// from the user is wanted. FallbackMeters is the backend's own distance
// estimate, nil when the backend did not supply one.
type Destination struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Address        string   `json:"address,omitempty"`
	FallbackMeters *float64 `json:"distance,omitempty"`
}

// Query returns the free-text destination sent to the routing service:
// "<name>, <address>" when an address is known, otherwise just the name.
func (d Destination) Query() string {
	if d.Address != "" {
		return d.Name + ", " + d.Address
	}
	return d.Name
}

// ResolvedDistance pairs a destination with the distance shown to the user.
// Source records where the number came from.
type ResolvedDistance struct {
	Destination Destination    `json:"restaurant"`
	Meters      float64        `json:"meters"`
	Source      DistanceSource `json:"source"`
}

// DistanceSource tells consumers whether a distance came from the cache, a
// fresh route lookup, or the backend's fallback estimate.
type DistanceSource string

const (
	DistanceSourceCache    DistanceSource = "cache"
	DistanceSourceRoute    DistanceSource = "route"
	DistanceSourceFallback DistanceSource = "fallback"
)
