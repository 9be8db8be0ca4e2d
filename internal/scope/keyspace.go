// Package scope derives per-user storage keys so that cached locations and
// distances never leak between accounts sharing one client profile.
//
// A scope is the subject of the current auth token (or the last one seen).
// The empty string means "no scope" and selects the unscoped legacy keys.
package scope

// Logical storage keys. Scoped variants append ".<scope>".
const (
	LocationKeyPrefix        = "userLocation.v1"
	DistanceCacheKeyPrefix   = "distanceCache.v1"
	PromptDismissedKeyPrefix = "locationPromptDismissed.v1"

	// UserScopeKey holds the last known scope. It is never scoped itself.
	UserScopeKey = "userScope.v1"

	// TokenKey holds the raw auth token, as the web client keeps it.
	TokenKey = "token"
)

// ScopedKey returns "<prefix>.<scope>", or prefix alone when scope is empty.
func ScopedKey(prefix, scope string) string {
	if scope == "" {
		return prefix
	}
	return prefix + "." + scope
}

// LocationKey is the storage key of the persisted user location.
func LocationKey(scope string) string {
	return ScopedKey(LocationKeyPrefix, scope)
}

// DistanceCacheKey is the storage key of the distance cache blob.
func DistanceCacheKey(scope string) string {
	return ScopedKey(DistanceCacheKeyPrefix, scope)
}

// PromptDismissedKey is the storage key of the "don't ask for location" flag.
func PromptDismissedKey(scope string) string {
	return ScopedKey(PromptDismissedKeyPrefix, scope)
}
