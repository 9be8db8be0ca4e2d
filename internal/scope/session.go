package scope

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"dishfinder/internal/logger"
	"dishfinder/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// scopeClaims are tried in order; the first non-empty one names the user.
var scopeClaims = []string{"sub", "username", "email"}

// ScopeFromToken extracts the user scope from a JWT's payload segment. The
// header and signature are ignored: verification is the backend's job and
// here the subject only partitions local storage, so a token whose header
// this process cannot parse (an unknown alg, no alg, a missing signature
// segment) still names its user. Missing or malformed payloads yield "".
//
// Go Learning Note — Parser.DecodeSegment:
// jwt.Parser.DecodeSegment is the base64url decoder the parser uses for
// every segment. Calling it on the payload alone skips the header checks
// that ParseUnverified would apply; the JSON is then unmarshalled into
// MapClaims exactly as the parser would do it.
func ScopeFromToken(token string) string {
	if token == "" {
		return ""
	}
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return ""
	}
	payload, err := jwt.NewParser(jwt.WithPaddingAllowed()).DecodeSegment(parts[1])
	if err != nil {
		return ""
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	for _, name := range scopeClaims {
		if s := claimString(claims[name]); s != "" {
			return s
		}
	}
	return ""
}

// claimString renders a claim value as a scope string. Zero values count as
// absent so that {"sub": ""} falls through to the next claim.
func claimString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if !t {
			return ""
		}
		return "true"
	default:
		return ""
	}
}

// Session is the explicit per-profile context threaded through the location
// store, distance cache and resolver. It owns the profile's key-value store
// (browser localStorage in the web client, a namespaced backend on the
// server) and knows where the auth token lives.
type Session struct {
	store repository.KeyValueStore
	log   *zap.SugaredLogger
}

// NewSession creates a session over store. log may be nil.
func NewSession(store repository.KeyValueStore, log *zap.SugaredLogger) *Session {
	return &Session{store: store, log: logger.OrNop(log)}
}

// Store returns the session's key-value store.
func (s *Session) Store() repository.KeyValueStore {
	return s.store
}

// Token returns the stored auth token, "" if none.
func (s *Session) Token(ctx context.Context) string {
	token, err := s.store.Get(ctx, TokenKey)
	if err != nil {
		if !errors.Is(err, repository.ErrKeyNotFound) {
			s.log.Warnf("[SCOPE] reading token: %v", err)
		}
		return ""
	}
	return token
}

// SetToken stores the auth token after login.
func (s *Session) SetToken(ctx context.Context, token string) error {
	return s.store.Set(ctx, TokenKey, token)
}

// RemoveToken drops the auth token. The last known scope is kept until
// ClearStoredUserScope so cleanup running after the token is gone still
// targets the right keys.
func (s *Session) RemoveToken(ctx context.Context) error {
	return s.store.Delete(ctx, TokenKey)
}

// CurrentUserScope decodes the current token's subject. On success the
// value is remembered as the last known scope and returned; otherwise the
// last known scope is returned, or "" when there is none. It never fails.
func (s *Session) CurrentUserScope(ctx context.Context) string {
	if sc := ScopeFromToken(s.Token(ctx)); sc != "" {
		if err := s.store.Set(ctx, UserScopeKey, sc); err != nil {
			s.log.Warnf("[SCOPE] persisting last known scope: %v", err)
		}
		return sc
	}

	last, err := s.store.Get(ctx, UserScopeKey)
	if err != nil {
		return ""
	}
	return last
}

// ClearStoredUserScope forgets the last known scope.
func (s *Session) ClearStoredUserScope(ctx context.Context) error {
	return s.store.Delete(ctx, UserScopeKey)
}
