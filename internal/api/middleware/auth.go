// Package middleware provides HTTP middleware for the Gin router.
//
// Go Learning Note — Middleware Pattern (Gin):
// In Gin, middleware is any function with the signature `gin.HandlerFunc`, which
// is `func(*gin.Context)`. Middleware functions form a chain: each one runs,
// optionally calls c.Next() to pass control to the next handler, and can call
// c.Abort() to stop the chain. This is the "chain of responsibility" pattern.
//
// Go Learning Note — "github.com/gin-gonic/gin":
// Gin wraps net/http with a fast radix-tree router, JSON binding and
// middleware support.
package middleware

import (
	"net"
	"net/http"
	"strings"

	"dishfinder/internal/services"

	"github.com/gin-gonic/gin"
)

// Context keys for values passed from middleware to handlers.
//
// Go Learning Note — Context Values:
// Gin's c.Set/c.Get stores request-scoped values in the *gin.Context. Named
// constants instead of raw strings avoid typos across packages.
const (
	ProfileKey   = "profile"
	RequestIDKey = "request_id"

	DeviceIDHeader  = "X-Device-ID"
	RequestIDHeader = "X-Request-ID"
)

// ProfileAuth opens the caller's client profile. X-Device-ID names the
// profile and is required. An optional "Authorization: Bearer <jwt>" is
// stored as the profile's token; the token's subject picks the user scope.
// The token is decoded, not verified: the scope only partitions the
// caller's own storage.
//
// Go Learning Note — Returning Functions (Closures):
// ProfileAuth(profiles) returns a gin.HandlerFunc that captures profiles.
// This is how Gin middleware receives its dependencies.
func ProfileAuth(profiles *services.Profiles) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID := strings.TrimSpace(c.GetHeader(DeviceIDHeader))
		if deviceID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + DeviceIDHeader + " header"})
			c.Abort()
			return
		}

		token := ""
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			// strings.SplitN splits into at most 2 parts, handling tokens with spaces.
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
				c.Abort()
				return
			}
			token = strings.TrimSpace(parts[1])
		}

		svc, err := profiles.Open(c.Request.Context(), deviceID, token)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set(ProfileKey, svc)
		c.Next()
	}
}

// GetProfile retrieves the LocationService set by ProfileAuth.
//
// Go Learning Note — Type Assertion:
// c.MustGet panics when the key is missing, and the .(type) assertion panics
// on a wrong type. Both are acceptable here because the route group always
// installs ProfileAuth first.
func GetProfile(c *gin.Context) *services.LocationService {
	return c.MustGet(ProfileKey).(*services.LocationService)
}

// SecureContext reports whether the request reached the server over a
// secure origin: TLS, a TLS-terminating proxy, or a loopback host.
// Geolocation is only offered in secure contexts.
func SecureContext(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}

	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
