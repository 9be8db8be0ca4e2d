// Package utils provides small helpers shared by the server and its
// handlers: ids and distance math.
//
// Go Learning Note — "pkg/" Directory Convention:
// Code under pkg/ is intended to be importable by external projects (unlike
// internal/ which is compiler-enforced private). This is a community convention,
// not a Go language feature.
package utils

import (
	"github.com/google/uuid"
)

// GenerateID creates a new random (v4) UUID string. The server uses it for
// request ids.
//
// Go Learning Note — "github.com/google/uuid":
// uuid.New() creates a v4 (random) UUID like
// "550e8400-e29b-41d4-a716-446655440000". UUIDs can be generated without
// coordination, which is why every server instance can mint its own.
func GenerateID() string {
	return uuid.New().String()
}

// IsValidID reports whether s parses as a UUID. Client-supplied request ids
// are only echoed back when they do.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
