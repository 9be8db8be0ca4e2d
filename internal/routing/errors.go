// Package routing talks to the road-distance providers. It contains the
// Google Distance Matrix and Vietmap providers that back the distance proxy
// endpoints, and the HTTP client the distance resolver uses to reach those
// endpoints.
package routing

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRouteNotFound means the provider answered but has no route between
	// the two points.
	ErrRouteNotFound = errors.New("no route found")
	// ErrInvalidResponse means a 2xx response did not carry a numeric
	// distanceMeters.
	ErrInvalidResponse = errors.New("invalid distance response")
)

// ProviderError is a failed distance request, carrying the HTTP status the
// proxy answers with and the upstream payload for diagnosis.
type ProviderError struct {
	Status  int
	Message string
	Details json.RawMessage
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s (%d): %v", e.Message, e.Status, e.Err)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// missingKey is the error for an unconfigured provider credential.
func missingKey(envName string) *ProviderError {
	return &ProviderError{
		Status:  http.StatusInternalServerError,
		Message: "Missing env var: " + envName,
	}
}

func badGateway(message string, details []byte) *ProviderError {
	return &ProviderError{
		Status:  http.StatusBadGateway,
		Message: message,
		Details: rawDetails(details),
	}
}

// rawDetails keeps details only when they are valid JSON, so they can be
// embedded in an error body verbatim.
func rawDetails(b []byte) json.RawMessage {
	if len(b) == 0 || !json.Valid(b) {
		return nil
	}
	return json.RawMessage(b)
}

// StatusOf returns the HTTP status an error should be reported with.
func StatusOf(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Status
	}
	if errors.Is(err, ErrRouteNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
