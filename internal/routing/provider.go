package routing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"dishfinder/internal/domain/entities"
	"dishfinder/internal/telemetry"
)

// Query is one distance request. Destination is free text; when
// DestinationCoords is set, providers that accept coordinates skip
// geocoding.
type Query struct {
	Origin            entities.LatLng
	Destination       string
	DestinationCoords *entities.LatLng
}

// Result is the success body of the distance endpoints. Text fields are
// only filled by providers that localize them.
type Result struct {
	DistanceMeters  float64  `json:"distanceMeters"`
	DistanceText    *string  `json:"distanceText,omitempty"`
	DurationSeconds *float64 `json:"durationSeconds"`
	DurationText    *string  `json:"durationText,omitempty"`
}

// Provider resolves a Query against one upstream routing API.
type Provider interface {
	Name() string
	Distance(ctx context.Context, q Query) (*Result, error)
}

// Lookup adapts a Provider to the resolver's RouteLookup interface so the
// server can resolve distances in-process instead of calling its own proxy
// endpoint over HTTP.
type Lookup struct {
	provider Provider
	metrics  *telemetry.Metrics
}

func NewLookup(p Provider, metrics *telemetry.Metrics) *Lookup {
	return &Lookup{provider: p, metrics: metrics}
}

func (l *Lookup) DistanceMeters(ctx context.Context, origin entities.LatLng, destination string) (float64, error) {
	start := time.Now()
	res, err := l.provider.Distance(ctx, Query{Origin: origin, Destination: destination})
	l.metrics.ObserveRoute(l.provider.Name(), time.Since(start), err)
	if err != nil {
		return 0, err
	}
	return res.DistanceMeters, nil
}

// fetch performs a GET and returns status and body. Transport failures and
// unreadable bodies are errors; HTTP status handling is left to callers.
func fetch(ctx context.Context, client *http.Client, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatCoord(p entities.LatLng) string {
	return formatFloat(p.Lat) + "," + formatFloat(p.Lng)
}
