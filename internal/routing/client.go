package routing

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dishfinder/internal/domain/entities"
	"dishfinder/internal/logger"
	"dishfinder/internal/telemetry"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Client calls a distance endpoint over HTTP:
//
//	GET <baseURL>/api/<provider>/distance?originLat=..&originLng=..&destination=..
//
// Any non-2xx answer, or a 2xx answer without a numeric distanceMeters, is a
// failure.
type Client struct {
	httpClient *http.Client
	baseURL    string
	provider   string
	metrics    *telemetry.Metrics
	log        *zap.SugaredLogger
}

// NewClient creates a client for baseURL (for example
// "http://localhost:8080") using the given provider path segment.
func NewClient(baseURL, provider string, timeout time.Duration, metrics *telemetry.Metrics, log *zap.SugaredLogger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		provider:   provider,
		metrics:    metrics,
		log:        logger.OrNop(log),
	}
}

// DistanceMeters implements the resolver's route lookup.
func (c *Client) DistanceMeters(ctx context.Context, origin entities.LatLng, destination string) (float64, error) {
	start := time.Now()
	meters, err := c.distance(ctx, origin, destination)
	c.metrics.ObserveRoute(c.provider, time.Since(start), err)
	return meters, err
}

func (c *Client) distance(ctx context.Context, origin entities.LatLng, destination string) (float64, error) {
	params := url.Values{}
	params.Set("originLat", formatFloat(origin.Lat))
	params.Set("originLng", formatFloat(origin.Lng))
	params.Set("destination", destination)

	status, body, err := fetch(ctx, c.httpClient, c.baseURL+"/api/"+c.provider+"/distance?"+params.Encode())
	if err != nil {
		c.log.Warnf("[ROUTING] distance request failed: %v", err)
		return 0, err
	}

	if !isSuccess(status) {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = "Distance request failed"
		}
		pe := &ProviderError{Status: status, Message: msg, Details: rawDetails([]byte(gjson.GetBytes(body, "details").Raw))}
		if status == http.StatusNotFound {
			pe.Err = ErrRouteNotFound
		}
		return 0, pe
	}

	meters := gjson.GetBytes(body, "distanceMeters")
	if meters.Type != gjson.Number {
		return 0, ErrInvalidResponse
	}
	return meters.Float(), nil
}
