package routing

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"dishfinder/internal/logger"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// DefaultGoogleBaseURL is the Maps web service root.
const DefaultGoogleBaseURL = "https://maps.googleapis.com/maps/api"

// GoogleProvider resolves distances with the Distance Matrix API, sending
// the destination as free text and letting Google geocode it.
type GoogleProvider struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	language string
	region   string
	log      *zap.SugaredLogger
}

// GoogleOptions configures a GoogleProvider. Empty fields take defaults.
type GoogleOptions struct {
	BaseURL  string
	APIKey   string
	Language string
	Region   string
}

func NewGoogleProvider(client *http.Client, opts GoogleOptions, log *zap.SugaredLogger) *GoogleProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultGoogleBaseURL
	}
	return &GoogleProvider{
		client:   client,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		language: opts.Language,
		region:   opts.Region,
		log:      logger.OrNop(log),
	}
}

func (g *GoogleProvider) Name() string { return "google" }

// Distance asks the Distance Matrix for one origin and one destination.
//
// Go Learning Note — gjson:
// The matrix response nests the answer three levels deep
// (rows[0].elements[0].distance.value). gjson reads it with one path string
// instead of a tree of mirror structs, and Exists() tells a missing value
// apart from a zero.
func (g *GoogleProvider) Distance(ctx context.Context, q Query) (*Result, error) {
	if strings.TrimSpace(q.Destination) == "" {
		return nil, &ProviderError{Status: http.StatusBadRequest, Message: "Missing required query params: originLat, originLng, destination"}
	}
	if g.apiKey == "" {
		return nil, missingKey("GOOGLE_MAPS_API_KEY")
	}

	params := url.Values{}
	params.Set("origins", formatCoord(q.Origin))
	params.Set("destinations", q.Destination)
	params.Set("key", g.apiKey)
	if g.language != "" {
		params.Set("language", g.language)
	}
	if g.region != "" {
		params.Set("region", g.region)
	}

	status, body, err := fetch(ctx, g.client, g.baseURL+"/distancematrix/json?"+params.Encode())
	if err != nil {
		g.log.Warnf("[ROUTING] google request failed: %v", err)
		return nil, &ProviderError{Status: http.StatusBadGateway, Message: "Google Distance Matrix request failed", Err: err}
	}
	if !isSuccess(status) {
		return nil, badGateway("Google Distance Matrix request failed", body)
	}
	if !gjson.ValidBytes(body) {
		return nil, badGateway("Google Distance Matrix returned invalid JSON", nil)
	}

	doc := gjson.ParseBytes(body)
	if doc.Get("status").String() != "OK" {
		return nil, badGateway("Google API status not OK", body)
	}

	element := doc.Get("rows.0.elements.0")
	if !element.Exists() || element.Get("status").String() != "OK" {
		details := body
		if element.Exists() {
			details = []byte(element.Raw)
		}
		return nil, &ProviderError{
			Status:  http.StatusNotFound,
			Message: "No route found",
			Details: rawDetails(details),
			Err:     ErrRouteNotFound,
		}
	}

	meters := element.Get("distance.value")
	if meters.Type != gjson.Number {
		return nil, &ProviderError{Status: http.StatusBadGateway, Message: "Google element returned no distance", Details: rawDetails([]byte(element.Raw)), Err: ErrInvalidResponse}
	}

	res := &Result{DistanceMeters: meters.Float()}
	if v := element.Get("distance.text"); v.Exists() {
		s := v.String()
		res.DistanceText = &s
	}
	if v := element.Get("duration.value"); v.Type == gjson.Number {
		f := v.Float()
		res.DurationSeconds = &f
	}
	if v := element.Get("duration.text"); v.Exists() {
		s := v.String()
		res.DurationText = &s
	}
	return res, nil
}
