package routing

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strings"

	"dishfinder/internal/domain/entities"
	"dishfinder/internal/logger"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// DefaultVietmapBaseURL is the Vietmap API root.
const DefaultVietmapBaseURL = "https://maps.vietmap.vn/api"

// VietmapProvider resolves distances in three steps: text search to find the
// destination's ref_id, a place lookup for its coordinates, then the route
// matrix for origin → destination.
type VietmapProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	log     *zap.SugaredLogger
}

func NewVietmapProvider(client *http.Client, baseURL, apiKey string, log *zap.SugaredLogger) *VietmapProvider {
	if baseURL == "" {
		baseURL = DefaultVietmapBaseURL
	}
	return &VietmapProvider{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		log:     logger.OrNop(log),
	}
}

func (v *VietmapProvider) Name() string { return "vietmap" }

// Distance resolves q. Explicit finite destination coordinates skip the
// geocoding steps.
func (v *VietmapProvider) Distance(ctx context.Context, q Query) (*Result, error) {
	if v.apiKey == "" {
		return nil, missingKey("VIETMAP_API_KEY")
	}

	var dest entities.LatLng
	if q.DestinationCoords != nil && q.DestinationCoords.IsFinite() {
		dest = *q.DestinationCoords
	} else {
		if strings.TrimSpace(q.Destination) == "" {
			return nil, &ProviderError{Status: http.StatusBadRequest, Message: "Missing required query param: destination (or destinationLat/destinationLng)"}
		}
		refID, err := v.search(ctx, q.Origin, q.Destination)
		if err != nil {
			return nil, err
		}
		if dest, err = v.place(ctx, refID); err != nil {
			return nil, err
		}
	}

	return v.matrix(ctx, q.Origin, dest)
}

// search geocodes text near origin. The ADDRESS layer is tried first to cut
// down on POI noise; an empty or failed answer retries without layers.
func (v *VietmapProvider) search(ctx context.Context, origin entities.LatLng, text string) (string, error) {
	status, body, err := v.runSearch(ctx, origin, text, "ADDRESS")
	if err != nil || !isSuccess(status) || !nonEmptyArray(body) {
		v.log.Debugf("[ROUTING] vietmap ADDRESS search empty for %q, retrying without layers", text)
		status, body, err = v.runSearch(ctx, origin, text, "")
	}
	if err != nil {
		return "", &ProviderError{Status: http.StatusBadGateway, Message: "Vietmap search failed", Err: err}
	}
	if !isSuccess(status) || !nonEmptyArray(body) {
		return "", badGateway("Vietmap search failed", body)
	}

	// Closest item that has a ref_id; items without a distance sort last.
	var (
		bestRef  string
		bestDist = math.Inf(1)
		found    bool
	)
	gjson.ParseBytes(body).ForEach(func(_, item gjson.Result) bool {
		ref := item.Get("ref_id").String()
		if ref == "" {
			return true
		}
		d := math.Inf(1)
		if dv := item.Get("distance"); dv.Type == gjson.Number {
			d = dv.Float()
		}
		if !found || d < bestDist {
			bestRef, bestDist, found = ref, d, true
		}
		return true
	})
	if !found {
		return "", badGateway("Vietmap search returned no ref_id", []byte(gjson.GetBytes(body, "0").Raw))
	}
	return bestRef, nil
}

func (v *VietmapProvider) runSearch(ctx context.Context, origin entities.LatLng, text, layers string) (int, []byte, error) {
	params := url.Values{}
	params.Set("apikey", v.apiKey)
	params.Set("text", text)
	params.Set("display_type", "1")
	params.Set("focus", formatCoord(origin))
	if layers != "" {
		params.Set("layers", layers)
	}
	return fetch(ctx, v.client, v.baseURL+"/search/v4?"+params.Encode())
}

func (v *VietmapProvider) place(ctx context.Context, refID string) (entities.LatLng, error) {
	params := url.Values{}
	params.Set("apikey", v.apiKey)
	params.Set("refid", refID)

	status, body, err := fetch(ctx, v.client, v.baseURL+"/place/v4?"+params.Encode())
	if err != nil {
		return entities.LatLng{}, &ProviderError{Status: http.StatusBadGateway, Message: "Vietmap place lookup failed", Err: err}
	}
	if !isSuccess(status) {
		return entities.LatLng{}, badGateway("Vietmap place lookup failed", body)
	}

	lat, lng := gjson.GetBytes(body, "lat"), gjson.GetBytes(body, "lng")
	p := entities.LatLng{Lat: lat.Float(), Lng: lng.Float()}
	if lat.Type != gjson.Number || lng.Type != gjson.Number || !p.IsFinite() {
		return entities.LatLng{}, badGateway("Vietmap place returned invalid lat/lng", body)
	}
	return p, nil
}

func (v *VietmapProvider) matrix(ctx context.Context, origin, dest entities.LatLng) (*Result, error) {
	params := url.Values{}
	params.Set("api-version", "1.1")
	params.Set("apikey", v.apiKey)
	params.Add("point", formatCoord(origin))
	params.Add("point", formatCoord(dest))
	params.Set("sources", "0")
	params.Set("destinations", "1")

	status, body, err := fetch(ctx, v.client, v.baseURL+"/matrix?"+params.Encode())
	if err != nil {
		return nil, &ProviderError{Status: http.StatusBadGateway, Message: "Vietmap matrix request failed", Err: err}
	}
	if !isSuccess(status) {
		return nil, badGateway("Vietmap matrix request failed", body)
	}

	doc := gjson.ParseBytes(body)
	if doc.Get("code").String() != "OK" {
		return nil, badGateway("Vietmap matrix code not OK", body)
	}

	meters := doc.Get("distances.0.0")
	if meters.Type != gjson.Number {
		return nil, &ProviderError{Status: http.StatusBadGateway, Message: "Vietmap matrix returned no distance", Details: rawDetails(body), Err: ErrInvalidResponse}
	}

	res := &Result{DistanceMeters: meters.Float()}
	if d := doc.Get("durations.0.0"); d.Type == gjson.Number {
		f := d.Float()
		res.DurationSeconds = &f
	}
	return res, nil
}

func nonEmptyArray(body []byte) bool {
	doc := gjson.ParseBytes(body)
	return doc.IsArray() && len(doc.Array()) > 0
}
