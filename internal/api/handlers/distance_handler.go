package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"dishfinder/internal/domain/entities"
	"dishfinder/internal/routing"
	"dishfinder/internal/telemetry"

	"github.com/gin-gonic/gin"
)

// DistanceHandler serves the distance proxy endpoints. Each endpoint
// forwards to one routing provider and answers
// {distanceMeters, durationSeconds} or {error, details}.
type DistanceHandler struct {
	metrics *telemetry.Metrics
}

func NewDistanceHandler(metrics *telemetry.Metrics) *DistanceHandler {
	return &DistanceHandler{metrics: metrics}
}

// Proxy handles GET /api/<provider>/distance for p.
func (h *DistanceHandler) Proxy(p routing.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		originLat, okLat := c.GetQuery("originLat")
		originLng, okLng := c.GetQuery("originLng")
		if !okLat || !okLng || originLat == "" || originLng == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required query params: originLat, originLng"})
			return
		}

		lat, errLat := parseFinite(originLat)
		lng, errLng := parseFinite(originLng)
		if errLat != nil || errLng != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid originLat/originLng"})
			return
		}

		q := routing.Query{
			Origin:      entities.LatLng{Lat: lat, Lng: lng},
			Destination: c.Query("destination"),
		}
		destLat, errDLat := parseFinite(c.Query("destinationLat"))
		destLng, errDLng := parseFinite(c.Query("destinationLng"))
		if errDLat == nil && errDLng == nil {
			q.DestinationCoords = &entities.LatLng{Lat: destLat, Lng: destLng}
		}

		start := time.Now()
		res, err := p.Distance(c.Request.Context(), q)
		h.metrics.ObserveRoute(p.Name(), time.Since(start), err)
		if err != nil {
			writeProviderError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func writeProviderError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var pe *routing.ProviderError
	if errors.As(err, &pe) {
		body["error"] = pe.Message
		if len(pe.Details) > 0 {
			body["details"] = pe.Details
		}
	}
	c.JSON(routing.StatusOf(err), body)
}

var errNotFinite = errors.New("not a finite number")

func parseFinite(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}
