package handlers

import (
	"errors"
	"net/http"

	"dishfinder/internal/api/middleware"
	"dishfinder/internal/domain/entities"
	"dishfinder/internal/location"
	"dishfinder/pkg/utils"

	"github.com/gin-gonic/gin"
)

// LocationHandler exposes the profile's stored location and the
// acquisition flow. The device fix itself comes from the client, which
// reports either a position or the error its device gave it.
type LocationHandler struct{}

func NewLocationHandler() *LocationHandler {
	return &LocationHandler{}
}

// ReportLocationRequest carries what the client's device answered.
// Exactly one of Lat/Lng or Error is expected.
type ReportLocationRequest struct {
	Lat      *float64         `json:"lat"`
	Lng      *float64         `json:"lng"`
	Accuracy float64          `json:"accuracy"`
	Error    *PositionFailure `json:"error"`
}

// PositionFailure mirrors the device API's error: code 1 is permission
// denied, 2 position unavailable, 3 timeout.
type PositionFailure struct {
	Code    int    `json:"code" binding:"required"`
	Message string `json:"message"`
}

func (r ReportLocationRequest) environment(c *gin.Context) location.Environment {
	reported := location.Reported{}
	switch {
	case r.Error != nil:
		reported.Err = &location.PositionError{Code: location.PositionErrorCode(r.Error.Code), Message: r.Error.Message}
	case r.Lat != nil && r.Lng != nil:
		reported.Position = &location.Position{Lat: *r.Lat, Lng: *r.Lng, Accuracy: r.Accuracy}
	}
	return location.Environment{
		SecureContext: middleware.SecureContext(c.Request),
		Geolocator:    reported,
	}
}

// GetLocation handles GET /api/location
func (h *LocationHandler) GetLocation(c *gin.Context) {
	svc := middleware.GetProfile(c)
	ctx := c.Request.Context()

	loc, status := svc.Location(ctx)
	c.JSON(http.StatusOK, gin.H{
		"location":        loc,
		"status":          status,
		"promptDismissed": svc.PromptDismissed(ctx),
	})
}

// ReportLocation handles PUT /api/location
func (h *LocationHandler) ReportLocation(c *gin.Context) {
	h.acquire(c, false)
}

// RefreshLocation handles POST /api/location/refresh. It is ReportLocation
// plus a distance cache reset on success.
func (h *LocationHandler) RefreshLocation(c *gin.Context) {
	h.acquire(c, true)
}

func (h *LocationHandler) acquire(c *gin.Context, refresh bool) {
	var req ReportLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := middleware.GetProfile(c)
	ctx := c.Request.Context()
	previous, _ := svc.Location(ctx)

	request := svc.RequestLocation
	if refresh {
		request = svc.RefreshLocation
	}
	loc, status, err := request(ctx, req.environment(c))
	if err != nil {
		c.JSON(acquireStatus(err), gin.H{"error": err.Error(), "status": status})
		return
	}

	body := gin.H{"location": loc, "status": status}
	if previous != nil {
		body["movedMeters"] = utils.HaversineMeters(previous.Lat, previous.Lng, loc.Lat, loc.Lng)
	}
	c.JSON(http.StatusOK, body)
}

func acquireStatus(err error) int {
	var perr *location.PositionError
	switch {
	case errors.Is(err, location.ErrInsecureContext), errors.Is(err, location.ErrGeolocationUnsupported):
		return http.StatusPreconditionFailed
	case errors.As(err, &perr) && perr.Code == location.PermissionDenied:
		return http.StatusForbidden
	case errors.As(err, &perr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ClearLocation handles DELETE /api/location[?caches=1]
func (h *LocationHandler) ClearLocation(c *gin.Context) {
	svc := middleware.GetProfile(c)
	withCaches := c.Query("caches") == "1" || c.Query("caches") == "true"

	if err := svc.ClearLocation(c.Request.Context(), withCaches); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": entities.LocationStatusIdle})
}

// DismissPrompt handles POST /api/location/prompt/dismiss
func (h *LocationHandler) DismissPrompt(c *gin.Context) {
	svc := middleware.GetProfile(c)
	if err := svc.DismissPrompt(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dismissed": true})
}

// GetPrompt handles GET /api/location/prompt
func (h *LocationHandler) GetPrompt(c *gin.Context) {
	svc := middleware.GetProfile(c)
	c.JSON(http.StatusOK, gin.H{"dismissed": svc.PromptDismissed(c.Request.Context())})
}
