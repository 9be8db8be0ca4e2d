package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"dishfinder/internal/api/middleware"
	"dishfinder/internal/domain/entities"
	"dishfinder/internal/services"
	"dishfinder/pkg/utils"

	"github.com/gin-gonic/gin"
)

type NearbyHandler struct {
	nearby *services.NearbyService
}

func NewNearbyHandler(nearby *services.NearbyService) *NearbyHandler {
	return &NearbyHandler{nearby: nearby}
}

// ResolveDistancesRequest is a page of restaurants to measure. Origin
// defaults to the profile's stored location.
type ResolveDistancesRequest struct {
	Origin      *entities.LatLng       `json:"origin"`
	Restaurants []entities.Destination `json:"restaurants" binding:"required"`
}

type resolvedRestaurant struct {
	entities.ResolvedDistance
	DistanceText string `json:"distanceText"`
}

// ResolveDistances handles POST /api/distances
func (h *NearbyHandler) ResolveDistances(c *gin.Context) {
	var req ResolveDistancesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, r := range req.Restaurants {
		if r.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "every restaurant needs a name"})
			return
		}
	}

	svc := middleware.GetProfile(c)
	res, err := h.nearby.Resolve(c.Request.Context(), svc, req.Origin, req.Restaurants)
	if errors.Is(err, services.ErrNoOrigin) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// JSON object keys must be strings.
	distances := make(map[string]float64, len(res.Distances))
	for id, m := range res.Distances {
		distances[strconv.FormatInt(id, 10)] = m
	}
	restaurants := make([]resolvedRestaurant, len(res.Restaurants))
	for i, r := range res.Restaurants {
		text := "-"
		if _, ok := res.Distances[r.Destination.ID]; ok {
			text = utils.FormatDistance(r.Meters)
		}
		restaurants[i] = resolvedRestaurant{ResolvedDistance: r, DistanceText: text}
	}

	c.JSON(http.StatusOK, gin.H{
		"origin":      res.Origin,
		"distances":   distances,
		"restaurants": restaurants,
	})
}

// ClearDistances handles DELETE /api/distances
func (h *NearbyHandler) ClearDistances(c *gin.Context) {
	svc := middleware.GetProfile(c)
	if err := svc.ClearDistanceCache(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
