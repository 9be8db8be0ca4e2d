package api

import (
	"net/http"

	"dishfinder/internal/api/handlers"
	"dishfinder/internal/api/middleware"
	"dishfinder/internal/routing"
	"dishfinder/internal/services"
	"dishfinder/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Router struct {
	profiles        *services.Profiles
	providers       []routing.Provider
	distanceHandler *handlers.DistanceHandler
	locationHandler *handlers.LocationHandler
	nearbyHandler   *handlers.NearbyHandler
	sessionHandler  *handlers.SessionHandler
	metrics         *telemetry.Metrics
	gatherer        prometheus.Gatherer
	log             *zap.SugaredLogger
}

// NewRouter wires the handlers. providers are mounted at
// /api/<name>/distance; gatherer backs /metrics.
func NewRouter(
	profiles *services.Profiles,
	nearby *services.NearbyService,
	providers []routing.Provider,
	metrics *telemetry.Metrics,
	gatherer prometheus.Gatherer,
	log *zap.SugaredLogger,
) *Router {
	return &Router{
		profiles:        profiles,
		providers:       providers,
		distanceHandler: handlers.NewDistanceHandler(metrics),
		locationHandler: handlers.NewLocationHandler(),
		nearbyHandler:   handlers.NewNearbyHandler(nearby),
		sessionHandler:  handlers.NewSessionHandler(),
		metrics:         metrics,
		gatherer:        gatherer,
		log:             log,
	}
}

func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.RequestID(), middleware.Observe(r.metrics, r.log))

	// Health check endpoint
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if r.gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	api := engine.Group("/api")

	// Distance proxy endpoints (no profile needed)
	for _, p := range r.providers {
		api.GET("/"+p.Name()+"/distance", r.distanceHandler.Proxy(p))
	}

	// Profile-scoped endpoints
	profile := api.Group("/")
	profile.Use(middleware.ProfileAuth(r.profiles))
	{
		profile.GET("/location", r.locationHandler.GetLocation)
		profile.PUT("/location", r.locationHandler.ReportLocation)
		profile.DELETE("/location", r.locationHandler.ClearLocation)
		profile.POST("/location/refresh", r.locationHandler.RefreshLocation)
		profile.GET("/location/prompt", r.locationHandler.GetPrompt)
		profile.POST("/location/prompt/dismiss", r.locationHandler.DismissPrompt)

		profile.POST("/distances", r.nearbyHandler.ResolveDistances)
		profile.DELETE("/distances", r.nearbyHandler.ClearDistances)

		profile.GET("/session", r.sessionHandler.GetSession)
		profile.POST("/session/logout", r.sessionHandler.Logout)
	}
}
