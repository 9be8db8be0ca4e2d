package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dishfinder/internal/api"
	"dishfinder/internal/config"
	"dishfinder/internal/distance"
	"dishfinder/internal/location"
	"dishfinder/internal/logger"
	"dishfinder/internal/repository"
	"dishfinder/internal/repository/memory"
	"dishfinder/internal/repository/redis"
	"dishfinder/internal/routing"
	"dishfinder/internal/services"
	"dishfinder/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := logger.Init(cfg.Log.Level); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.GetLogger("server")

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	// Storage backend
	store, closeStore := openStore(cfg.Storage)
	defer closeStore()

	// Routing providers, served by the proxy endpoints
	httpClient := &http.Client{Timeout: cfg.Routing.RequestTimeout}
	providers := []routing.Provider{
		routing.NewVietmapProvider(httpClient, cfg.Routing.VietmapBaseURL, cfg.Routing.VietmapAPIKey, logger.GetLogger("vietmap")),
		routing.NewGoogleProvider(httpClient, routing.GoogleOptions{
			BaseURL:  cfg.Routing.GoogleBaseURL,
			APIKey:   cfg.Routing.GoogleAPIKey,
			Language: cfg.Routing.Language,
			Region:   cfg.Routing.Region,
		}, logger.GetLogger("google")),
	}

	// Route lookup used by the resolver: a remote distance service when
	// configured, otherwise the selected provider in-process.
	var routes distance.RouteLookup
	if cfg.Routing.ServiceURL != "" {
		routes = routing.NewClient(cfg.Routing.ServiceURL, cfg.Distance.Provider, cfg.Routing.RequestTimeout, metrics, logger.GetLogger("routing"))
		log.Infof("Resolving distances via %s (%s)", cfg.Routing.ServiceURL, cfg.Distance.Provider)
	} else {
		for _, p := range providers {
			if p.Name() == cfg.Distance.Provider {
				routes = routing.NewLookup(p, metrics)
			}
		}
		log.Infof("Resolving distances in-process with %s", cfg.Distance.Provider)
	}

	// Initialize services
	profiles := services.NewProfiles(store, routes, services.ProfileOptions{
		CacheTTL: cfg.Distance.CacheTTL,
		Plausibility: distance.Plausibility{
			NearbyThresholdMeters: cfg.Distance.NearbyThresholdMeters,
			FloorMeters:           cfg.Distance.AnomalyFloorMeters,
			Factor:                cfg.Distance.AnomalyFactor,
		},
		PositionOptions: location.PositionOptions{
			EnableHighAccuracy: cfg.Location.HighAccuracy,
			Timeout:            cfg.Location.Timeout,
			MaximumAge:         cfg.Location.MaximumAge,
		},
	}, metrics, logger.GetLogger("profiles"))
	nearby := services.NewNearbyService(cfg.Distance.ConcurrencyLimit, logger.GetLogger("nearby"))

	// Setup router
	router := api.NewRouter(profiles, nearby, providers, metrics, reg, logger.GetLogger("http"))

	engine := gin.New()
	engine.Use(gin.Recovery())
	router.Setup(engine)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("Starting dishfinder server on %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Graceful shutdown failed: %v", err)
	}
}

func openStore(cfg config.StorageConfig) (repository.KeyValueStore, func()) {
	log := logger.GetLogger("storage")

	if cfg.Backend == "redis" {
		store, err := redis.Dial(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to redis at %s: %v", cfg.RedisAddr, err)
		}
		log.Infof("Using redis storage at %s", cfg.RedisAddr)
		return store, func() { store.Close() }
	}

	store := memory.NewKVStore(cfg.SweepInterval)
	log.Info("Using in-memory storage")
	return store, store.Stop
}
