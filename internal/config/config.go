// Package config centralizes all application configuration into typed structs.
//
// Go Learning Note — Configuration Management:
// Defaults live in NewDefaultConfig as struct literals. Load overlays
// environment variables on top, after github.com/joho/godotenv has copied an
// optional .env file into the process environment. Typed structs (not raw
// strings/maps) give compile-time safety and IDE autocompletion.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the top-level configuration container.
//
// Go Learning Note — Struct Composition:
// Go doesn't have classes or inheritance. Config "has a" ServerConfig,
// DistanceConfig, etc. Each consumer receives only the sub-struct it needs.
type Config struct {
	Server   ServerConfig
	Distance DistanceConfig
	Location LocationConfig
	Routing  RoutingConfig
	Storage  StorageConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
//
// Go Learning Note — time.Duration:
// Go uses time.Duration (an int64 of nanoseconds) instead of raw integers for
// timeouts and intervals, so "10 * time.Second" is self-documenting.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DistanceConfig controls caching, fan-out and the plausibility guard.
// A fresh route result is rejected when the fallback is in
// (0, NearbyThresholdMeters] and the result exceeds
// max(AnomalyFloorMeters, fallback*AnomalyFactor).
type DistanceConfig struct {
	CacheTTL              time.Duration
	ConcurrencyLimit      int
	NearbyThresholdMeters float64
	AnomalyFloorMeters    float64
	AnomalyFactor         float64
	Provider              string // "vietmap" or "google"
}

// LocationConfig is passed to the device on every position request.
type LocationConfig struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// RoutingConfig holds provider credentials and endpoints. When ServiceURL is
// set, distances are resolved by calling that service's distance endpoint
// over HTTP; otherwise the configured provider is called in-process.
type RoutingConfig struct {
	GoogleAPIKey   string
	VietmapAPIKey  string
	GoogleBaseURL  string
	VietmapBaseURL string
	ServiceURL     string
	RequestTimeout time.Duration
	Language       string
	Region         string
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Backend       string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SweepInterval time.Duration
}

type LogConfig struct {
	Level string
}

// NewDefaultConfig returns a Config populated with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Distance: DistanceConfig{
			CacheTTL:              7 * 24 * time.Hour,
			ConcurrencyLimit:      3,
			NearbyThresholdMeters: 10_000,
			AnomalyFloorMeters:    50_000,
			AnomalyFactor:         10,
			Provider:              "vietmap",
		},
		Location: LocationConfig{
			HighAccuracy: true,
			Timeout:      10 * time.Second,
			MaximumAge:   30 * time.Second,
		},
		Routing: RoutingConfig{
			GoogleBaseURL:  "https://maps.googleapis.com/maps/api",
			VietmapBaseURL: "https://maps.vietmap.vn/api",
			RequestTimeout: 15 * time.Second,
			Language:       "vi",
			Region:         "VN",
		},
		Storage: StorageConfig{
			Backend:       "memory",
			RedisAddr:     "localhost:6379",
			SweepInterval: time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load returns the defaults overlaid with environment variables. A missing
// .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := NewDefaultConfig()
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if port := getEnv("SERVER_PORT", ""); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Server.Port = port
	}

	if hours := getEnvInt("DISTANCE_CACHE_TTL_HOURS", 0); hours > 0 {
		cfg.Distance.CacheTTL = time.Duration(hours) * time.Hour
	}
	cfg.Distance.ConcurrencyLimit = getEnvInt("DISTANCE_CONCURRENCY", cfg.Distance.ConcurrencyLimit)
	cfg.Distance.Provider = strings.ToLower(getEnv("DISTANCE_PROVIDER", cfg.Distance.Provider))

	cfg.Routing.GoogleAPIKey = getEnv("GOOGLE_MAPS_API_KEY", cfg.Routing.GoogleAPIKey)
	cfg.Routing.VietmapAPIKey = getEnv("VIETMAP_API_KEY", cfg.Routing.VietmapAPIKey)
	cfg.Routing.ServiceURL = getEnv("ROUTING_SERVICE_URL", cfg.Routing.ServiceURL)

	cfg.Storage.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", cfg.Storage.Backend))
	cfg.Storage.RedisAddr = getEnv("REDIS_ADDR", cfg.Storage.RedisAddr)
	cfg.Storage.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Storage.RedisPassword)
	cfg.Storage.RedisDB = getEnvInt("REDIS_DB", cfg.Storage.RedisDB)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Distance.Provider {
	case "vietmap", "google":
	default:
		return fmt.Errorf("config: unknown distance provider %q", c.Distance.Provider)
	}
	switch c.Storage.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}
