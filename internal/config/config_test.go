package config

import (
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Distance.CacheTTL != 7*24*time.Hour {
		t.Errorf("Expected 7 day TTL, got %v", cfg.Distance.CacheTTL)
	}
	if cfg.Distance.ConcurrencyLimit != 3 {
		t.Errorf("Expected concurrency 3, got %d", cfg.Distance.ConcurrencyLimit)
	}
	if cfg.Location.Timeout != 10*time.Second || cfg.Location.MaximumAge != 30*time.Second || !cfg.Location.HighAccuracy {
		t.Errorf("Unexpected location options %+v", cfg.Location)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DISTANCE_CACHE_TTL_HOURS", "24")
	t.Setenv("DISTANCE_CONCURRENCY", "5")
	t.Setenv("DISTANCE_PROVIDER", "Google")
	t.Setenv("GOOGLE_MAPS_API_KEY", "g-key")
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != ":9090" {
		t.Errorf("Expected :9090, got %q", cfg.Server.Port)
	}
	if cfg.Distance.CacheTTL != 24*time.Hour {
		t.Errorf("Expected 24h TTL, got %v", cfg.Distance.CacheTTL)
	}
	if cfg.Distance.ConcurrencyLimit != 5 || cfg.Distance.Provider != "google" {
		t.Errorf("Unexpected distance config %+v", cfg.Distance)
	}
	if cfg.Routing.GoogleAPIKey != "g-key" {
		t.Errorf("Expected google key, got %q", cfg.Routing.GoogleAPIKey)
	}
	if cfg.Storage.Backend != "redis" || cfg.Storage.RedisDB != 2 {
		t.Errorf("Unexpected storage config %+v", cfg.Storage)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected debug, got %q", cfg.Log.Level)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"Unknown provider", "DISTANCE_PROVIDER", "osm"},
		{"Unknown backend", "STORAGE_BACKEND", "sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_MalformedNumbersKeepDefaults(t *testing.T) {
	t.Setenv("DISTANCE_CONCURRENCY", "many")
	t.Setenv("DISTANCE_CACHE_TTL_HOURS", "-3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Distance.ConcurrencyLimit != 3 || cfg.Distance.CacheTTL != 7*24*time.Hour {
		t.Errorf("Expected defaults, got %+v", cfg.Distance)
	}
}
