package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultBackendURL is the hosted capture service.
const DefaultBackendURL = "https://autosnapper.onrender.com"

// ClientConfig holds configuration for the snapctl client.
type ClientConfig struct {
	BackendURL     string
	RequestTimeout time.Duration
	RefreshDelay   time.Duration
	LogLevel       string
}

// LoadClient reads client configuration from environment variables.
func LoadClient() (*ClientConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &ClientConfig{
		BackendURL:     strings.TrimRight(getEnvOrDefault("AUTOSNAPPER_BACKEND_URL", DefaultBackendURL), "/"),
		RequestTimeout: time.Duration(getEnvIntOrDefault("AUTOSNAPPER_REQUEST_TIMEOUT_MS", 60000)) * time.Millisecond,
		RefreshDelay:   time.Duration(getEnvIntOrDefault("AUTOSNAPPER_REFRESH_DELAY_MS", 1000)) * time.Millisecond,
		LogLevel:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", "warn")),
	}
	if cfg.BackendURL == "" {
		cfg.BackendURL = DefaultBackendURL
	}
	if cfg.RequestTimeout < time.Second {
		cfg.RequestTimeout = time.Second
	}
	if cfg.RefreshDelay < 0 {
		cfg.RefreshDelay = 0
	}
	return cfg, nil
}
