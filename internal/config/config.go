// Package config loads AutoSnapper settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/autosnapper/internal/netutil"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the capture server.
type Config struct {
	// HTTP listener
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	CORSOrigin       string

	// Logging
	LogLevel string
	LogFile  string

	// Persistence
	SnapshotDir   string
	HistoryDBPath string
	HistoryLimit  int
	AuditDir      string
	WarmupConfig  string

	// Capture engine
	CaptureBackend        string
	CDPAddress            string
	CDPPort               int
	BrowserAutoLaunch     bool
	BrowserPath           string
	BrowserProfileDir     string
	Headless              bool
	NoSandbox             bool
	UserAgent             string
	Stealth               bool
	ViewportWidth         int
	ViewportHeight        int
	FullPage              bool
	WaitIdleMS            int
	CaptureTimeoutMS      int
	MaxConcurrentCaptures int

	// Cache
	CacheBackend    string
	CacheTTL        time.Duration
	CacheMaxEntries int
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisPrefix     string

	// Notifications
	NotifyURL string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:         getEnvOrDefault("AUTOSNAPPER_BIND_ADDR", "0.0.0.0:8080"),
		PortCandidates:   splitList(getEnvOrDefault("AUTOSNAPPER_PORT_CANDIDATES", "0.0.0.0:8081,0.0.0.0:8082,0.0.0.0:8083")),
		PortAutoFallback: getEnvBoolOrDefault("AUTOSNAPPER_PORT_AUTO_FALLBACK", true),
		CORSOrigin:       getEnvOrDefault("AUTOSNAPPER_CORS_ORIGIN", "*"),

		LogLevel: strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFile:  getEnvOrDefault("LOG_FILE", "logs/autosnapper.log"),

		SnapshotDir:   getEnvOrDefault("SNAPSHOT_DIR", "./snapshots"),
		HistoryDBPath: getEnvOrDefault("HISTORY_DB_PATH", "./data/history.db"),
		HistoryLimit:  getEnvIntOrDefault("HISTORY_LIMIT", 50),
		AuditDir:      getEnvOrDefault("AUDIT_DIR", ""),
		WarmupConfig:  getEnvOrDefault("WARMUP_CONFIG", "./config/warmup.yaml"),

		CaptureBackend:        strings.ToLower(getEnvOrDefault("CAPTURE_BACKEND", "chromedp")),
		CDPAddress:            getEnvOrDefault("CHROMIUM_CDP_ADDRESS", ""),
		CDPPort:               getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		BrowserAutoLaunch:     getEnvBoolOrDefault("BROWSER_AUTO_LAUNCH", false),
		BrowserPath:           getEnvOrDefault("BROWSER_PATH", ""),
		BrowserProfileDir:     getEnvOrDefault("BROWSER_PROFILE_DIR", "./data/browser-profile"),
		Headless:              getEnvBoolOrDefault("BROWSER_HEADLESS", true),
		NoSandbox:             getEnvBoolOrDefault("BROWSER_NO_SANDBOX", false),
		UserAgent:             getEnvOrDefault("CAPTURE_USER_AGENT", ""),
		Stealth:               getEnvBoolOrDefault("CAPTURE_STEALTH", false),
		ViewportWidth:         getEnvIntOrDefault("CAPTURE_VIEWPORT_WIDTH", 1280),
		ViewportHeight:        getEnvIntOrDefault("CAPTURE_VIEWPORT_HEIGHT", 800),
		FullPage:              getEnvBoolOrDefault("CAPTURE_FULL_PAGE", true),
		WaitIdleMS:            getEnvIntOrDefault("CAPTURE_WAIT_IDLE_MS", 500),
		CaptureTimeoutMS:      getEnvIntOrDefault("CAPTURE_TIMEOUT_MS", 30000),
		MaxConcurrentCaptures: getEnvIntOrDefault("MAX_CONCURRENT_CAPTURES", 2),

		CacheBackend:    strings.ToLower(getEnvOrDefault("CACHE_BACKEND", "memory")),
		CacheTTL:        time.Duration(getEnvIntOrDefault("CACHE_TTL_SECONDS", 3600)) * time.Second,
		CacheMaxEntries: getEnvIntOrDefault("CACHE_MAX_ENTRIES", 256),
		RedisAddr:       getEnvOrDefault("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:   getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:         getEnvIntOrDefault("REDIS_DB", 0),
		RedisPrefix:     getEnvOrDefault("REDIS_PREFIX", "autosnapper:cache:"),

		NotifyURL: getEnvOrDefault("NOTIFY_URL", ""),
	}

	// Hosting platforms hand out a bare port.
	if port := os.Getenv("PORT"); port != "" && os.Getenv("AUTOSNAPPER_BIND_ADDR") == "" {
		addr, err := netutil.PlatformAddr(port)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		cfg.BindAddr = addr
		cfg.PortAutoFallback = false
	}

	cfg.clamp()
	return cfg, nil
}

func (c *Config) clamp() {
	if c.HistoryLimit < 1 {
		c.HistoryLimit = 1
	}
	if c.MaxConcurrentCaptures < 1 {
		c.MaxConcurrentCaptures = 1
	}
	if c.CaptureTimeoutMS < 1000 {
		c.CaptureTimeoutMS = 1000
	}
	if c.WaitIdleMS < 0 {
		c.WaitIdleMS = 0
	}
	if c.ViewportWidth < 320 {
		c.ViewportWidth = 320
	}
	if c.ViewportHeight < 200 {
		c.ViewportHeight = 200
	}
	if c.CacheTTL < 0 {
		c.CacheTTL = 0
	}
	if c.CacheMaxEntries < 1 {
		c.CacheMaxEntries = 1
	}
}

// CDPURL returns the DevTools HTTP endpoint, or "" when the capture
// backend should launch its own browser.
func (c *Config) CDPURL() string {
	if c.CDPAddress == "" {
		return ""
	}
	return "http://" + net.JoinHostPort(c.CDPAddress, strconv.Itoa(c.CDPPort))
}

// CaptureTimeout returns the per-capture deadline.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.CaptureTimeoutMS) * time.Millisecond
}

// WaitIdle returns the network-idle window applied after navigation.
func (c *Config) WaitIdle() time.Duration {
	return time.Duration(c.WaitIdleMS) * time.Millisecond
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
