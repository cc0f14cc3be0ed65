package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/autosnapper/internal/api"
	"github.com/dgnsrekt/autosnapper/internal/browser"
	"github.com/dgnsrekt/autosnapper/internal/cache"
	"github.com/dgnsrekt/autosnapper/internal/capture"
	"github.com/dgnsrekt/autosnapper/internal/config"
	"github.com/dgnsrekt/autosnapper/internal/controller"
	"github.com/dgnsrekt/autosnapper/internal/events"
	"github.com/dgnsrekt/autosnapper/internal/history"
	"github.com/dgnsrekt/autosnapper/internal/netutil"
	"github.com/dgnsrekt/autosnapper/internal/notify"
	"github.com/dgnsrekt/autosnapper/internal/snapshot"
	"github.com/dgnsrekt/autosnapper/internal/storage"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("autosnapper config loaded",
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"capture_backend", cfg.CaptureBackend,
		"cache_backend", cfg.CacheBackend,
		"browser_auto_launch", cfg.BrowserAutoLaunch,
		"history_limit", cfg.HistoryLimit,
		"max_concurrent_captures", cfg.MaxConcurrentCaptures,
		"snapshot_dir", cfg.SnapshotDir,
		"history_db", cfg.HistoryDBPath,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ln, err := netutil.Plan{
		Preferred:  cfg.BindAddr,
		Candidates: cfg.PortCandidates,
		Fallback:   cfg.PortAutoFallback,
	}.Listen()
	if err != nil {
		slog.Error("failed to bind", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	bindAddr := ln.Addr().String()

	remoteURL := cfg.CDPURL()
	var launcher *browser.Launcher
	if cfg.BrowserAutoLaunch {
		addr := cfg.CDPAddress
		if addr == "" {
			addr = "127.0.0.1"
		}
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress:  addr,
			CDPPort:     cfg.CDPPort,
			BrowserPath: cfg.BrowserPath,
			ProfileDir:  cfg.BrowserProfileDir,
			Headless:    cfg.Headless,
			NoSandbox:   cfg.NoSandbox,
		})
		launchCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := launcher.Launch(launchCtx)
		cancel()
		if err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
		remoteURL = launcher.CDPURL()
	}

	capturer, err := capture.NewCapturer(capture.Config{
		Backend:     cfg.CaptureBackend,
		RemoteURL:   remoteURL,
		BrowserPath: cfg.BrowserPath,
		Headless:    cfg.Headless,
		NoSandbox:   cfg.NoSandbox,
		UserAgent:   cfg.UserAgent,
		Stealth:     cfg.Stealth,
		Timeout:     cfg.CaptureTimeout(),
	})
	if err != nil {
		slog.Error("failed to create capturer", "backend", cfg.CaptureBackend, "available", capture.ListBackends(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := capturer.Close(); err != nil {
			slog.Debug("capturer close failed", "error", err)
		}
	}()

	resultCache, err := newCache(cfg)
	if err != nil {
		slog.Error("failed to create cache", "backend", cfg.CacheBackend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := resultCache.Close(); err != nil {
			slog.Debug("cache close failed", "error", err)
		}
	}()

	snapStore, err := snapshot.NewStore(cfg.SnapshotDir)
	if err != nil {
		slog.Error("failed to create snapshot store", "dir", cfg.SnapshotDir, "error", err)
		os.Exit(1)
	}

	hist, err := history.Open(cfg.HistoryDBPath)
	if err != nil {
		slog.Error("failed to open history", "path", cfg.HistoryDBPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := hist.Close(); err != nil {
			slog.Debug("history close failed", "error", err)
		}
	}()

	broker := events.NewBroker()
	svc := controller.NewService(capturer, resultCache, snapStore, hist, controller.Options{
		Capture: capture.Options{
			Width:    cfg.ViewportWidth,
			Height:   cfg.ViewportHeight,
			FullPage: cfg.FullPage,
			WaitIdle: cfg.WaitIdle(),
			Timeout:  cfg.CaptureTimeout(),
		},
		HistoryLimit:  cfg.HistoryLimit,
		MaxConcurrent: cfg.MaxConcurrentCaptures,
	}).WithEvents(broker)

	if cfg.AuditDir != "" {
		audit := storage.NewJSONLWriter(cfg.AuditDir, "captures", 1024, 50)
		defer func() {
			if err := audit.Close(); err != nil {
				slog.Debug("audit close failed", "error", err)
			}
		}()
		svc.WithAudit(audit)
	}
	if cfg.NotifyURL != "" {
		httpClient := &http.Client{Timeout: 10 * time.Second}
		svc.WithNotifier(func(ctx context.Context, message string) error {
			return notify.Send(ctx, httpClient, cfg.NotifyURL, message)
		})
	}

	h := api.NewServer(svc, api.Options{Events: broker, CORSOrigin: cfg.CORSOrigin})
	srv := &http.Server{Addr: bindAddr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("autosnapper listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("autosnapper server failed", "error", err)
			os.Exit(1)
		}
	}()

	warmupCtx, stopWarmup := context.WithCancel(context.Background())
	go runWarmup(warmupCtx, svc, cfg.WarmupConfig)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	stopWarmup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("autosnapper shutdown failed", "error", err)
	}
}

func newCache(cfg *config.Config) (cache.Cache, error) {
	switch cfg.CacheBackend {
	case "redis":
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix, cfg.CacheTTL)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			return nil, err
		}
		return rc, nil
	case "memory", "":
		return cache.NewMemoryCache(cfg.CacheTTL, cfg.CacheMaxEntries), nil
	default:
		return nil, errors.New("unknown cache backend: " + cfg.CacheBackend)
	}
}

func runWarmup(ctx context.Context, svc *controller.Service, path string) {
	wc, err := config.LoadWarmup(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("no warmup config", "path", path)
			return
		}
		slog.Warn("warmup config invalid", "path", path, "error", err)
		return
	}
	urls := make([]string, 0, len(wc.URLs))
	for _, e := range wc.URLs {
		urls = append(urls, e.URL)
	}
	svc.Warmup(ctx, urls)
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
