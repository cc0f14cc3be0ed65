package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/autosnapper/internal/capture"
	"github.com/dgnsrekt/autosnapper/internal/controller"
	"github.com/dgnsrekt/autosnapper/internal/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const banner = "AutoSnapper Backend is Live!"

// Service is the capture and history backend the handlers call.
type Service interface {
	Capture(ctx context.Context, url string) (controller.CaptureResult, error)
	History(ctx context.Context, limit int) ([]controller.HistoryEntry, error)
	Image(ctx context.Context, id string) ([]byte, string, error)
	DeleteEntry(ctx context.Context, id string) error
	Health(ctx context.Context) controller.Health
}

// Options configures optional parts of the HTTP surface.
type Options struct {
	// Events enables /api/events and /api/events/ws when set.
	Events *events.Broker
	// CORSOrigin is sent as Access-Control-Allow-Origin, "*" when empty.
	CORSOrigin string
}

// NewServer builds the chi router with the huma API, docs and optional event
// routes mounted.
func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(cors(opts.CORSOrigin))

	cfg := huma.DefaultConfig("AutoSnapper API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := w.Write([]byte(banner)); err != nil {
			slog.Debug("banner response write failed", "error", err)
		}
	})
	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if opts.Events != nil {
		router.Get("/api/events", events.SSEHandler(opts.Events))
		router.Get("/api/events/ws", events.WSHandler(opts.Events))
	}

	registerHealthHandlers(api, svc)
	registerCaptureHandlers(api, svc)
	registerHistoryHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *capture.CodedError
	if errors.As(err, &coded) {
		msg := coded.Message
		if coded.Cause != nil && coded.Code != capture.CodeValidation {
			msg += ": " + coded.Cause.Error()
		}
		switch coded.Code {
		case capture.CodeValidation:
			return huma.Error400BadRequest(msg)
		case capture.CodeSnapshotNotFound:
			return huma.Error404NotFound(msg)
		case capture.CodeCaptureTimeout:
			return huma.Error504GatewayTimeout(msg)
		case capture.CodeNavigationFailed, capture.CodeBrowserUnavailable:
			return huma.Error502BadGateway(msg)
		default:
			return huma.Error500InternalServerError(coded.Code + ": " + msg)
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
