// Package controller orchestrates captures: validation, cache lookup,
// browser rendering, persistence and fan-out of capture events.
package controller

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dgnsrekt/autosnapper/internal/cache"
	"github.com/dgnsrekt/autosnapper/internal/capture"
	"github.com/dgnsrekt/autosnapper/internal/events"
	"github.com/dgnsrekt/autosnapper/internal/history"
	"github.com/dgnsrekt/autosnapper/internal/notify"
	"github.com/dgnsrekt/autosnapper/internal/snapshot"
	"github.com/dgnsrekt/autosnapper/internal/storage"
	"github.com/dgnsrekt/autosnapper/internal/weburl"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// CaptureResult is the response to a capture request.
type CaptureResult struct {
	ImageData string `json:"imageData"`
	Cached    bool   `json:"cached"`
}

// HistoryEntry is one past capture as served to clients.
type HistoryEntry struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	ImageData string    `json:"imageData"`
}

// Health summarizes service liveness.
type Health struct {
	Status        string `json:"status"`
	Backend       string `json:"backend"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// AuditWriter receives one record per capture attempt.
type AuditWriter interface {
	Write(record any) error
}

// Notifier delivers a short human-readable message.
type Notifier func(ctx context.Context, message string) error

// Options tunes the service.
type Options struct {
	Capture       capture.Options
	HistoryLimit  int
	MaxConcurrent int
}

// Service wraps capture, cache and history operations.
type Service struct {
	capturer capture.Capturer
	cache    cache.Cache
	snaps    *snapshot.Store
	history  *history.Store
	broker   *events.Broker
	audit    AuditWriter
	notify   Notifier
	opts     Options

	group   singleflight.Group
	sem     *semaphore.Weighted
	started time.Time
	now     func() time.Time
}

// NewService wires the collaborators. broker, audit and notify may be nil.
func NewService(capturer capture.Capturer, c cache.Cache, snaps *snapshot.Store, hist *history.Store, opts Options) *Service {
	if opts.HistoryLimit < 1 {
		opts.HistoryLimit = 50
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.Capture.Timeout <= 0 {
		opts.Capture = capture.DefaultOptions()
	}
	return &Service{
		capturer: capturer,
		cache:    c,
		snaps:    snaps,
		history:  hist,
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		started:  time.Now(),
		now:      time.Now,
	}
}

// WithEvents publishes capture and delete events to broker.
func (s *Service) WithEvents(broker *events.Broker) *Service {
	s.broker = broker
	return s
}

// WithAudit records every capture attempt to w.
func (s *Service) WithAudit(w AuditWriter) *Service {
	s.audit = w
	return s
}

// WithNotifier sends a message after each fresh capture.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notify = n
	return s
}

func validationError(err error) error {
	return &capture.CodedError{Code: capture.CodeValidation, Message: err.Error()}
}

// Health reports the service status.
func (s *Service) Health(_ context.Context) Health {
	return Health{
		Status:        "healthy",
		Backend:       s.capturer.Name(),
		UptimeSeconds: int64(s.now().Sub(s.started).Seconds()),
	}
}

type rendered struct {
	id        string
	imageData string
	sizeBytes int
}

// Capture renders rawURL, or serves it from cache. Concurrent requests for
// the same URL share one browser run.
func (s *Service) Capture(ctx context.Context, rawURL string) (CaptureResult, error) {
	start := s.now()
	raw := strings.TrimSpace(rawURL)
	if _, err := weburl.Parse(raw); err != nil {
		return CaptureResult{}, validationError(err)
	}
	key := cache.Key(raw)

	if entry, ok, err := s.cache.Get(ctx, key); err != nil {
		slog.Warn("cache lookup failed", "key", key, "error", err)
	} else if ok {
		slog.Debug("capture served from cache", "url", raw, "key", key)
		s.record(storage.CaptureRecord{
			Time: start, URL: raw, CacheKey: key, SnapshotID: entry.SnapshotID,
			Cached: true, DurationMS: s.now().Sub(start).Milliseconds(),
		})
		return CaptureResult{ImageData: entry.ImageData, Cached: true}, nil
	}

	// The shared run must outlive any single caller's cancellation.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*s.opts.Capture.Timeout)
	defer cancel()

	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.render(runCtx, raw, key)
	})
	rec := storage.CaptureRecord{
		Time: start, URL: raw, CacheKey: key, Backend: s.capturer.Name(),
		Shared: shared, DurationMS: s.now().Sub(start).Milliseconds(),
	}
	if err != nil {
		var ce *capture.CodedError
		if errors.As(err, &ce) {
			rec.ErrorCode = ce.Code
		}
		rec.Error = err.Error()
		s.record(rec)
		return CaptureResult{}, err
	}
	out := v.(rendered)
	rec.SnapshotID = out.id
	rec.SizeBytes = out.sizeBytes
	s.record(rec)

	return CaptureResult{ImageData: out.imageData, Cached: false}, nil
}

func (s *Service) render(ctx context.Context, raw, key string) (rendered, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return rendered{}, capture.NewError(capture.CodeCaptureTimeout, "timed out waiting for a capture slot", err)
	}
	res, err := s.capturer.Capture(ctx, raw, s.opts.Capture)
	s.sem.Release(1)
	if err != nil {
		var ce *capture.CodedError
		if !errors.As(err, &ce) {
			err = capture.NewError(capture.CodeCaptureFailed, "capture failed", err)
		}
		slog.Warn("capture failed", "url", raw, "backend", s.capturer.Name(), "error", err)
		return rendered{}, err
	}

	id := uuid.New().String()
	createdAt := s.now().UTC()
	meta := snapshot.Meta{
		ID:         id,
		URL:        raw,
		FinalURL:   res.FinalURL,
		Title:      res.Title,
		CacheKey:   key,
		Format:     res.Format,
		Width:      s.opts.Capture.Width,
		Height:     s.opts.Capture.Height,
		DurationMS: res.Duration.Milliseconds(),
		Backend:    s.capturer.Name(),
		CreatedAt:  createdAt,
	}
	if err := s.snaps.Save(meta, res.Image); err != nil {
		return rendered{}, capture.NewError(capture.CodeStorageFailure, "save snapshot", err)
	}

	if err := s.history.Record(ctx, history.Entry{
		ID:         id,
		URL:        raw,
		CacheKey:   key,
		SnapshotID: id,
		Title:      res.Title,
		CreatedAt:  createdAt,
	}); err != nil {
		if delErr := s.snaps.Delete(id); delErr != nil {
			slog.Debug("snapshot rollback failed", "id", id, "error", delErr)
		}
		return rendered{}, capture.NewError(capture.CodeStorageFailure, "record history", err)
	}
	s.prune(ctx)

	imageData := base64.StdEncoding.EncodeToString(res.Image)
	if err := s.cache.Set(ctx, cache.Entry{
		Key:        key,
		URL:        raw,
		ImageData:  imageData,
		SnapshotID: id,
		CreatedAt:  createdAt,
	}); err != nil {
		slog.Warn("cache store failed", "key", key, "error", err)
	}

	slog.Info("capture stored",
		"id", id,
		"url", raw,
		"title", res.Title,
		"size_bytes", len(res.Image),
		"duration_ms", res.Duration.Milliseconds(),
	)

	if s.broker != nil {
		s.broker.PublishJSON("capture", map[string]any{
			"id":          id,
			"url":         raw,
			"title":       res.Title,
			"timestamp":   createdAt,
			"size_bytes":  len(res.Image),
			"duration_ms": res.Duration.Milliseconds(),
		})
	}
	if s.notify != nil {
		msg := notify.CaptureMessage(raw, len(res.Image), res.Duration)
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.notify(nctx, msg); err != nil {
				slog.Debug("capture notification failed", "error", err)
			}
		}()
	}

	return rendered{id: id, imageData: imageData, sizeBytes: len(res.Image)}, nil
}

func (s *Service) prune(ctx context.Context) {
	removed, err := s.history.Prune(ctx, s.opts.HistoryLimit)
	if err != nil {
		slog.Warn("history prune failed", "error", err)
		return
	}
	for _, e := range removed {
		if err := s.snaps.Delete(e.SnapshotID); err != nil && !errors.Is(err, snapshot.ErrNotFound) {
			slog.Warn("pruned snapshot cleanup failed", "id", e.SnapshotID, "error", err)
		}
		s.dropCached(ctx, e.CacheKey, e.SnapshotID)
	}
	if len(removed) > 0 {
		slog.Debug("history pruned", "removed", len(removed), "limit", s.opts.HistoryLimit)
	}
}

// dropCached removes the cache entry for key if it still points at snapshotID.
func (s *Service) dropCached(ctx context.Context, key, snapshotID string) {
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok || cached.SnapshotID != snapshotID {
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		slog.Warn("cache delete failed", "key", key, "error", err)
	}
}

func (s *Service) record(rec storage.CaptureRecord) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Write(rec); err != nil {
		slog.Debug("audit write failed", "url", rec.URL, "error", err)
	}
}

// History lists past captures newest first. limit <= 0 uses the configured
// history limit. Entries whose image is gone are skipped.
func (s *Service) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > s.opts.HistoryLimit {
		limit = s.opts.HistoryLimit
	}
	entries, err := s.history.List(ctx, limit)
	if err != nil {
		return nil, capture.NewError(capture.CodeStorageFailure, "list history", err)
	}

	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		data, _, err := s.snaps.ReadImage(e.SnapshotID)
		if err != nil {
			slog.Warn("history entry image unavailable", "id", e.ID, "snapshot_id", e.SnapshotID, "error", err)
			continue
		}
		out = append(out, HistoryEntry{
			ID:        e.ID,
			URL:       e.URL,
			Timestamp: e.CreatedAt.UTC(),
			ImageData: base64.StdEncoding.EncodeToString(data),
		})
	}
	return out, nil
}

// Image returns the raw image bytes and format of a history entry.
func (s *Service) Image(ctx context.Context, id string) ([]byte, string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, "", &capture.CodedError{Code: capture.CodeValidation, Message: "id is required"}
	}
	e, err := s.history.Get(ctx, id)
	if err != nil {
		return nil, "", s.lookupError(id, err)
	}
	data, format, err := s.snaps.ReadImage(e.SnapshotID)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return nil, "", capture.NewError(capture.CodeSnapshotNotFound, "image not found: "+id, err)
		}
		return nil, "", capture.NewError(capture.CodeStorageFailure, "read image", err)
	}
	return data, format, nil
}

// DeleteEntry removes a history entry with its snapshot and cache entry.
func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &capture.CodedError{Code: capture.CodeValidation, Message: "id is required"}
	}
	e, err := s.history.Delete(ctx, id)
	if err != nil {
		return s.lookupError(id, err)
	}
	if err := s.snaps.Delete(e.SnapshotID); err != nil && !errors.Is(err, snapshot.ErrNotFound) {
		slog.Warn("snapshot delete failed", "id", e.SnapshotID, "error", err)
	}
	s.dropCached(ctx, e.CacheKey, e.SnapshotID)
	if s.broker != nil {
		s.broker.PublishJSON("delete", map[string]string{"id": id, "url": e.URL})
	}
	slog.Info("history entry deleted", "id", id, "url", e.URL)
	return nil
}

func (s *Service) lookupError(id string, err error) error {
	if errors.Is(err, history.ErrNotFound) {
		return capture.NewError(capture.CodeSnapshotNotFound, "history entry not found: "+id, err)
	}
	return capture.NewError(capture.CodeStorageFailure, "history lookup", err)
}

// Warmup captures each URL once, ignoring failures.
func (s *Service) Warmup(ctx context.Context, urls []string) int {
	ok := 0
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Capture(ctx, u); err != nil {
			slog.Warn("warmup capture failed", "url", u, "error", err)
			continue
		}
		ok++
	}
	slog.Info("warmup complete", "requested", len(urls), "captured", ok)
	return ok
}
