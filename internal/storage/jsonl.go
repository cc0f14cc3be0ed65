// Package storage persists the capture audit trail as JSON lines.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	ErrClosed     = errors.New("audit writer is closed")
	ErrBufferFull = errors.New("audit buffer full")
)

// CaptureRecord is one line of the audit log. One is written per capture
// attempt, including cache hits and failures.
type CaptureRecord struct {
	Time       time.Time `json:"time"`
	URL        string    `json:"url"`
	CacheKey   string    `json:"cache_key,omitempty"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	Backend    string    `json:"backend,omitempty"`
	Cached     bool      `json:"cached"`
	Shared     bool      `json:"shared,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	SizeBytes  int       `json:"size_bytes,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// JSONLWriter appends records asynchronously to
// <baseDir>/<YYYY-MM-DD>/<name>.jsonl, rotated by lumberjack on size.
type JSONLWriter struct {
	baseDir   string
	name      string
	maxSizeMB int
	now       func() time.Time

	writeCh chan any
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
}

// NewJSONLWriter starts a writer. name is the file base name, e.g. "captures".
func NewJSONLWriter(baseDir, name string, bufferSize, maxSizeMB int) *JSONLWriter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	if name == "" {
		name = "captures"
	}
	w := &JSONLWriter{
		baseDir:   baseDir,
		name:      name,
		maxSizeMB: maxSizeMB,
		now:       time.Now,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writeLoop()
	return w
}

// Write queues a record without blocking. A full buffer drops the record.
func (w *JSONLWriter) Write(record any) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.writeCh <- record:
		return nil
	default:
		slog.Warn("audit buffer full, dropping record", "name", w.name)
		return ErrBufferFull
	}
}

// Close stops the writer after flushing queued records.
func (w *JSONLWriter) Close() error {
	w.once.Do(func() { close(w.done) })
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		err := w.logger.Close()
		w.logger = nil
		return err
	}
	return nil
}

func (w *JSONLWriter) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-w.done:
			w.drain()
			return
		}
	}
}

func (w *JSONLWriter) drain() {
	deadline := time.After(5 * time.Second)
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-deadline:
			slog.Warn("audit close timeout, records may be lost", "name", w.name)
			return
		default:
			return
		}
	}
}

func (w *JSONLWriter) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("audit marshal failed", "name", w.name, "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	date := w.now().UTC().Format("2006-01-02")
	if date != w.currentDate || w.logger == nil {
		if err := w.openForDate(date); err != nil {
			slog.Error("audit open failed", "name", w.name, "error", err)
			return
		}
	}

	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("audit write failed", "name", w.name, "error", err)
	}
}

func (w *JSONLWriter) openForDate(date string) error {
	if w.logger != nil {
		_ = w.logger.Close()
		w.logger = nil
	}

	dir := filepath.Join(w.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: create %s: %w", dir, err)
	}

	filename := filepath.Join(dir, w.name+".jsonl")
	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 30,
		MaxAge:     30,
	}
	w.currentDate = date
	slog.Debug("audit file opened", "file", filename)
	return nil
}

// Path returns the file the next record for t would be written to.
func (w *JSONLWriter) Path(t time.Time) string {
	return filepath.Join(w.baseDir, t.UTC().Format("2006-01-02"), w.name+".jsonl")
}
