package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrBusy is returned when a capture is already in flight.
	ErrBusy = errors.New("a capture is already in progress")
	// ErrInvalidURL is returned for input that is not an http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
)

// InvalidURLWarning is the inline message shown for rejected input.
const InvalidURLWarning = "Please enter a valid URL starting with http:// or https://"

// API is the backend surface a Session needs.
type API interface {
	Capture(ctx context.Context, url string) (CaptureResult, error)
	ListHistory(ctx context.Context) ([]HistoryEntry, error)
}

// State is a snapshot of what the user currently sees.
type State struct {
	Result  *CaptureResult
	Error   string
	Warning string
	Pending bool
	History []HistoryEntry
}

// Session holds the UI state of one user: the displayed result, the error
// line, and the history list. At most one capture is in flight at a time.
type Session struct {
	api          API
	refreshDelay time.Duration

	pending   atomic.Bool
	refreshes sync.WaitGroup

	mu      sync.Mutex
	result  *CaptureResult
	errMsg  string
	warning string
	history []HistoryEntry

	// OnHistory, when set, is called after every history load.
	OnHistory func([]HistoryEntry)
}

// NewSession creates a session. refreshDelay is how long to wait after a
// fresh capture before reloading history.
func NewSession(api API, refreshDelay time.Duration) *Session {
	if refreshDelay < 0 {
		refreshDelay = 0
	}
	return &Session{api: api, refreshDelay: refreshDelay, history: []HistoryEntry{}}
}

// Submit validates url and captures it. It returns ErrBusy without side
// effects while another capture is pending. On failure the previous result
// is kept and the error message is set.
func (s *Session) Submit(ctx context.Context, url string) error {
	if s.pending.Load() {
		return ErrBusy
	}
	if !Validate(url) {
		s.mu.Lock()
		s.warning = InvalidURLWarning
		s.mu.Unlock()
		return ErrInvalidURL
	}
	if !s.pending.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.pending.Store(false)

	s.mu.Lock()
	s.warning = ""
	s.errMsg = ""
	s.mu.Unlock()

	res, err := s.api.Capture(ctx, url)
	if err != nil {
		s.mu.Lock()
		s.errMsg = err.Error()
		s.mu.Unlock()
		slog.Debug("capture failed", "url", url, "error", err)
		return err
	}

	s.mu.Lock()
	s.result = &res
	s.mu.Unlock()

	if !res.Cached {
		s.scheduleRefresh()
	}
	return nil
}

func (s *Session) scheduleRefresh() {
	s.refreshes.Add(1)
	time.AfterFunc(s.refreshDelay, func() {
		defer s.refreshes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.LoadHistory(ctx)
	})
}

// LoadHistory replaces the history list. Failures are logged and leave an
// empty list.
func (s *Session) LoadHistory(ctx context.Context) {
	entries, err := s.api.ListHistory(ctx)
	if err != nil {
		slog.Warn("history fetch failed", "error", err)
		entries = []HistoryEntry{}
	}
	s.mu.Lock()
	s.history = entries
	hook := s.OnHistory
	s.mu.Unlock()
	if hook != nil {
		hook(append([]HistoryEntry(nil), entries...))
	}
}

// Wait blocks until scheduled history refreshes have run.
func (s *Session) Wait() {
	s.refreshes.Wait()
}

// Pending reports whether a capture is in flight.
func (s *Session) Pending() bool {
	return s.pending.Load()
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Error:   s.errMsg,
		Warning: s.warning,
		Pending: s.pending.Load(),
		History: append([]HistoryEntry{}, s.history...),
	}
	if s.result != nil {
		r := *s.result
		st.Result = &r
	}
	return st
}
