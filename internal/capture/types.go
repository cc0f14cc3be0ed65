package capture

import (
	"context"
	"fmt"
	"time"
)

const (
	CodeValidation         = "VALIDATION"
	CodeNavigationFailed   = "NAVIGATION_FAILED"
	CodeCaptureFailed      = "CAPTURE_FAILED"
	CodeCaptureTimeout     = "CAPTURE_TIMEOUT"
	CodeBrowserUnavailable = "BROWSER_UNAVAILABLE"
	CodeSnapshotNotFound   = "SNAPSHOT_NOT_FOUND"
	CodeStorageFailure     = "STORAGE_FAILURE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a *CodedError.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// Options controls how a page is rendered before the screenshot is taken.
type Options struct {
	Width    int
	Height   int
	FullPage bool
	// WaitIdle is how long the network must stay quiet after load before
	// the capture happens. Zero captures right after the load event.
	WaitIdle time.Duration
	Timeout  time.Duration
}

// DefaultOptions returns the options used when a caller supplies none.
func DefaultOptions() Options {
	return Options{
		Width:    1280,
		Height:   800,
		FullPage: true,
		WaitIdle: 500 * time.Millisecond,
		Timeout:  30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.Height <= 0 {
		o.Height = d.Height
	}
	if o.WaitIdle < 0 {
		o.WaitIdle = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	return o
}

// Result is one rendered page.
type Result struct {
	URL        string
	FinalURL   string
	Title      string
	Image      []byte
	Format     string
	CapturedAt time.Time
	Duration   time.Duration
}

// Capturer renders a URL in a headless browser and returns a PNG screenshot.
type Capturer interface {
	Capture(ctx context.Context, url string, opts Options) (Result, error)
	Name() string
	Close() error
}

// classify turns a browser-side failure into a coded error, treating context
// deadline expiry as a timeout.
func classify(ctx context.Context, code, msg string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return NewError(CodeCaptureTimeout, "capture timed out", err)
	}
	return NewError(code, msg, err)
}
