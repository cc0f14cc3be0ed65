// Package notify posts plain-text messages to an ntfy-style endpoint.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNoEndpoint is returned when Send is called without a target.
var ErrNoEndpoint = errors.New("notify: endpoint is required")

// CaptureMessage formats the notification for a finished capture.
func CaptureMessage(url string, sizeBytes int, took time.Duration) string {
	return fmt.Sprintf("AutoSnapper captured %s (%d KB in %s)",
		url, (sizeBytes+1023)/1024, took.Round(time.Millisecond))
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if strings.TrimSpace(endpoint) == "" {
		return ErrNoEndpoint
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Title", "AutoSnapper")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
