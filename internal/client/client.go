// Package client talks to an AutoSnapper backend and keeps the state of one
// interactive capture session.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgnsrekt/autosnapper/internal/weburl"
)

const maxResponseBytes = 64 << 20

// CaptureResult is the backend's answer to a capture request.
type CaptureResult struct {
	ImageData string `json:"imageData"`
	Cached    bool   `json:"cached"`
}

// Image decodes the base64 PNG payload.
func (r CaptureResult) Image() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.ImageData)
}

// HistoryEntry is one past capture. Timestamp is kept as sent by the server.
type HistoryEntry struct {
	ID        string `json:"id,omitempty"`
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
	ImageData string `json:"imageData"`
}

// Time parses Timestamp as RFC 3339.
func (e HistoryEntry) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.Timestamp)
}

// ServerError is a non-2xx response. Message is the text shown to the user.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string { return e.Message }

// ErrMalformedResponse is returned when a 2xx body cannot be used.
var ErrMalformedResponse = errors.New("invalid response from server")

// Validate reports whether url is an absolute http or https URL.
func Validate(url string) bool {
	return weburl.Validate(url)
}

// Client is a thin HTTP client for the capture API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL. A nil httpClient uses a client with a
// 60 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// BaseURL returns the backend origin.
func (c *Client) BaseURL() string { return c.baseURL }

// Capture asks the backend to render url.
func (c *Client) Capture(ctx context.Context, url string) (CaptureResult, error) {
	body, err := json.Marshal(struct {
		URL string `json:"url"`
	}{URL: url})
	if err != nil {
		return CaptureResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/screenshot", bytes.NewReader(body))
	if err != nil {
		return CaptureResult{}, fmt.Errorf("capture request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	data, err := c.do(req)
	if err != nil {
		return CaptureResult{}, err
	}

	var res CaptureResult
	if err := json.Unmarshal(data, &res); err != nil {
		return CaptureResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if res.ImageData == "" {
		return CaptureResult{}, fmt.Errorf("%w: missing imageData", ErrMalformedResponse)
	}
	return res, nil
}

// ListHistory fetches past captures in server order.
func (c *Client) ListHistory(ctx context.Context) ([]HistoryEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/history", nil)
	if err != nil {
		return nil, fmt.Errorf("history request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var body struct {
		History []HistoryEntry `json:"history"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if body.History == nil {
		body.History = []HistoryEntry{}
	}
	return body.History, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", c.baseURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ServerError{Status: resp.StatusCode, Message: errorMessage(resp, data)}
	}
	return data, nil
}

// errorMessage returns the body text verbatim, except that problem
// documents contribute their detail field.
func errorMessage(resp *http.Response, body []byte) string {
	text := strings.TrimSpace(string(body))
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		var problem struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
			Error  string `json:"error"`
		}
		if json.Unmarshal(body, &problem) == nil {
			switch {
			case problem.Detail != "":
				return problem.Detail
			case problem.Error != "":
				return problem.Error
			}
		}
	}
	if text == "" {
		return fmt.Sprintf("request failed with status %d", resp.StatusCode)
	}
	return text
}
