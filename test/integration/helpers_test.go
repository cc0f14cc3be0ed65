//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var env *Env

// Env holds shared state for all integration tests.
type Env struct {
	BaseURL   string
	TargetURL string // page the server is asked to capture
	Client    *http.Client
}

// checkHealth verifies the server answers /health before any test runs.
func (e *Env) checkHealth() error {
	resp, err := e.Client.Get(e.BaseURL + "/health")
	if err != nil {
		return fmt.Errorf("server not reachable at %s: %w", e.BaseURL, err)
	}
	defer resp.Body.Close()

	var h struct {
		Status  string `json:"status"`
		Backend string `json:"backend"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return fmt.Errorf("decode health: %w", err)
	}
	if h.Status != "healthy" {
		return fmt.Errorf("server at %s reports status %q", e.BaseURL, h.Status)
	}
	fmt.Fprintf(os.Stdout, "integration: %s backend=%s target=%s\n", e.BaseURL, h.Backend, e.TargetURL)
	return nil
}

func TestMain(m *testing.M) {
	baseURL := os.Getenv("AUTOSNAPPER_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	target := os.Getenv("AUTOSNAPPER_TARGET_URL")
	if target == "" {
		target = "https://example.com/"
	}

	env = &Env{
		BaseURL:   baseURL,
		TargetURL: target,
		Client:    &http.Client{Timeout: 90 * time.Second},
	}

	if err := env.checkHealth(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// --- HTTP helpers ---

func (e *Env) GET(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.Client.Get(e.BaseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (e *Env) POST(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPost, path, body)
}

func (e *Env) DELETE(t *testing.T, path string) *http.Response {
	t.Helper()
	return e.do(t, http.MethodDelete, path, nil)
}

func (e *Env) OPTIONS(t *testing.T, path string) *http.Response {
	t.Helper()
	return e.do(t, http.MethodOptions, path, nil)
}

func (e *Env) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("%s %s: marshal body: %v", method, path, err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.BaseURL+path, r)
	if err != nil {
		t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// --- Assertion helpers ---

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type historyEntry struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
	ImageData string `json:"imageData"`
}

func (e *Env) history(t *testing.T) []historyEntry {
	t.Helper()
	resp := e.GET(t, "/api/history")
	requireStatus(t, resp, http.StatusOK)
	return decodeJSON[struct {
		History []historyEntry `json:"history"`
	}](t, resp).History
}
