package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func skipIfUnavailable(t *testing.T, err error) {
	t.Helper()
	var coded *CodedError
	if errors.As(err, &coded) && coded.Code == CodeBrowserUnavailable {
		t.Skipf("Skipping browser test (environment has no usable browser): %v", err)
	}
}

func TestChromeDPCaptureLocalPage(t *testing.T) {
	if testing.Short() {
		t.Skip("browser test skipped in -short mode")
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>snap me</title></head><body><h1>hello</h1></body></html>`)
	}))
	defer ts.Close()

	c, err := NewChromeDP(Config{Headless: true, NoSandbox: true})
	if err != nil {
		t.Fatalf("NewChromeDP() error = %v", err)
	}
	defer c.Close()

	res, err := c.Capture(context.Background(), ts.URL, Options{WaitIdle: 100 * time.Millisecond, Timeout: 20 * time.Second})
	skipIfUnavailable(t, err)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if !bytes.HasPrefix(res.Image, pngSignature) {
		t.Fatalf("image does not start with PNG signature (len=%d)", len(res.Image))
	}
	if got, want := res.Title, "snap me"; got != want {
		t.Fatalf("Title = %q; want %q", got, want)
	}
}

func TestChromeDPCaptureUnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("browser test skipped in -short mode")
	}

	c, err := NewChromeDP(Config{Headless: true, NoSandbox: true})
	if err != nil {
		t.Fatalf("NewChromeDP() error = %v", err)
	}
	defer c.Close()

	_, err = c.Capture(context.Background(), "http://127.0.0.1:1/", Options{Timeout: 10 * time.Second})
	skipIfUnavailable(t, err)
	if err == nil {
		t.Fatal("expected error for unreachable host")
	}
	var coded *CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("expected *CodedError, got %T", err)
	}
}

func TestIdleTrackerCountsRedirectOnce(t *testing.T) {
	tr := newIdleTracker(20 * time.Millisecond)

	// A redirect chain announces the same request id several times and
	// finishes it once.
	tr.started("req-1")
	tr.started("req-1")
	tr.started("req-1")
	tr.started("req-2")
	tr.finished("req-2")

	select {
	case <-tr.idle:
		t.Fatal("idle while req-1 still in flight")
	case <-time.After(60 * time.Millisecond):
	}

	tr.finished("req-1")
	select {
	case <-tr.idle:
	case <-time.After(time.Second):
		t.Fatal("not idle after redirected request finished")
	}
}

func TestIdleTrackerRestartsOnNewRequest(t *testing.T) {
	tr := newIdleTracker(50 * time.Millisecond)
	tr.started("a")
	tr.finished("a")
	tr.started("b")

	select {
	case <-tr.idle:
		t.Fatal("idle fired while b in flight")
	case <-time.After(100 * time.Millisecond):
	}

	tr.finished("b")
	select {
	case <-tr.idle:
	case <-time.After(time.Second):
		t.Fatal("not idle after b finished")
	}
}
