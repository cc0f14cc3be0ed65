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

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

func TestRodUnreachableRemoteIsBrowserUnavailable(t *testing.T) {
	r, err := NewRod(Config{RemoteURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewRod() error = %v", err)
	}
	defer r.Close()

	_, err = r.Capture(context.Background(), "https://example.com", Options{Timeout: 5 * time.Second})
	var coded *CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("Capture() error = %v (%T); want *CodedError", err, err)
	}
	if coded.Code != CodeBrowserUnavailable {
		t.Fatalf("code = %q; want %q", coded.Code, CodeBrowserUnavailable)
	}
	if r.ownsBrowser() {
		t.Fatal("backend claims ownership of a remote browser")
	}
}

func TestRodCloseWithoutBrowser(t *testing.T) {
	r, _ := NewRod(Config{})
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := r.Name(); got != "rod" {
		t.Fatalf("Name() = %q; want rod", got)
	}
}

// localChrome starts a browser outside the backend, or skips.
func localChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in -short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("Skipping browser test (no local Chrome found)")
	}
	l := launcher.New().Bin(bin).Headless(true).NoSandbox(true)
	u, err := l.Launch()
	if err != nil {
		t.Skipf("Skipping browser test (launch failed): %v", err)
	}
	t.Cleanup(func() {
		l.Kill()
		l.Cleanup()
	})
	return u
}

func snapPage(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>snap me</title></head><body><h1>hello</h1></body></html>`)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestRodCaptureRemoteLeavesBrowserRunning(t *testing.T) {
	controlURL := localChrome(t)
	ts := snapPage(t)

	for _, stealthy := range []bool{false, true} {
		r, err := NewRod(Config{RemoteURL: controlURL, Stealth: stealthy})
		if err != nil {
			t.Fatalf("NewRod() error = %v", err)
		}
		res, err := r.Capture(context.Background(), ts.URL, Options{WaitIdle: 100 * time.Millisecond, Timeout: 20 * time.Second})
		if err != nil {
			t.Fatalf("Capture(stealth=%v) error = %v", stealthy, err)
		}
		if !bytes.HasPrefix(res.Image, pngSignature) {
			t.Fatalf("image does not start with PNG signature (len=%d)", len(res.Image))
		}
		if got, want := res.Title, "snap me"; got != want {
			t.Fatalf("Title = %q; want %q", got, want)
		}
		if r.ownsBrowser() {
			t.Fatal("backend claims ownership of a remote browser")
		}
		if err := r.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}

	// The remote browser must survive the backend closing.
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		t.Fatalf("remote browser gone after Close(): %v", err)
	}
	defer func() { _ = b.Close() }()
	if _, err := (proto.BrowserGetVersion{}).Call(b); err != nil {
		t.Fatalf("remote browser not answering after Close(): %v", err)
	}
}

func TestRodCaptureLaunchesOwnBrowser(t *testing.T) {
	if testing.Short() {
		t.Skip("browser test skipped in -short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("Skipping browser test (no local Chrome found)")
	}
	ts := snapPage(t)

	r, err := NewRod(Config{BrowserPath: bin, Headless: true, NoSandbox: true})
	if err != nil {
		t.Fatalf("NewRod() error = %v", err)
	}
	res, err := r.Capture(context.Background(), ts.URL, Options{Timeout: 20 * time.Second})
	skipIfUnavailable(t, err)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if len(res.Image) == 0 {
		t.Fatal("empty image")
	}
	if !r.ownsBrowser() {
		t.Fatal("launched browser not marked as owned")
	}
	if err := r.Close(); err != nil {
		t.Logf("Close() error = %v", err)
	}
	if r.ownsBrowser() {
		t.Fatal("launcher still held after Close()")
	}
}
