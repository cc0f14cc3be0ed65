package api_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgnsrekt/autosnapper/internal/api"
	"github.com/dgnsrekt/autosnapper/internal/cache"
	"github.com/dgnsrekt/autosnapper/internal/capture"
	"github.com/dgnsrekt/autosnapper/internal/client"
	"github.com/dgnsrekt/autosnapper/internal/controller"
	"github.com/dgnsrekt/autosnapper/internal/events"
	"github.com/dgnsrekt/autosnapper/internal/history"
	"github.com/dgnsrekt/autosnapper/internal/snapshot"
)

type pngCapturer struct {
	err error
}

func (p *pngCapturer) Capture(ctx context.Context, url string, opts capture.Options) (capture.Result, error) {
	if p.err != nil {
		return capture.Result{}, p.err
	}
	return capture.Result{
		URL:      url,
		FinalURL: url,
		Image:    []byte("\x89PNG\r\n\x1a\n" + url),
		Format:   "png",
		Duration: time.Millisecond,
	}, nil
}

func (p *pngCapturer) Name() string { return "fake" }
func (p *pngCapturer) Close() error { return nil }

func newBackend(t *testing.T, capturer capture.Capturer) *client.Client {
	t.Helper()
	snaps, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("snapshot store: %v", err)
	}
	hist, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("history open: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	broker := events.NewBroker()
	svc := controller.NewService(capturer, cache.NewMemoryCache(time.Hour, 10), snaps, hist, controller.Options{
		Capture:       capture.DefaultOptions(),
		HistoryLimit:  20,
		MaxConcurrent: 1,
	}).WithEvents(broker)

	srv := httptest.NewServer(api.NewServer(svc, api.Options{Events: broker}))
	t.Cleanup(srv.Close)
	return client.New(srv.URL, srv.Client())
}

func TestClientAgainstBackend(t *testing.T) {
	c := newBackend(t, &pngCapturer{})
	ctx := context.Background()

	hist, err := c.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if hist == nil || len(hist) != 0 {
		t.Fatalf("initial history = %#v, want empty non-nil", hist)
	}

	res, err := c.Capture(ctx, "https://a.com")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Cached {
		t.Fatal("first capture reported cached")
	}
	img, err := res.Image()
	if err != nil || string(img) != "\x89PNG\r\n\x1a\nhttps://a.com" {
		t.Fatalf("image = %q, err = %v", img, err)
	}

	res, err = c.Capture(ctx, "https://A.com/#top")
	if err != nil {
		t.Fatalf("repeat Capture: %v", err)
	}
	if !res.Cached {
		t.Fatal("equivalent URL was not served from cache")
	}

	if _, err := c.Capture(ctx, "https://b.com"); err != nil {
		t.Fatalf("Capture b: %v", err)
	}

	hist, err = c.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history len = %d, want 2", len(hist))
	}
	if hist[0].URL != "https://b.com" || hist[1].URL != "https://a.com" {
		t.Fatalf("history order = %s, %s", hist[0].URL, hist[1].URL)
	}
	if _, err := hist[0].Time(); err != nil {
		t.Fatalf("timestamp %q: %v", hist[0].Timestamp, err)
	}
}

func TestClientSurfacesBackendErrors(t *testing.T) {
	c := newBackend(t, &pngCapturer{
		err: capture.NewError(capture.CodeNavigationFailed, "navigation failed", errors.New("net::ERR_NAME_NOT_RESOLVED")),
	})
	ctx := context.Background()

	_, err := c.Capture(ctx, "ftp://a.com")
	var se *client.ServerError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *client.ServerError", err)
	}
	if se.Status != 400 || se.Message != "invalid url: must be an absolute http or https URL" {
		t.Fatalf("server error = %d %q", se.Status, se.Message)
	}

	_, err = c.Capture(ctx, "https://unreachable.invalid")
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *client.ServerError", err)
	}
	if se.Status != 502 || se.Message != "navigation failed: net::ERR_NAME_NOT_RESOLVED" {
		t.Fatalf("server error = %d %q", se.Status, se.Message)
	}
}

func TestSessionAgainstBackend(t *testing.T) {
	c := newBackend(t, &pngCapturer{})
	s := client.NewSession(c, 10*time.Millisecond)
	ctx := context.Background()

	if err := s.Submit(ctx, "https://a.com"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Wait()

	st := s.State()
	if st.Result == nil || st.Result.Cached || st.Error != "" {
		t.Fatalf("state = %+v", st)
	}
	if len(st.History) != 1 || st.History[0].URL != "https://a.com" {
		t.Fatalf("history after refresh = %+v", st.History)
	}
}
