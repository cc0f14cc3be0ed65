package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int, contentType, body string) *http.Response {
	h := make(http.Header)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     h,
	}
}

func TestValidate(t *testing.T) {
	for _, u := range []string{"http://a.com", "https://a.com"} {
		if !Validate(u) {
			t.Fatalf("Validate(%q) = false; want true", u)
		}
	}
	for _, u := range []string{"ftp://a.com", "not a url", ""} {
		if Validate(u) {
			t.Fatalf("Validate(%q) = true; want false", u)
		}
	}
}

func TestCapturePostsURL(t *testing.T) {
	var gotMethod, gotPath, gotContentType string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"imageData":"aGVsbG8=","cached":true}`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", nil)
	res, err := c.Capture(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/screenshot" || gotContentType != "application/json" {
		t.Fatalf("request = %s %s (%s)", gotMethod, gotPath, gotContentType)
	}
	if gotBody["url"] != "https://example.com" {
		t.Fatalf("body = %v", gotBody)
	}
	if !res.Cached || res.ImageData != "aGVsbG8=" {
		t.Fatalf("result = %+v", res)
	}
	img, err := res.Image()
	if err != nil || string(img) != "hello" {
		t.Fatalf("Image() = %q, %v", img, err)
	}
}

func TestCaptureErrorMessages(t *testing.T) {
	cases := []struct {
		name string
		resp *http.Response
		want string
	}{
		{"plain text body verbatim", respond(http.StatusBadRequest, "text/plain", "No URL provided\n"), "No URL provided"},
		{"problem detail", respond(http.StatusBadRequest, "application/problem+json", `{"title":"Bad Request","status":400,"detail":"invalid url: must be an absolute http or https URL"}`), "invalid url: must be an absolute http or https URL"},
		{"json error field", respond(http.StatusInternalServerError, "application/json", `{"error":"Failed to capture"}`), "Failed to capture"},
		{"json without known fields", respond(http.StatusBadGateway, "application/json", `{"oops":1}`), `{"oops":1}`},
		{"empty body", respond(http.StatusBadGateway, "", ""), "request failed with status 502"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New("http://backend", &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
				return tc.resp, nil
			})})
			_, err := c.Capture(context.Background(), "https://a.com")
			var se *ServerError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v (%T); want *ServerError", err, err)
			}
			if se.Message != tc.want || err.Error() != tc.want {
				t.Fatalf("message = %q; want %q", se.Message, tc.want)
			}
		})
	}
}

func TestCaptureMalformedBodies(t *testing.T) {
	for _, body := range []string{`not json`, `{"cached":false}`, `{"imageData":""}`} {
		c := New("http://backend", &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return respond(http.StatusOK, "application/json", body), nil
		})})
		_, err := c.Capture(context.Background(), "https://a.com")
		if !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("body %q: error = %v; want ErrMalformedResponse", body, err)
		}
	}
}

func TestCaptureNetworkFailure(t *testing.T) {
	c := New("http://backend", &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})})
	_, err := c.Capture(context.Background(), "https://a.com")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("error = %v", err)
	}
}

func TestListHistory(t *testing.T) {
	c := New("http://backend", &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/api/history" || r.Method != http.MethodGet {
			t.Fatalf("request = %s %s", r.Method, r.URL.Path)
		}
		return respond(http.StatusOK, "application/json",
			`{"history":[{"id":"2","url":"https://b.com","timestamp":"2026-01-02T03:04:05Z","imageData":"Yg=="},{"url":"https://a.com","timestamp":"2026-01-01T00:00:00Z","imageData":"YQ=="}]}`), nil
	})})

	entries, err := c.ListHistory(context.Background())
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(entries) != 2 || entries[0].URL != "https://b.com" || entries[1].URL != "https://a.com" {
		t.Fatalf("entries = %+v", entries)
	}
	ts, err := entries[0].Time()
	if err != nil || ts.Year() != 2026 || ts.Second() != 5 {
		t.Fatalf("Time() = %v, %v", ts, err)
	}
}

func TestListHistoryNullIsEmpty(t *testing.T) {
	c := New("http://backend", &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, "application/json", `{"history":null}`), nil
	})})
	entries, err := c.ListHistory(context.Background())
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Fatalf("entries = %#v", entries)
	}
}
