package weburl

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"http://a.com", true},
		{"https://a.com", true},
		{"https://a.com/path?q=1#frag", true},
		{"HTTPS://A.COM", true},
		{"ftp://a.com", false},
		{"not a url", false},
		{"", false},
		{"   ", false},
		{"http://", false},
		{"//a.com", false},
		{"mailto:someone@a.com", false},
		{"javascript:alert(1)", false},
	}
	for _, tc := range cases {
		if got := Validate(tc.in); got != tc.want {
			t.Errorf("Validate(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse(""); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Parse(\"\") error = %v; want ErrEmpty", err)
	}
	if _, err := Parse("ftp://a.com"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Parse(ftp) error = %v; want ErrInvalid", err)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://Example.COM", "https://example.com/"},
		{"  https://example.com/a?b=1#top  ", "https://example.com/a?b=1"},
		{"http://example.com:80/x", "http://example.com/x"},
		{"https://example.com:443", "https://example.com/"},
		{"https://example.com:8443/x", "https://example.com:8443/x"},
		{"http://[::1]:80/", "http://[::1]/"},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if err != nil {
			t.Fatalf("Normalize(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	if _, err := Normalize("ftp://a.com"); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}
