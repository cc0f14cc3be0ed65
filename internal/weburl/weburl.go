// Package weburl validates and normalizes the page URLs accepted for capture.
package weburl

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrEmpty is returned when no URL was supplied.
	ErrEmpty = errors.New("No URL provided")
	// ErrInvalid is returned when the input is not an absolute http(s) URL.
	ErrInvalid = errors.New("invalid url: must be an absolute http or https URL")
)

// Validate reports whether raw parses as an absolute URL whose scheme is
// exactly http or https.
func Validate(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}

// Parse parses raw and rejects anything that is not an absolute http(s) URL
// with a host.
func Parse(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmpty
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrInvalid
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrInvalid
	}
	if u.Host == "" || u.Hostname() == "" {
		return nil, ErrInvalid
	}
	return u, nil
}

// Normalize returns a canonical form of raw used for cache keys: host is
// lowercased, default ports and fragments are dropped and an empty path
// becomes "/".
func Normalize(raw string) (string, error) {
	u, err := Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	out := url.URL{
		Scheme:   u.Scheme,
		User:     u.User,
		Host:     host,
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
	}
	if out.Path == "" {
		out.Path = "/"
	}
	return out.String(), nil
}
