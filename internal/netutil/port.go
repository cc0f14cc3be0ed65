// Package netutil picks the address the HTTP server listens on.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrNoBindAddr is returned when neither the preferred address nor any
// candidate could be bound.
var ErrNoBindAddr = errors.New("no available autosnapper bind addresses")

// Plan lists where the server may listen, in order of preference.
type Plan struct {
	Preferred  string
	Candidates []string
	// Fallback allows Candidates to be tried when Preferred is taken.
	Fallback bool
}

// Addrs returns the addresses Listen will try, without duplicates.
func (p Plan) Addrs() []string {
	var out []string
	seen := map[string]bool{}
	add := func(a string) {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			return
		}
		seen[a] = true
		out = append(out, a)
	}
	add(p.Preferred)
	if p.Fallback || p.Preferred == "" {
		for _, a := range p.Candidates {
			add(a)
		}
	}
	return out
}

// Listen binds the first free address of the plan and returns the open
// listener, so nothing can take the port between selection and serving.
func (p Plan) Listen() (net.Listener, error) {
	addrs := p.Addrs()
	if len(addrs) == 0 {
		return nil, ErrNoBindAddr
	}
	var errs []error
	for _, addr := range addrs {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		errs = append(errs, err)
	}
	if p.Preferred != "" && !p.Fallback {
		return nil, fmt.Errorf("preferred bind address in use: %s: %w", p.Preferred, errors.Join(errs...))
	}
	return nil, fmt.Errorf("%w: %w", ErrNoBindAddr, errors.Join(errs...))
}

// PlatformAddr turns the bare port handed out by hosting platforms into a
// listen address on all interfaces.
func PlatformAddr(port string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("invalid PORT %q", port)
	}
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(n)), nil
}
