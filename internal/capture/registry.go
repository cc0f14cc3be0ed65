package capture

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Config selects and tunes a capture backend.
type Config struct {
	// Backend is the registered backend name, "chromedp" when empty.
	Backend string
	// RemoteURL attaches to an already running browser instead of launching
	// one: the CDP HTTP endpoint or a websocket debugger URL.
	RemoteURL string
	// BrowserPath overrides browser binary discovery for local launches.
	BrowserPath string
	Headless    bool
	// NoSandbox passes --no-sandbox, needed when running as root in
	// containers.
	NoSandbox bool
	UserAgent string
	// Stealth hides common headless fingerprints. Only the rod backend
	// supports it.
	Stealth bool
	Timeout time.Duration
}

// BackendConstructor builds a Capturer from config.
type BackendConstructor func(cfg Config) (Capturer, error)

const defaultBackend = "chromedp"

var (
	mu       sync.RWMutex
	registry = map[string]BackendConstructor{}
)

// RegisterBackend registers a named backend constructor. Names are
// lower-cased; registering an existing name replaces it.
func RegisterBackend(name string, ctor BackendConstructor) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || ctor == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	registry[name] = ctor
}

// NewCapturer constructs the configured backend.
func NewCapturer(cfg Config) (Capturer, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if name == "" {
		name = defaultBackend
	}

	mu.RLock()
	ctor, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("capture backend %q not registered: available backends=%v", name, ListBackends())
	}

	c, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("construct capture backend %q: %w", name, err)
	}
	if c == nil {
		return nil, errors.New("capture backend constructor returned nil")
	}
	return c, nil
}

// ListBackends returns the registered backend names in sorted order.
func ListBackends() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	RegisterBackend("chromedp", func(cfg Config) (Capturer, error) {
		return NewChromeDP(cfg)
	})
	RegisterBackend("rod", func(cfg Config) (Capturer, error) {
		return NewRod(cfg)
	})
}
