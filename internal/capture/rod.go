package capture

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Rod captures pages through go-rod, either launching a local browser with
// rod's launcher or connecting to RemoteURL.
type Rod struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	// disconnect drops the CDP connection without closing the browser.
	disconnect context.CancelFunc
}

// NewRod returns a rod backend; the browser starts on first capture.
func NewRod(cfg Config) (*Rod, error) {
	return &Rod{cfg: cfg}, nil
}

func (r *Rod) Name() string { return "rod" }

func (r *Rod) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	controlURL := r.cfg.RemoteURL
	if strings.HasPrefix(controlURL, "http") {
		u, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return nil, err
		}
		controlURL = u
	}
	if controlURL == "" {
		l := launcher.New().Headless(r.cfg.Headless)
		if r.cfg.BrowserPath != "" {
			l = l.Bin(r.cfg.BrowserPath)
		}
		if r.cfg.NoSandbox {
			l = l.NoSandbox(true)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, err
		}
		controlURL = u
		r.lnch = l
		slog.Info("rod launched local browser", "control_url", controlURL)
	}

	connCtx, disconnect := context.WithCancel(context.Background())
	b := rod.New().Context(connCtx).ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		disconnect()
		r.killLauncherLocked()
		return nil, err
	}
	r.browser = b
	r.disconnect = disconnect
	return b, nil
}

// Capture opens a new page, waits for load (and optionally request idle),
// then screenshots it.
func (r *Rod) Capture(ctx context.Context, url string, opts Options) (Result, error) {
	opts = opts.withDefaults()
	start := time.Now()

	b, err := r.ensureBrowser()
	if err != nil {
		return Result{}, NewError(CodeBrowserUnavailable, "start browser", err)
	}

	var page *rod.Page
	if r.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		r.dropBrowser()
		return Result{}, NewError(CodeBrowserUnavailable, "open page", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			slog.Debug("rod page close failed", "error", err)
		}
	}()

	tabCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	p := page.Context(tabCtx)

	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return Result{}, classify(tabCtx, CodeCaptureFailed, "set viewport", err)
	}
	if r.cfg.UserAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.cfg.UserAgent}); err != nil {
			return Result{}, classify(tabCtx, CodeCaptureFailed, "set user agent", err)
		}
	}

	if err := p.Navigate(url); err != nil {
		return Result{}, classify(tabCtx, CodeNavigationFailed, "navigate to "+url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return Result{}, classify(tabCtx, CodeNavigationFailed, "wait for load", err)
	}
	if opts.WaitIdle > 0 {
		idleCtx, idleCancel := context.WithTimeout(tabCtx, opts.WaitIdle+maxIdleWait)
		wait := page.Context(idleCtx).WaitRequestIdle(opts.WaitIdle, nil, nil, nil)
		wait()
		idleCancel()
		if tabCtx.Err() != nil {
			return Result{}, classify(tabCtx, CodeCaptureTimeout, "wait for request idle", tabCtx.Err())
		}
	}

	var title, finalURL string
	if info, err := p.Info(); err == nil {
		title, finalURL = info.Title, info.URL
	}

	img, err := p.Screenshot(opts.FullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return Result{}, classify(tabCtx, CodeCaptureFailed, "screenshot "+url, err)
	}

	return Result{
		URL:        url,
		FinalURL:   finalURL,
		Title:      title,
		Image:      img,
		Format:     "png",
		CapturedAt: time.Now().UTC(),
		Duration:   time.Since(start),
	}, nil
}

// dropBrowser forgets a browser that stopped answering so the next capture
// reconnects.
func (r *Rod) dropBrowser() {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.releaseLocked()
}

// ownsBrowser reports whether the browser process was started by this backend.
func (r *Rod) ownsBrowser() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lnch != nil
}

// releaseLocked closes a browser rod launched, or only disconnects from a
// remote one.
func (r *Rod) releaseLocked() error {
	var err error
	if r.browser != nil && r.lnch != nil {
		err = r.browser.Close()
	}
	if r.disconnect != nil {
		r.disconnect()
		r.disconnect = nil
	}
	r.browser = nil
	r.killLauncherLocked()
	return err
}

func (r *Rod) killLauncherLocked() {
	if r.lnch != nil {
		r.lnch.Kill()
		r.lnch.Cleanup()
		r.lnch = nil
	}
}

// Close kills the browser if rod launched it, otherwise it only disconnects.
func (r *Rod) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked()
}
