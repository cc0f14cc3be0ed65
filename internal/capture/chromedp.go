package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// maxIdleWait bounds how long a capture waits for network quiet on pages
// that keep long-polling connections open.
const maxIdleWait = 5 * time.Second

// ChromeDP captures pages through chromedp. One browser process (or remote
// CDP connection) is shared; every capture gets its own tab.
type ChromeDP struct {
	cfg Config

	mu            sync.Mutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	started       bool
}

// NewChromeDP prepares a chromedp allocator. The browser itself is started
// on the first capture.
func NewChromeDP(cfg Config) (*ChromeDP, error) {
	c := &ChromeDP{cfg: cfg}
	c.resetLocked()
	return c, nil
}

func (c *ChromeDP) Name() string { return "chromedp" }

func (c *ChromeDP) resetLocked() {
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}

	if c.cfg.RemoteURL != "" {
		c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), c.cfg.RemoteURL)
	} else {
		c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), c.execOptions()...)
	}
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx)
	c.started = false
}

func (c *ChromeDP) execOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !c.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if c.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if c.cfg.BrowserPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.BrowserPath))
	}
	if c.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.cfg.UserAgent))
	}
	return opts
}

// ensureBrowser starts the shared browser once. A failed start resets the
// allocator so the next capture retries.
func (c *ChromeDP) ensureBrowser() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		if c.browserCtx.Err() == nil {
			return c.browserCtx, nil
		}
		slog.Warn("chromedp browser context gone, restarting")
		c.resetLocked()
	}

	if err := chromedp.Run(c.browserCtx); err != nil {
		c.resetLocked()
		return nil, err
	}
	c.started = true
	slog.Info("chromedp browser started", "remote", c.cfg.RemoteURL != "")
	return c.browserCtx, nil
}

// Capture navigates a fresh tab to url and screenshots it.
func (c *ChromeDP) Capture(ctx context.Context, url string, opts Options) (Result, error) {
	opts = opts.withDefaults()
	start := time.Now()

	browserCtx, err := c.ensureBrowser()
	if err != nil {
		return Result{}, NewError(CodeBrowserUnavailable, "start browser", err)
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, opts.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var idle <-chan struct{}
	if opts.WaitIdle > 0 {
		idle = waitNetworkIdle(tabCtx, opts.WaitIdle)
	}

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(url),
	); err != nil {
		return Result{}, classify(tabCtx, CodeNavigationFailed, "navigate to "+url, err)
	}

	if idle != nil {
		select {
		case <-idle:
		case <-time.After(opts.WaitIdle + maxIdleWait):
			slog.Debug("chromedp network idle wait expired", "url", url)
		case <-tabCtx.Done():
			return Result{}, classify(tabCtx, CodeCaptureTimeout, "wait for network idle", tabCtx.Err())
		}
	}

	var (
		img      []byte
		title    string
		finalURL string
	)
	shot := chromedp.CaptureScreenshot(&img)
	if opts.FullPage {
		shot = chromedp.FullScreenshot(&img, 100)
	}
	if err := chromedp.Run(tabCtx,
		chromedp.Title(&title),
		chromedp.Location(&finalURL),
		shot,
	); err != nil {
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

// Close shuts the shared browser down.
func (c *ChromeDP) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	c.started = false
	return nil
}

// idleTracker tracks in-flight requests by id. Redirects reuse the id, so a
// request counts once until it finishes or fails.
type idleTracker struct {
	idleAfter time.Duration
	idle      chan struct{}
	once      sync.Once

	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	timer    *time.Timer
}

func newIdleTracker(idleAfter time.Duration) *idleTracker {
	return &idleTracker{
		idleAfter: idleAfter,
		idle:      make(chan struct{}),
		inflight:  make(map[network.RequestID]struct{}),
	}
}

func (t *idleTracker) started(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *idleTracker) finished(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	if len(t.inflight) > 0 {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idleAfter, func() {
		t.mu.Lock()
		quiet := len(t.inflight) == 0
		t.mu.Unlock()
		if quiet {
			t.once.Do(func() { close(t.idle) })
		}
	})
}

// waitNetworkIdle signals once no request has been in flight for idleAfter.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) <-chan struct{} {
	tr := newIdleTracker(idleAfter)
	chromedp.ListenTarget(ctx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			tr.started(e.RequestID)
		case *network.EventLoadingFinished:
			tr.finished(e.RequestID)
		case *network.EventLoadingFailed:
			tr.finished(e.RequestID)
		}
	})
	return tr.idle
}
