package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dgnsrekt/autosnapper/internal/client"
	"github.com/dgnsrekt/autosnapper/internal/config"
)

const usage = `usage: snapctl [-backend URL] <command> [args]

commands:
  capture [-o file.png] <url>   capture one URL
  history                       list past captures
  shell                         read URLs from stdin, one per line
                                ("history" reloads the list, "quit" exits)
`

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)

	fs := flag.NewFlagSet("snapctl", flag.ExitOnError)
	backend := fs.String("backend", cfg.BackendURL, "backend base URL (env AUTOSNAPPER_BACKEND_URL)")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = fs.Parse(os.Args[1:])
	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(*backend, &http.Client{Timeout: cfg.RequestTimeout})
	slog.Debug("snapctl backend", "url", c.BaseURL())

	var runErr error
	switch cmd, args := fs.Arg(0), fs.Args()[1:]; cmd {
	case "capture":
		runErr = runCapture(ctx, c, args)
	case "history":
		runErr = runHistory(ctx, c)
	case "shell":
		runErr = runShell(ctx, client.NewSession(c, cfg.RefreshDelay), os.Stdin, os.Stdout)
	default:
		fs.Usage()
		os.Exit(2)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		os.Exit(1)
	}
}

func runCapture(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	out := fs.String("o", "", "write the PNG to this file")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("capture needs exactly one url")
	}
	url := fs.Arg(0)
	if !client.Validate(url) {
		return errors.New(client.InvalidURLWarning)
	}

	res, err := c.Capture(ctx, url)
	if err != nil {
		return err
	}
	img, err := res.Image()
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	status := "captured"
	if res.Cached {
		status = "cached"
	}
	if *out == "" {
		fmt.Printf("%s %s (%d bytes)\n", status, url, len(img))
		return nil
	}
	if err := os.WriteFile(*out, img, 0o644); err != nil {
		return err
	}
	fmt.Printf("%s %s -> %s (%d bytes)\n", status, url, *out, len(img))
	return nil
}

func runHistory(ctx context.Context, c *client.Client) error {
	entries, err := c.ListHistory(ctx)
	if err != nil {
		return err
	}
	return client.RenderHistory(os.Stdout, entries)
}

// runShell drives a Session the way the web front end does: one capture at a
// time, history loaded once up front and refreshed after fresh captures.
func runShell(ctx context.Context, s *client.Session, in io.Reader, w io.Writer) error {
	out := &syncWriter{w: w}
	s.OnHistory = func(entries []client.HistoryEntry) {
		fmt.Fprintln(out)
		_ = client.RenderHistory(out, entries)
		fmt.Fprint(out, "> ")
	}
	s.LoadHistory(ctx)

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			fmt.Fprint(out, "> ")
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if line == "history" {
			s.LoadHistory(ctx)
			continue
		}

		err := s.Submit(ctx, line)
		st := s.State()
		switch {
		case errors.Is(err, client.ErrInvalidURL):
			fmt.Fprintln(out, st.Warning)
		case err != nil:
			fmt.Fprintln(out, "error:", st.Error)
		default:
			label := "fresh capture"
			if st.Result.Cached {
				label = "served from cache"
			}
			fmt.Fprintf(out, "%s: %s (%d base64 chars)\n", label, line, len(st.Result.ImageData))
		}
		fmt.Fprint(out, "> ")
	}
	s.Wait()
	return sc.Err()
}

// syncWriter lets history refreshes print while the prompt loop runs.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func setupLogger(level string) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelWarn
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
}
