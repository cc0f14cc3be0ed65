package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// EmptyHistoryText is shown when there are no captures.
const EmptyHistoryText = "No captures yet. Submit a URL to see it here."

// RenderHistory writes entries as a table, or the empty-state text.
func RenderHistory(w io.Writer, entries []HistoryEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, EmptyHistoryText)
		return err
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "URL", "Captured", "Size"})
	for i, e := range entries {
		captured := e.Timestamp
		if ts, err := e.Time(); err == nil {
			captured = ts.Local().Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{i + 1, truncate(e.URL, 60), captured, humanSize(decodedLen(e.ImageData))})
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func decodedLen(b64 string) int {
	n := len(b64) / 4 * 3
	return n - strings.Count(b64[max(0, len(b64)-2):], "=")
}

func humanSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
