package events

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func parseTypeFilter(r *http.Request) map[string]bool {
	q := r.URL.Query().Get("types")
	if q == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, t := range strings.Split(q, ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter[t] = true
		}
	}
	return filter
}

// SSEHandler streams events as server-sent events. Clients may filter by
// ?types=capture,delete.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		filter := parseTypeFilter(r)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if filter != nil && !filter[evt.Type] {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Payload)
				flusher.Flush()
			}
		}
	}
}

// wsMessage is the frame sent to websocket subscribers.
type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func encodeWSMessage(evt Event) ([]byte, error) {
	payload := json.RawMessage(evt.Payload)
	if !json.Valid(payload) {
		quoted, err := json.Marshal(evt.Payload)
		if err != nil {
			return nil, err
		}
		payload = quoted
	}
	return json.Marshal(wsMessage{Type: evt.Type, Payload: payload})
}

// WSHandler streams events over a websocket as JSON text frames of the form
// {"type": ..., "payload": ...}. The same ?types= filter applies.
func WSHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := parseTypeFilter(r)

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("events websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		// The stream is server-to-client only. Client frames are discarded
		// and only the writer touches the connection for output.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				hdr, err := ws.ReadHeader(conn)
				if err != nil {
					return
				}
				if _, err := io.CopyN(io.Discard, conn, hdr.Length); err != nil {
					return
				}
				if hdr.OpCode == ws.OpClose {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if filter != nil && !filter[evt.Type] {
					continue
				}
				frame, err := encodeWSMessage(evt)
				if err != nil {
					slog.Error("events websocket encode failed", "type", evt.Type, "error", err)
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := wsutil.WriteServerText(conn, frame); err != nil {
					slog.Debug("events websocket write failed", "error", err)
					return
				}
			}
		}
	}
}
