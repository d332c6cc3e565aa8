package events

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// heartbeatInterval is how often an idle stream gets a comment frame.
var heartbeatInterval = 25 * time.Second

// SSEHandler streams the launch events of one channel.
//
//	GET /events?channel=<name>[&since=<id>][&token=<token>]
//
// Events buffered after since (or Last-Event-ID, whichever is larger) are
// replayed first. When tokens is non-empty the caller must present one as
// ?token= or as a Bearer header; EventSource cannot set headers.
func SSEHandler(hub *Hub, tokens []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hub == nil {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		if len(tokens) > 0 && !isAuthorized(r, tokens) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="events", error="invalid_token"`)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		channel := strings.TrimSpace(r.URL.Query().Get("channel"))
		if channel == "" {
			http.Error(w, "channel is required", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no") // nginx

		launches, unsubscribe := hub.Subscribe(channel, lastSeenID(r), 128)
		defer unsubscribe()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		slog.Debug("events: stream opened", "channel", channel)

		for {
			select {
			case evt, ok := <-launches:
				if !ok {
					return
				}
				if err := writeLaunchEvent(w, evt); err != nil {
					slog.Debug("events: stream closed", "channel", channel, "error", err)
					return
				}
			case <-heartbeat.C:
				if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
					return
				}
			case <-r.Context().Done():
				return
			}
			flusher.Flush()
		}
	})
}

// writeLaunchEvent writes one "launch.event" frame carrying the event id.
func writeLaunchEvent(w io.Writer, evt LaunchEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal launch event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: launch.event\ndata: %s\n\n", evt.ID, data)
	return err
}

// lastSeenID is the larger of ?since= and Last-Event-ID; unparsable values count as 0.
func lastSeenID(r *http.Request) int64 {
	var since int64
	for _, raw := range []string{r.URL.Query().Get("since"), r.Header.Get("Last-Event-ID")} {
		if v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil && v > since {
			since = v
		}
	}
	return since
}

func isAuthorized(r *http.Request, tokens []string) bool {
	if q := strings.TrimSpace(r.URL.Query().Get("token")); q != "" && tokenAllowed(q, tokens) {
		return true
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	return tokenAllowed(strings.TrimSpace(token), tokens)
}

func tokenAllowed(got string, tokens []string) bool {
	if got == "" {
		return false
	}
	for _, t := range tokens {
		want := strings.TrimSpace(t)
		if want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1 {
			return true
		}
	}
	return false
}
