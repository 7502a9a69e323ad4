package relay

import (
	"fmt"
	"net/http"
	"strings"
)

// SSEHandler returns an http.HandlerFunc that streams one session's
// events as SSE. The session id comes from sessionID(r); clients may
// additionally filter event types via ?types=frame,session_failed.
func SSEHandler(broker *Broker, sessionID func(r *http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		wantSession := sessionID(r)
		if wantSession == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}

		var typeFilter map[string]bool
		if q := r.URL.Query().Get("types"); q != "" {
			typeFilter = make(map[string]bool)
			for _, t := range strings.Split(q, ",") {
				if t = strings.TrimSpace(t); t != "" {
					typeFilter[t] = true
				}
			}
		}

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
				if evt.Session != wantSession {
					continue
				}
				if typeFilter != nil && !typeFilter[evt.Type] {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Payload)
				flusher.Flush()
			}
		}
	}
}
