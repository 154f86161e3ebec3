package registry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/overlaymesh/ronet/internal/bus"
	"github.com/overlaymesh/ronet/internal/obs"
)

// headTopic is the internal bus topic head commits are published on;
// the /registry/commit handler publishes here and the SSE stream
// subscribes to it.
const headTopic = "registry.head"

// serveSSE streams Head updates as "data: <json>\n\n" events, with a
// periodic heartbeat comment line to keep idle connections alive,
// following the standard text/event-stream framing.
func serveSSE(b *bus.Bus, heartbeat time.Duration, m *obs.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sub := b.Subscribe(headTopic)
		defer sub.Close()

		if m != nil {
			m.RegistrySSEClients.Inc()
			defer m.RegistrySSEClients.Dec()
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-sub.C:
				if !ok {
					return
				}
				if env.Lag != nil {
					fmt.Fprintf(w, ": lagged %d\n\n", env.Lag.Skipped)
					flusher.Flush()
					continue
				}
				head, ok := env.Value.(Head)
				if !ok {
					continue
				}
				data, err := json.Marshal(head)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", data)
				flusher.Flush()
			case <-ticker.C:
				fmt.Fprint(w, ": heartbeat\n\n")
				flusher.Flush()
			}
		}
	}
}
