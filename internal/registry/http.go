package registry

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/overlaymesh/ronet/internal/bus"
	"github.com/overlaymesh/ronet/internal/obs"
)

// errBody is the JSON shape the original's responses::err helper sends.
type errBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errBody{Error: code, Message: message})
}

// Config tunes the SSE stream's heartbeat interval, per the original's
// sse.heartbeat_ms knob, and carries the metrics sink; the bus for SSE
// fan-out is passed to NewServer separately.
type Config struct {
	Heartbeat time.Duration
	Metrics   *obs.Metrics
}

// Server owns the registry head and its HTTP surface.
type Server struct {
	store   *Store
	bus     *bus.Bus
	cfg     Config
}

// NewServer constructs a Server publishing head updates on bus.
func NewServer(store *Store, b *bus.Bus, cfg Config) *Server {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 5 * time.Second
	}
	return &Server{store: store, bus: b, cfg: cfg}
}

type commitRequest struct {
	PayloadB3 string `json:"payload_b3"`
}

// Mount registers /registry/head, /registry/commit, and /registry/stream
// on r.
func (s *Server) Mount(r chi.Router) {
	r.Get("/registry/head", func(w http.ResponseWriter, r *http.Request) {
		head := s.store.Head()
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RegistryHeadVersion.Set(float64(head.Version))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(head)
	})

	r.Post("/registry/commit", func(w http.ResponseWriter, r *http.Request) {
		var req commitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid_payload", "malformed request body")
			return
		}
		head, err := s.store.Commit(req.PayloadB3)
		if err != nil {
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.RegistryCommits.WithLabelValues("rejected").Inc()
			}
			writeErr(w, http.StatusBadRequest, "invalid_payload", err.Error())
			return
		}
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RegistryCommits.WithLabelValues("ok").Inc()
			s.cfg.Metrics.RegistryHeadVersion.Set(float64(head.Version))
		}
		if s.bus != nil {
			s.bus.TryPublish(headTopic, head)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(head)
	})

	r.Get("/registry/stream", serveSSE(s.bus, s.cfg.Heartbeat, s.cfg.Metrics))
}
