package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AdminHooks wires the admin surface to whatever owns process lifecycle;
// any nil hook responds 501. Covers shutdown, reload, debug crash, and
// status.
type AdminHooks struct {
	Shutdown func() error
	Reload   func() error
	Crash    func(service string) error
	Status   func() StatusReport
}

// StatusReport is the body of GET /api/v1/status.
type StatusReport struct {
	Name     string            `json:"name"`
	Version  string            `json:"version"`
	Mode     string            `json:"mode"`
	Services map[string]string `json:"services"`
}

func (h AdminHooks) mount(r chi.Router) {
	r.Post("/api/v1/shutdown", func(w http.ResponseWriter, r *http.Request) {
		if h.Shutdown == nil {
			writeErrorResp(w, CorrIDFrom(r.Context()), "not_implemented", "shutdown hook not wired", http.StatusNotImplemented, false, 0)
			return
		}
		if err := h.Shutdown(); err != nil {
			serviceUnavailable(w, CorrIDFrom(r.Context()), err.Error(), 0)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	r.Post("/api/v1/reload", func(w http.ResponseWriter, r *http.Request) {
		if h.Reload == nil {
			writeErrorResp(w, CorrIDFrom(r.Context()), "not_implemented", "reload hook not wired", http.StatusNotImplemented, false, 0)
			return
		}
		if err := h.Reload(); err != nil {
			serviceUnavailable(w, CorrIDFrom(r.Context()), err.Error(), 0)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	r.Post("/api/v1/debug/crash", func(w http.ResponseWriter, r *http.Request) {
		if h.Crash == nil {
			writeErrorResp(w, CorrIDFrom(r.Context()), "not_implemented", "crash hook not wired", http.StatusNotImplemented, false, 0)
			return
		}
		service := r.URL.Query().Get("service")
		if err := h.Crash(service); err != nil {
			badRequest(w, CorrIDFrom(r.Context()), err.Error())
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	r.Get("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		if h.Status == nil {
			writeErrorResp(w, CorrIDFrom(r.Context()), "not_implemented", "status hook not wired", http.StatusNotImplemented, false, 0)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.Status())
	})
}
