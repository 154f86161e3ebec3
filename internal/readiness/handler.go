package readiness

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Handler serves GET /readyz against g.
func Handler(g *Gates) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, status, retryAfter := Decide(g)
		w.Header().Set("Content-Type", "application/json")
		if retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}
