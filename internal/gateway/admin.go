package gateway

import (
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// AdminConfig names the environment knobs the admin auth gate reads,
// grounded on macronode/src/http_admin/middleware/auth.rs.
type AdminConfig struct {
	TokenEnv      string // defaults to RON_ADMIN_TOKEN
	DevInsecureEnv string // defaults to MACRONODE_DEV_INSECURE
}

func (c AdminConfig) tokenEnv() string {
	if c.TokenEnv != "" {
		return c.TokenEnv
	}
	return "RON_ADMIN_TOKEN"
}

func (c AdminConfig) devInsecureEnv() string {
	if c.DevInsecureEnv != "" {
		return c.DevInsecureEnv
	}
	return "MACRONODE_DEV_INSECURE"
}

func devInsecure(envVar string) bool {
	switch strings.ToLower(os.Getenv(envVar)) {
	case "1", "true", "on":
		return true
	default:
		return false
	}
}

func isLoopbackHost(host string) bool {
	h := host
	if hostOnly, _, err := net.SplitHostPort(host); err == nil {
		h = hostOnly
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return strings.EqualFold(h, "localhost") // a hostname counts as loopback only if it is localhost
	}
	return ip.IsLoopback()
}

// WithAdminAuth guards every request behind it: bearer-token match
// against cfg's token env var, loopback-bypass-with-warning if unset,
// or outright denial on non-loopback binds unless the dev-insecure
// escape hatch is set. Grounded on macronode's admin auth middleware,
// generalized from guarding two fixed paths to guarding an entire
// admin sub-router (this gateway's admin surface is mounted separately
// from the public read path).
func WithAdminAuth(cfg AdminConfig, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := CorrIDFrom(r.Context())

			expected := os.Getenv(cfg.tokenEnv())
			if expected != "" {
				auth := r.Header.Get("Authorization")
				if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token == expected {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w, corrID, "missing or invalid admin token")
				return
			}

			// No token configured: loopback binds are allowed with a warning;
			// non-loopback binds require the dev-insecure escape hatch, also
			// logged, and are denied otherwise.
			if isLoopbackHost(r.Host) {
				if logger != nil {
					logger.Warn("admin token not configured: allowing admin action on loopback bind")
				}
				next.ServeHTTP(w, r)
				return
			}
			if devInsecure(cfg.devInsecureEnv()) {
				if logger != nil {
					logger.WithField("path", r.URL.Path).Warn("admin auth bypassed: dev-insecure mode on non-loopback bind")
				}
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w, corrID, "admin token required on non-loopback bind")
		})
	}
}
