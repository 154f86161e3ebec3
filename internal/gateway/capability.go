package gateway

import (
	"context"
	"encoding/base64"
	"net"
	"net/http"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/overlaymesh/ronet/internal/capability"
)

// CapabilityConfig wires the capability verifier into the admission
// pipeline. Keys and Cfg mirror capability.VerifyToken's own parameters;
// Clock returns the current unix time so tests can fake it.
type CapabilityConfig struct {
	Keys  capability.MacKeyProvider
	Cfg   capability.VerifierConfig
	Clock func() uint64
}

type tenantKey struct{}

// TenantFrom extracts the tenant WithCapability verified the request
// under, or "" if the middleware never ran or no token was presented.
func TenantFrom(r *http.Request) string {
	v, _ := r.Context().Value(tenantKey{}).(string)
	return v
}

// extractToken pulls the base64url token out of an Authorization header
// using either the Macaroon or Bearer scheme, case-insensitively.
func extractToken(header string) (string, bool) {
	for _, scheme := range []string{"Macaroon ", "Bearer "} {
		if len(header) >= len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
			return strings.TrimSpace(header[len(scheme):]), true
		}
	}
	return "", false
}

// envelopeTenant is a read-only peek at the tenant a token declares,
// independent of MAC verification outcome, used only to tag the request
// context for downstream tenant-scoped policy evaluation; VerifyToken
// has already proved the token's MAC and caveats hold by the time this
// runs.
type envelopeTenant struct {
	Token struct {
		Tenant string `cbor:"tid"`
	} `cbor:"token"`
}

func peekTenant(tokenB64 string) string {
	raw, err := base64.RawURLEncoding.DecodeString(tokenB64)
	if err != nil {
		return ""
	}
	var env envelopeTenant
	if err := cbor.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return env.Token.Tenant
}

// WithCapability verifies the bearer capability token on every request,
// denying with 401 when absent or malformed and 403 when its caveats
// reject the request, using the macaroon-or-bearer Authorization scheme.
func WithCapability(cfg CapabilityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := CorrIDFrom(r.Context())

			tokenB64, ok := extractToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, corrID, "missing capability token")
				return
			}

			var peerIP net.IP
			if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				peerIP = net.ParseIP(h)
			} else {
				peerIP = net.ParseIP(r.RemoteAddr)
			}

			var now uint64
			if cfg.Clock != nil {
				now = cfg.Clock()
			}

			reqCtx := capability.RequestCtx{
				NowUnixS: now,
				Method:   r.Method,
				Path:     r.URL.Path,
				PeerIP:   peerIP,
			}
			if r.ContentLength > 0 {
				reqCtx.Extras = map[string]any{"len": uint64(r.ContentLength)}
			}

			decision, err := capability.VerifyToken(cfg.Cfg, tokenB64, reqCtx, cfg.Keys)
			if err != nil {
				unauthorized(w, corrID, "invalid capability token")
				return
			}
			if !decision.Allowed {
				forbidden(w, corrID, "capability denied: "+string(decision.Reasons[0]))
				return
			}

			ctx := context.WithValue(r.Context(), tenantKey{}, peekTenant(tokenB64))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
