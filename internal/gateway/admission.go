package gateway

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/overlaymesh/ronet/internal/obs"
	"github.com/overlaymesh/ronet/internal/policy"
)

type corrIDKey struct{}

// CorrIDFrom extracts the correlation id stashed by WithCorrID, or ""
// if the middleware never ran.
func CorrIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(corrIDKey{}).(string)
	return v
}

const (
	headerRequestID = "X-Request-Id"
	headerCorrID    = "X-Correlation-Id"
	headerPriority  = "x-omnigate-priority"
)

// WithCorrID reads X-Request-Id/X-Correlation-Id, generating a fresh id
// for whichever is missing, stashes it on the request context, and
// echoes both headers on the response. Grounded on
// omnigate/src/middleware/corr_id.rs.
func WithCorrID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(headerRequestID)
		corrID := r.Header.Get(headerCorrID)
		switch {
		case reqID != "" && corrID != "":
		case reqID != "":
			corrID = reqID
		case corrID != "":
			reqID = uuid.NewString()
		default:
			reqID = uuid.NewString()
			corrID = reqID
		}

		w.Header().Set(headerRequestID, reqID)
		w.Header().Set(headerCorrID, corrID)
		ctx := context.WithValue(r.Context(), corrIDKey{}, corrID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the status code written so later middleware
// (metrics) can observe it without the handler cooperating.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// WithHTTPMetrics records request counts and latency keyed by route
// pattern and status.
func WithHTTPMetrics(m *obs.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			if m != nil {
				route := routePattern(r)
				m.GatewayRequests.WithLabelValues(route, itoa(rec.status)).Inc()
				m.GatewayLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if p := r.Pattern; p != "" {
		return p
	}
	return r.URL.Path
}

// WithTimeout bounds total handler time, matching timeouts.request_timeout.
func WithTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"code":"timeout","message":"request exceeded deadline","retryable":true,"corr_id":""}`)
	}
}

// concurrencyCap bounds total in-flight requests process-wide.
type concurrencyCap struct {
	cur int64
	max int64
}

// WithConcurrencyCap rejects with 503 once in-flight requests reach max.
func WithConcurrencyCap(max int) func(http.Handler) http.Handler {
	c := &concurrencyCap{max: int64(max)}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt64(&c.cur, 1) > c.max {
				atomic.AddInt64(&c.cur, -1)
				serviceUnavailable(w, CorrIDFrom(r.Context()), "concurrency cap reached", 1)
				return
			}
			defer atomic.AddInt64(&c.cur, -1)
			next.ServeHTTP(w, r)
		})
	}
}

// CORSConfig controls the minimal CORS reflection the gateway performs.
type CORSConfig struct {
	AllowedOrigins []string
}

// WithCORS reflects Origin when allowed (or "*" is configured) and
// answers OPTIONS preflights without forwarding them downstream.
func WithCORS(cfg CORSConfig) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if _, ok := allowed[origin]; ok || allowAll {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
			}
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+headerRequestID+", "+headerCorrID)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// QuotaConfig sizes the global and per-IP token buckets.
type QuotaConfig struct {
	GlobalPerSecond float64
	GlobalBurst     int
	PerIPPerSecond  float64
	PerIPBurst      int
}

// quotas enforces a global token bucket plus one bucket per client IP.
type quotas struct {
	global  *rate.Limiter
	cfg     QuotaConfig
	mu      sync.Mutex
	perIP   map[string]*rate.Limiter
}

// WithQuotas rejects with 429 once either bucket is exhausted.
func WithQuotas(cfg QuotaConfig) func(http.Handler) http.Handler {
	q := &quotas{
		global: rate.NewLimiter(rate.Limit(cfg.GlobalPerSecond), cfg.GlobalBurst),
		cfg:    cfg,
		perIP:  make(map[string]*rate.Limiter),
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !q.global.Allow() {
				tooManyRequests(w, CorrIDFrom(r.Context()), "global quota exceeded", 1)
				return
			}
			ip := clientIP(r)
			if !q.limiterFor(ip).Allow() {
				tooManyRequests(w, CorrIDFrom(r.Context()), "per-ip quota exceeded", 1)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (q *quotas) limiterFor(ip string) *rate.Limiter {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.perIP[ip]
	if !ok {
		l = rate.NewLimiter(rate.Limit(q.cfg.PerIPPerSecond), q.cfg.PerIPBurst)
		q.perIP[ip] = l
	}
	return l
}

func clientIP(r *http.Request) string {
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return h
	}
	return r.RemoteAddr
}

// fairGate is a CAS-based admission gate giving interactive-priority
// requests extra headroom over the hard cap, grounded on
// omnigate/src/admission/fair_queue.rs's Gate.
type fairGate struct {
	hard     int64
	headroom int64
	inFlight int64
}

func newFairGate(hard, headroom int) *fairGate {
	return &fairGate{hard: int64(hard), headroom: int64(headroom)}
}

func (g *fairGate) limitFor(r *http.Request) int64 {
	if r.Header.Get(headerPriority) == "interactive" {
		return g.hard + g.headroom
	}
	return g.hard
}

func (g *fairGate) tryEnter(r *http.Request) bool {
	limit := g.limitFor(r)
	for {
		cur := atomic.LoadInt64(&g.inFlight)
		if cur >= limit {
			return false
		}
		if atomic.CompareAndSwapInt64(&g.inFlight, cur, cur+1) {
			return true
		}
	}
}

func (g *fairGate) leave() { atomic.AddInt64(&g.inFlight, -1) }

// WithFairQueue sheds load past (hard[+headroom for interactive
// priority]) in-flight requests, marking AdmissionRejected.
func WithFairQueue(hard, headroom int, m *obs.Metrics) func(http.Handler) http.Handler {
	gate := newFairGate(hard, headroom)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !gate.tryEnter(r) {
				if m != nil {
					m.AdmissionRejected.WithLabelValues("fair_queue").Inc()
				}
				serviceUnavailable(w, CorrIDFrom(r.Context()), "server is shedding load; please retry", 1)
				return
			}
			defer gate.leave()
			next.ServeHTTP(w, r)
		})
	}
}

// WithBodyCap rejects requests whose declared Content-Length exceeds
// max outright; requests without a Content-Length are wrapped in a
// streaming io.LimitReader-style guard enforced by http.MaxBytesReader.
// Grounded on omnigate/src/middleware/body_caps.rs.
func WithBodyCap(max int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > max {
				payloadTooLarge(w, CorrIDFrom(r.Context()), "request body exceeds configured limit")
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithDecodeGuard rejects any request declaring Content-Encoding at all
// (stacked or single) on guarded routes, since this gateway does not
// decode request bodies. Responses it serves handle encoding selection
// separately in the resource read path.
func WithDecodeGuard() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enc := r.Header.Get("Content-Encoding"); enc != "" {
				unsupportedMediaType(w, CorrIDFrom(r.Context()), "request content-encoding not accepted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PolicyTenantFunc resolves the tenant a request should be evaluated
// under; callers typically derive this from a verified capability token.
type PolicyTenantFunc func(r *http.Request) string

// WithPolicy evaluates the request against eval and denies with 403
// (also 403 if eval is nil and failClosed is set) before the handler
// runs. Grounded on omnigate/src/middleware/policy.rs's fail_deny/
// fail_open split.
func WithPolicy(eval *policy.Evaluator, tenantOf PolicyTenantFunc, failClosed bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if eval == nil {
				if failClosed {
					forbidden(w, CorrIDFrom(r.Context()), "no policy evaluator configured")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			tenant := "default"
			if tenantOf != nil {
				tenant = tenantOf(r)
			}
			ctx := policy.Context{
				Tenant: tenant,
				Method: r.Method,
				Path:   r.URL.Path,
			}
			if r.ContentLength > 0 {
				ctx.BodyBytes = uint64(r.ContentLength)
			}
			dec := eval.Evaluate(ctx)
			if dec.Effect != policy.Allow {
				forbidden(w, CorrIDFrom(r.Context()), "denied by policy: "+dec.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain composes middlewares in the given outer-to-inner order around
// handler, i.e. Chain(h, a, b, c) runs a(b(c(h))).
func Chain(handler http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return handler
}
