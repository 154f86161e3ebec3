package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/overlaymesh/ronet/internal/obs"
	"github.com/overlaymesh/ronet/internal/policy"
	"github.com/overlaymesh/ronet/internal/readiness"
)

// Version is stamped at build time via -ldflags; left as a variable so
// cmd/macronode can override it.
var Version = "dev"

// Config assembles everything router.go needs to build the gateway's
// http.Handler: the admission pipeline's tuning knobs, the resource
// store backing /o/*, the admin surface, and the readiness/metrics
// machinery every ronet process exposes the same way.
type Config struct {
	Name string

	Timeout          time.Duration
	ConcurrencyMax   int
	CORS             CORSConfig
	Quotas           QuotaConfig
	FairQueueHard    int
	FairQueueHeadroom int
	BodyCapBytes     int64
	EnforcePayments  bool

	Capability *CapabilityConfig // nil disables capability enforcement
	Policy     *policy.Evaluator // nil per WithPolicy's fail-open/fail-closed split
	PolicyFailClosed bool

	Resources *ResourceStore
	Admin     AdminHooks
	AdminAuth AdminConfig

	AppUpstream string // base URL for the /app/* reverse proxy; "" disables it

	Metrics  *obs.Metrics
	Gates    *readiness.Gates
	Logger   *logrus.Logger
}

// New builds the full gateway router: public health/ready/metrics/version
// endpoints, the /o/:addr resource read path behind the admission
// pipeline, the /app/* reverse proxy, and an admin sub-router gated by
// WithAdminAuth.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Gates != nil {
		r.Get("/readyz", readiness.Handler(cfg.Gates))
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"` + cfg.Name + `","version":"` + Version + `"}`))
	})

	mws := []func(http.Handler) http.Handler{
		WithCorrID,
		WithHTTPMetrics(cfg.Metrics),
		WithTimeout(cfg.Timeout),
		WithConcurrencyCap(cfg.ConcurrencyMax),
		WithCORS(cfg.CORS),
		WithQuotas(cfg.Quotas),
		WithFairQueue(cfg.FairQueueHard, cfg.FairQueueHeadroom, cfg.Metrics),
		WithBodyCap(cfg.BodyCapBytes),
		WithDecodeGuard(),
	}
	if cfg.Capability != nil {
		mws = append(mws, WithCapability(*cfg.Capability))
	}
	mws = append(mws, WithPolicy(cfg.Policy, func(r *http.Request) string {
		if t := TenantFrom(r); t != "" {
			return t
		}
		return "default"
	}, cfg.PolicyFailClosed))

	r.Group(func(pub chi.Router) {
		pub.Use(mws...)

		if cfg.Resources != nil {
			pub.Get("/o/{addr}", func(w http.ResponseWriter, r *http.Request) {
				cfg.Resources.HandleDiscover(w, r, chi.URLParam(r, "addr"))
			})
			pub.Get("/o/{addr}/Manifest.toml", func(w http.ResponseWriter, r *http.Request) {
				cfg.Resources.HandleManifest(w, r, chi.URLParam(r, "addr"))
			})
			pub.Head("/o/{addr}/Manifest.toml", func(w http.ResponseWriter, r *http.Request) {
				cfg.Resources.HandleManifest(w, r, chi.URLParam(r, "addr"))
			})
			pub.Get("/o/{addr}/payload.bin", func(w http.ResponseWriter, r *http.Request) {
				cfg.Resources.HandlePayload(w, r, chi.URLParam(r, "addr"), cfg.EnforcePayments)
			})
			pub.Head("/o/{addr}/payload.bin", func(w http.ResponseWriter, r *http.Request) {
				cfg.Resources.HandlePayload(w, r, chi.URLParam(r, "addr"), cfg.EnforcePayments)
			})
		}

		if cfg.AppUpstream != "" {
			proxy, err := newAppProxy(cfg.AppUpstream)
			if err == nil {
				pub.Handle("/app/*", proxy)
			}
		}
	})

	r.Group(func(admin chi.Router) {
		admin.Use(WithCorrID, WithAdminAuth(cfg.AdminAuth, cfg.Logger))
		cfg.Admin.mount(admin)
	})

	return r
}
