package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/overlaymesh/ronet/internal/audit"
	"github.com/overlaymesh/ronet/internal/bus"
	"github.com/overlaymesh/ronet/internal/capability"
	"github.com/overlaymesh/ronet/internal/config"
	"github.com/overlaymesh/ronet/internal/dht"
	"github.com/overlaymesh/ronet/internal/gateway"
	"github.com/overlaymesh/ronet/internal/kms"
	"github.com/overlaymesh/ronet/internal/obs"
	"github.com/overlaymesh/ronet/internal/policy"
	"github.com/overlaymesh/ronet/internal/readiness"
	"github.com/overlaymesh/ronet/internal/registry"
	"github.com/overlaymesh/ronet/internal/rerr"
	"github.com/overlaymesh/ronet/internal/storage"
	"github.com/overlaymesh/ronet/internal/supervisor"
)

// reloadableHandler lets an admin-triggered config reload swap the
// entire gateway mux without restarting the HTTP listener.
type reloadableHandler struct {
	h atomic.Pointer[http.Handler]
}

func (r *reloadableHandler) Set(h http.Handler) { r.h.Store(&h) }

func (r *reloadableHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	(*r.h.Load()).ServeHTTP(w, req)
}

// Node owns every long-lived component of one macronode process.
type Node struct {
	cfgPath string
	cfg     atomic.Pointer[config.Config]

	logger  *logrus.Logger
	metrics *obs.Metrics
	gates   *readiness.Gates
	bus     *bus.Bus
	sup     *supervisor.Supervisor

	blobs    *storage.Store
	dhtIdx   *dht.Store
	keys     *kms.Keystore
	identity kms.KeyId
	mac      *fileKeyring
	auditlog *audit.RamSink

	gatewayHandler *reloadableHandler
	registryRouter chi.Router

	services map[string]*crashableService

	cancel context.CancelFunc
}

// buildNode wires every component from a loaded config. It does not bind
// any listener; that happens in Run.
func buildNode(cfg config.Config, cfgPath string, logger *logrus.Logger) (*Node, error) {
	n := &Node{
		cfgPath:  cfgPath,
		logger:   logger,
		metrics:  obs.NewMetrics(),
		gates:    readiness.New(),
		services: make(map[string]*crashableService),
		auditlog: audit.NewRamSink(),
	}
	n.cfg.Store(&cfg)
	n.gates.SetMetricsBound(true)
	n.gates.SetCfgLoaded(true)

	n.bus = bus.New(256, n.metrics)
	n.sup = supervisor.New(supervisor.NewCrashPolicy(5, time.Minute), n.bus, n.metrics, n.logger)

	blobs, err := storage.New(cfg.StorageDir, n.logger)
	if err != nil {
		return nil, err
	}
	n.blobs = blobs
	n.dhtIdx = dht.NewStore(24 * time.Hour)
	n.keys = kms.New()
	identity, err := n.keys.CreateEd25519("node", "identity")
	if err != nil {
		return nil, err
	}
	n.identity = identity

	mac, err := loadOrCreateKeyring(cfg.StorageDir + "/mac_keyring.json")
	if err != nil {
		return nil, err
	}
	n.mac = mac

	n.gatewayHandler = &reloadableHandler{}
	n.gatewayHandler.Set(n.buildGatewayHandler(cfg))
	n.gates.SetGatewayBound(true)

	registryStore := registry.NewStore()
	registrySrv := registry.NewServer(registryStore, n.bus, registry.Config{
		Heartbeat: cfg.RegistryHeartbeat,
		Metrics:   n.metrics,
	})
	regRouter := chi.NewRouter()
	registrySrv.Mount(regRouter)
	n.registryRouter = regRouter

	n.gates.SetDepsOk(true)

	return n, nil
}

func (n *Node) loadPolicyEvaluator(cfg config.Config) *policy.Evaluator {
	if cfg.PolicyBundlePath == "" {
		return nil
	}
	bundle, err := loadPolicyBundle(cfg.PolicyBundlePath)
	if err != nil {
		if n.logger != nil {
			n.logger.WithError(err).Warn("policy bundle load failed, running without a policy evaluator")
		}
		return nil
	}
	return policy.New(bundle)
}

func (n *Node) buildGatewayHandler(cfg config.Config) http.Handler {
	evaluator := n.loadPolicyEvaluator(cfg)

	capCfg := &gateway.CapabilityConfig{
		Keys: n.mac,
		Cfg: capability.VerifierConfig{
			MaxTokenBytes: cfg.MaxTokenBytes,
			MaxCaveats:    cfg.MaxCaveats,
			ClockSkewSecs: 30,
			SoaThreshold:  cfg.SoaThreshold,
		},
		Clock: func() uint64 { return uint64(time.Now().Unix()) },
	}

	resources := gateway.NewResourceStore(cfg.BundlesDir, nil)

	return gateway.New(gateway.Config{
		Name:           "macronode",
		Timeout:        cfg.Timeouts.RequestTimeout,
		ConcurrencyMax: cfg.Admission.ConcurrencyCap,
		CORS:           gateway.CORSConfig{},
		Quotas: gateway.QuotaConfig{
			GlobalPerSecond: cfg.Admission.QuotaPerSecond,
			GlobalBurst:     cfg.Admission.QuotaBurst,
			PerIPPerSecond:  cfg.Admission.QuotaPerSecond,
			PerIPBurst:      cfg.Admission.QuotaBurst,
		},
		FairQueueHard:     cfg.Admission.ConcurrencyCap,
		FairQueueHeadroom: cfg.Admission.ConcurrencyCap / 4,
		BodyCapBytes:      cfg.Admission.MaxBodyBytes,
		EnforcePayments:   cfg.EnforcePayments,
		Capability:        capCfg,
		Policy:            evaluator,
		PolicyFailClosed:  true,
		Resources:         resources,
		Admin:             n.adminHooks(),
		AdminAuth:         gateway.AdminConfig{},
		AppUpstream:       cfg.AppUpstream,
		Metrics:           n.metrics,
		Gates:             n.gates,
		Logger:            n.logger,
	})
}

func (n *Node) appendAudit(kind audit.Kind, actor, reason string, attrs map[string]any) {
	body, _ := json.Marshal(attrs)
	state := n.auditlog.State("admin")
	seq := state.Seq
	if state.Head != "" {
		seq = state.Seq + 1
	}
	rec := audit.Record{
		V:        1,
		TsMs:     time.Now().UnixMilli(),
		WriterID: "macronode",
		Seq:      seq,
		Stream:   "admin",
		Kind:     kind,
		Actor:    audit.ActorRef{Kind: "operator", ID: actor},
		Subject:  audit.SubjectRef{Kind: "node", ID: "macronode"},
		Reason:   audit.ReasonCode(reason),
		Attrs:    body,
		Prev:     state.Head,
	}
	sealed, err := audit.Seal(rec)
	if err != nil {
		return
	}
	if _, err := n.auditlog.Append(sealed); err != nil && n.logger != nil {
		n.logger.WithError(err).Warn("admin audit append failed")
	}
}

var errNoSuchService = rerr.New(rerr.KindConfig, "NoSuchService", "unknown service name", nil)
