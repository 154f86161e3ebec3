package obs

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the process-wide Prometheus collectors. Construct one per
// process with NewMetrics and pass it explicitly to subsystems; tests
// construct a fresh instance with its own registry, avoiding the global
// default registry's cross-test collisions.
type Metrics struct {
	Registry *prometheus.Registry

	BusPublished   *prometheus.CounterVec
	BusLagged      *prometheus.CounterVec
	BusDepth       *prometheus.GaugeVec
	SupervisorRestarts *prometheus.CounterVec
	SupervisorCrashed  *prometheus.CounterVec
	GatewayRequests    *prometheus.CounterVec
	GatewayLatency     *prometheus.HistogramVec
	AdmissionRejected  *prometheus.CounterVec
	DhtHops            prometheus.Histogram
	DhtTimeouts        prometheus.Counter
	WriterDropped      *prometheus.CounterVec
	WriterDepth        *prometheus.GaugeVec
	RegistryHeadVersion prometheus.Gauge
	RegistryCommits     *prometheus.CounterVec
	RegistrySSEClients  prometheus.Gauge
}

// NewMetrics registers every collector against a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		BusPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ronet_bus_published_total", Help: "messages published on the bus",
		}, []string{"topic"}),
		BusLagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ronet_bus_lagged_total", Help: "messages dropped for lagging subscribers",
		}, []string{"topic"}),
		BusDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ronet_bus_depth", Help: "heuristic queue depth per topic",
		}, []string{"topic"}),
		SupervisorRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ronet_supervisor_restarts_total", Help: "service restarts performed",
		}, []string{"service"}),
		SupervisorCrashed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ronet_supervisor_crashed_total", Help: "service crashes observed",
		}, []string{"service"}),
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ronet_gateway_requests_total", Help: "gateway requests by route and status",
		}, []string{"route", "status"}),
		GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "ronet_gateway_latency_seconds", Help: "gateway handler latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		AdmissionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ronet_admission_rejected_total", Help: "requests rejected during admission",
		}, []string{"stage"}),
		DhtHops: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "ronet_dht_lookup_hops", Help: "hops consumed per DHT lookup",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		}),
		DhtTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ronet_dht_lookup_timeouts_total", Help: "DHT lookups that exhausted their deadline",
		}),
		WriterDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ronet_overlay_writer_dropped_total", Help: "overlay frames dropped by a full writer channel",
		}, []string{"conn"}),
		WriterDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ronet_overlay_writer_depth", Help: "overlay writer channel depth",
		}, []string{"conn"}),
		RegistryHeadVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ronet_registry_head_version", Help: "current registry head version",
		}),
		RegistryCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ronet_registry_commits_total", Help: "registry commit attempts by outcome",
		}, []string{"outcome"}),
		RegistrySSEClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ronet_registry_sse_clients", Help: "connected registry SSE stream clients",
		}),
	}
	reg.MustRegister(
		m.BusPublished, m.BusLagged, m.BusDepth,
		m.SupervisorRestarts, m.SupervisorCrashed,
		m.GatewayRequests, m.GatewayLatency, m.AdmissionRejected,
		m.DhtHops, m.DhtTimeouts,
		m.WriterDropped, m.WriterDepth,
		m.RegistryHeadVersion, m.RegistryCommits, m.RegistrySSEClients,
	)
	return m
}
