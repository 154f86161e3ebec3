// Package config implements the runtime's layered configuration: CLI
// flags override environment variables, which override the TOML file,
// which overrides struct defaults, plus a debounced file watcher for
// hot reload, generalized from a single viper.ReadInConfig call to the
// full precedence chain and promoting the indirect TOML/fsnotify
// dependencies to direct use.
package config

import (
	"time"

	"github.com/overlaymesh/ronet/internal/rerr"
)

// PQPosture selects the post-quantum hybrid posture advertised by a node.
type PQPosture string

const (
	PQOff    PQPosture = "off"
	PQHybrid PQPosture = "hybrid"
)

// DhtConfig holds the iterative lookup FSM's tunables.
type DhtConfig struct {
	Alpha     int `mapstructure:"alpha"`
	Beta      int `mapstructure:"beta"`
	K         int `mapstructure:"k"`
	HopBudget int `mapstructure:"hop_budget"`
}

// AdmissionConfig holds the gateway admission pipeline's tunables.
type AdmissionConfig struct {
	MaxBodyBytes   int64   `mapstructure:"max_body_bytes"`
	ConcurrencyCap int     `mapstructure:"concurrency_cap"`
	QuotaPerSecond float64 `mapstructure:"quota_per_second"`
	QuotaBurst     int     `mapstructure:"quota_burst"`
	YieldEveryN    int     `mapstructure:"yield_every_n"`
	Batch          int     `mapstructure:"batch"`
}

// TimeoutsConfig holds request/hop deadlines.
type TimeoutsConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	HopDeadline    time.Duration `mapstructure:"hop_deadline"`
}

// Config is the full node configuration, TOML-file-shaped.
type Config struct {
	Version          int       `mapstructure:"version"`
	Amnesia          bool      `mapstructure:"amnesia"`
	BindAddr         string    `mapstructure:"bind_addr"`
	AdminBindAddr    string    `mapstructure:"admin_bind_addr"`
	OverlayBindAddr  string    `mapstructure:"overlay_bind_addr"`
	RegistryBindAddr string    `mapstructure:"registry_bind_addr"`
	PQPosture        PQPosture `mapstructure:"pq_posture"`
	PolicyBundlePath string    `mapstructure:"policy_bundle_path"`
	RegistryHeartbeat time.Duration `mapstructure:"registry_heartbeat"`
	SoaThreshold     int       `mapstructure:"soa_threshold"`
	MaxTokenBytes    int       `mapstructure:"max_token_bytes"`
	MaxCaveats       int       `mapstructure:"max_caveats"`

	// BundlesDir roots the gateway's on-disk bundle resolution
	// (<BundlesDir>/<addr>/{Manifest.toml,payload.bin}).
	BundlesDir string `mapstructure:"bundles_dir"`
	// StorageDir roots the content-addressed blob store (internal/storage).
	StorageDir string `mapstructure:"storage_dir"`
	// AppUpstream is the base URL the gateway's /app/* tail proxies to;
	// empty disables the app-plane proxy.
	AppUpstream string `mapstructure:"app_upstream"`
	// EnforcePayments turns a manifest's advisory [payment] block into an
	// enforced 402 on payload.bin reads.
	EnforcePayments bool `mapstructure:"enforce_payments"`

	Dht       DhtConfig       `mapstructure:"dht"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
}

// Default returns the struct-default configuration layer, the bottom of
// the precedence chain.
func Default() Config {
	return Config{
		Version:           1,
		Amnesia:           false,
		BindAddr:          "127.0.0.1:8080",
		AdminBindAddr:     "127.0.0.1:8081",
		OverlayBindAddr:   "127.0.0.1:9443",
		RegistryBindAddr:  "127.0.0.1:8082",
		PQPosture:         PQOff,
		PolicyBundlePath:  "",
		RegistryHeartbeat: 15 * time.Second,
		SoaThreshold:      8,
		MaxTokenBytes:     4096,
		MaxCaveats:        16,
		BundlesDir:        "./data/bundles",
		StorageDir:        "./data/blobs",
		AppUpstream:       "",
		EnforcePayments:   false,
		Dht: DhtConfig{
			Alpha:     3,
			Beta:      2,
			K:         20,
			HopBudget: 8,
		},
		Admission: AdmissionConfig{
			MaxBodyBytes:   1 << 20,
			ConcurrencyCap: 256,
			QuotaPerSecond: 100,
			QuotaBurst:     200,
			YieldEveryN:    64,
			Batch:          16,
		},
		Timeouts: TimeoutsConfig{
			RequestTimeout: 10 * time.Second,
			HopDeadline:    2 * time.Second,
		},
	}
}

// Validate rejects impossible values before a config is applied anywhere:
// alpha<=k, beta<=alpha, deadlines in [1ms,60s], yield_every_n>=batch,
// max_body<=1MiB.
func (c Config) Validate() error {
	if c.Dht.Alpha > c.Dht.K {
		return rerr.New(rerr.KindConfig, "AlphaExceedsK", "dht.alpha must be <= dht.k", nil)
	}
	if c.Dht.Beta > c.Dht.Alpha {
		return rerr.New(rerr.KindConfig, "BetaExceedsAlpha", "dht.beta must be <= dht.alpha", nil)
	}
	if err := validDeadline("timeouts.request_timeout", c.Timeouts.RequestTimeout); err != nil {
		return err
	}
	if err := validDeadline("timeouts.hop_deadline", c.Timeouts.HopDeadline); err != nil {
		return err
	}
	if c.Admission.YieldEveryN < c.Admission.Batch {
		return rerr.New(rerr.KindConfig, "YieldBelowBatch", "admission.yield_every_n must be >= admission.batch", nil)
	}
	if c.Admission.MaxBodyBytes > 1<<20 {
		return rerr.New(rerr.KindConfig, "BodyCapTooLarge", "admission.max_body_bytes must be <= 1 MiB", nil)
	}
	if c.PQPosture != PQOff && c.PQPosture != PQHybrid {
		return rerr.New(rerr.KindConfig, "BadPqPosture", "pq_posture must be off or hybrid", nil)
	}
	return nil
}

func validDeadline(field string, d time.Duration) error {
	if d < time.Millisecond || d > 60*time.Second {
		return rerr.New(rerr.KindConfig, "DeadlineOutOfRange", field+" must be within [1ms, 60s]", nil)
	}
	return nil
}

// EnvPrefixFor returns the scoped environment prefix a given service reads
// overrides from, e.g. EnvPrefixFor("gateway") -> "SVC_GATEWAY_".
func EnvPrefixFor(service string) string {
	return "SVC_" + upperASCII(service) + "_"
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
