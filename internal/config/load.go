package config

import (
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/overlaymesh/ronet/internal/rerr"
)

// LoadOptions describes the input layers for Load. Every field is
// optional; omitted layers simply don't contribute overrides.
type LoadOptions struct {
	// FilePath is read if FileBytes is nil.
	FilePath string
	// FileBytes, when set, is used instead of reading FilePath (tests, or
	// a watcher that already has the bytes from an fsnotify event).
	FileBytes []byte
	// EnvPrefix defaults to "RON" if empty.
	EnvPrefix string
	// Flags, when set, are bound so flag values win over everything else.
	Flags *pflag.FlagSet
}

// Load builds a Config from defaults, overlaid by file, then environment,
// then CLI flags, and validates the result.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = "RON"
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()

	setDefaults(v, Default())

	raw := opts.FileBytes
	if raw == nil && opts.FilePath != "" {
		b, err := os.ReadFile(opts.FilePath)
		if err != nil {
			return Config{}, rerr.New(rerr.KindConfig, "ReadFile", "read config file", err)
		}
		raw = b
	}
	if len(raw) > 0 {
		var fileMap map[string]any
		if err := toml.Unmarshal(raw, &fileMap); err != nil {
			return Config{}, rerr.New(rerr.KindConfig, "ParseToml", "parse config file", err)
		}
		if err := v.MergeConfigMap(fileMap); err != nil {
			return Config{}, rerr.Wrap(err, "merge file config")
		}
	}

	if opts.Flags != nil {
		if err := v.BindPFlags(opts.Flags); err != nil {
			return Config{}, rerr.Wrap(err, "bind flags")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, rerr.New(rerr.KindConfig, "Unmarshal", "decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("amnesia", d.Amnesia)
	v.SetDefault("bind_addr", d.BindAddr)
	v.SetDefault("admin_bind_addr", d.AdminBindAddr)
	v.SetDefault("overlay_bind_addr", d.OverlayBindAddr)
	v.SetDefault("registry_bind_addr", d.RegistryBindAddr)
	v.SetDefault("pq_posture", string(d.PQPosture))
	v.SetDefault("policy_bundle_path", d.PolicyBundlePath)
	v.SetDefault("registry_heartbeat", d.RegistryHeartbeat)
	v.SetDefault("soa_threshold", d.SoaThreshold)
	v.SetDefault("max_token_bytes", d.MaxTokenBytes)
	v.SetDefault("max_caveats", d.MaxCaveats)
	v.SetDefault("bundles_dir", d.BundlesDir)
	v.SetDefault("storage_dir", d.StorageDir)
	v.SetDefault("app_upstream", d.AppUpstream)
	v.SetDefault("enforce_payments", d.EnforcePayments)

	v.SetDefault("dht.alpha", d.Dht.Alpha)
	v.SetDefault("dht.beta", d.Dht.Beta)
	v.SetDefault("dht.k", d.Dht.K)
	v.SetDefault("dht.hop_budget", d.Dht.HopBudget)

	v.SetDefault("admission.max_body_bytes", d.Admission.MaxBodyBytes)
	v.SetDefault("admission.concurrency_cap", d.Admission.ConcurrencyCap)
	v.SetDefault("admission.quota_per_second", d.Admission.QuotaPerSecond)
	v.SetDefault("admission.quota_burst", d.Admission.QuotaBurst)
	v.SetDefault("admission.yield_every_n", d.Admission.YieldEveryN)
	v.SetDefault("admission.batch", d.Admission.Batch)

	v.SetDefault("timeouts.request_timeout", d.Timeouts.RequestTimeout)
	v.SetDefault("timeouts.hop_deadline", d.Timeouts.HopDeadline)
}
