// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/trafficguard/internal/core"
	"firestige.xyz/trafficguard/internal/log"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `trafficguard:` root key in YAML.
type GlobalConfig struct {
	Rules     RulesConfig     `mapstructure:"rules"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Matcher   MatcherConfig   `mapstructure:"matcher"`
	Enforce   EnforceConfig   `mapstructure:"enforce"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Reporter  ReporterConfig  `mapstructure:"reporter"`
	Log       log.Config      `mapstructure:"log"`
	PIDFile   string          `mapstructure:"pid_file"`
}

// ─── Rules ───

const (
	ReloadInterval  = "interval"
	ReloadPerPacket = "per_packet"
)

// RulesConfig locates the rule file and sets the snapshot refresh cadence.
type RulesConfig struct {
	Path           string        `mapstructure:"path"`
	ReloadMode     string        `mapstructure:"reload_mode"` // interval | per_packet
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
	Watch          bool          `mapstructure:"watch"` // fsnotify-triggered reloads in interval mode
}

// ─── Rate limiting ───

// RateLimitConfig configures the per-source sliding window.
type RateLimitConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	MaxPackets int           `mapstructure:"max_packets"`
	Window     time.Duration `mapstructure:"window"`
	IdleTTL    time.Duration `mapstructure:"idle_ttl"` // evict sources idle this long; never below Window
}

// ─── Extraction / matching ───

// ExtractConfig configures metadata extraction.
type ExtractConfig struct {
	AppPort int `mapstructure:"app_port"` // designated application port for HTTP parsing
}

// MatcherConfig configures the rule matcher.
type MatcherConfig struct {
	EnforceSizeBounds bool `mapstructure:"enforce_size_bounds"`
}

// ─── Enforcement ───

const (
	BackendIptables = "iptables"
	BackendNftables = "nftables"
	BackendDryRun   = "dryrun"
)

// EnforceConfig selects and configures the firewall backend.
type EnforceConfig struct {
	Backend   string `mapstructure:"backend"`
	Chain     string `mapstructure:"chain"` // iptables chain
	Iptables  string `mapstructure:"iptables"`
	Ip6tables string `mapstructure:"ip6tables"`
	NFTable   string `mapstructure:"nft_table"`
	NFChain   string `mapstructure:"nft_chain"`
}

// ─── Capture ───

const (
	CapturePcap     = "pcap"
	CaptureAFPacket = "afpacket"
)

// CaptureConfig configures interface discovery and the capture sources.
type CaptureConfig struct {
	Type         string        `mapstructure:"type"`       // pcap | afpacket
	Interfaces   []string      `mapstructure:"interfaces"` // empty = every discovered interface
	Exclude      []string      `mapstructure:"exclude"`
	SnapLen      int           `mapstructure:"snap_len"`
	Promiscuous  bool          `mapstructure:"promiscuous"`
	Timeout      time.Duration `mapstructure:"timeout"`
	BPFFilter    string        `mapstructure:"bpf_filter"`
	BufferSizeMB int           `mapstructure:"buffer_size_mb"` // afpacket ring size
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Reporter ───

// ReporterConfig configures optional event sinks.
type ReporterConfig struct {
	Console ConsoleReporterConfig `mapstructure:"console"`
	Kafka   KafkaReporterConfig   `mapstructure:"kafka"`
}

// ConsoleReporterConfig echoes block events to stdout.
type ConsoleReporterConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Format  string `mapstructure:"format"` // text | json
}

// KafkaReporterConfig configures the block-event Kafka stream.
type KafkaReporterConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression"` // none | gzip | snappy | lz4 | zstd
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `trafficguard: ...`.
type configRoot struct {
	TrafficGuard GlobalConfig `mapstructure:"trafficguard"`
}

// Load loads configuration from file. An empty path yields defaults plus env overrides.
// The YAML file uses `trafficguard:` as root key; env vars use the TRAFFICGUARD_ prefix
// (e.g., TRAFFICGUARD_RATE_LIMIT_MAX_PACKETS).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `trafficguard.` key prefix maps to `TRAFFICGUARD_` through the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.TrafficGuard

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "trafficguard." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("trafficguard.pid_file", "")

	// Rules
	v.SetDefault("trafficguard.rules.path", "logs/rules.json")
	v.SetDefault("trafficguard.rules.reload_mode", ReloadInterval)
	v.SetDefault("trafficguard.rules.reload_interval", "2s")
	v.SetDefault("trafficguard.rules.watch", true)

	// Rate limit
	v.SetDefault("trafficguard.rate_limit.enabled", true)
	v.SetDefault("trafficguard.rate_limit.max_packets", 10)
	v.SetDefault("trafficguard.rate_limit.window", "10s")
	v.SetDefault("trafficguard.rate_limit.idle_ttl", "20s")

	// Extraction / matching
	v.SetDefault("trafficguard.extract.app_port", 4000)
	v.SetDefault("trafficguard.matcher.enforce_size_bounds", false)

	// Enforcement
	v.SetDefault("trafficguard.enforce.backend", BackendIptables)
	v.SetDefault("trafficguard.enforce.chain", "INPUT")
	v.SetDefault("trafficguard.enforce.iptables", "iptables")
	v.SetDefault("trafficguard.enforce.ip6tables", "ip6tables")
	v.SetDefault("trafficguard.enforce.nft_table", "trafficguard")
	v.SetDefault("trafficguard.enforce.nft_chain", "input")

	// Capture
	v.SetDefault("trafficguard.capture.type", CapturePcap)
	v.SetDefault("trafficguard.capture.interfaces", []string{})
	v.SetDefault("trafficguard.capture.exclude", []string{})
	v.SetDefault("trafficguard.capture.snap_len", 65535)
	v.SetDefault("trafficguard.capture.promiscuous", true)
	v.SetDefault("trafficguard.capture.timeout", "500ms")
	v.SetDefault("trafficguard.capture.bpf_filter", "")
	v.SetDefault("trafficguard.capture.buffer_size_mb", 8)

	// Metrics
	v.SetDefault("trafficguard.metrics.enabled", true)
	v.SetDefault("trafficguard.metrics.listen", ":9092")
	v.SetDefault("trafficguard.metrics.path", "/metrics")

	// Reporter
	v.SetDefault("trafficguard.reporter.console.enabled", false)
	v.SetDefault("trafficguard.reporter.console.format", "text")
	v.SetDefault("trafficguard.reporter.kafka.enabled", false)
	v.SetDefault("trafficguard.reporter.kafka.brokers", []string{})
	v.SetDefault("trafficguard.reporter.kafka.topic", "trafficguard-events")
	v.SetDefault("trafficguard.reporter.kafka.batch_size", 100)
	v.SetDefault("trafficguard.reporter.kafka.batch_timeout", "100ms")
	v.SetDefault("trafficguard.reporter.kafka.compression", "snappy")

	// Log
	v.SetDefault("trafficguard.log.level", "info")
	v.SetDefault("trafficguard.log.pattern", log.DefaultPattern)
	v.SetDefault("trafficguard.log.time", log.DefaultTime)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("%w: log level %s (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if len(cfg.Log.Appenders) == 0 {
		cfg.Log.Appenders = []log.AppenderConfig{{Type: "console"}}
	}

	// ── Rules ──
	if cfg.Rules.Path == "" {
		return fmt.Errorf("%w: rules.path is required", core.ErrConfigInvalid)
	}
	switch cfg.Rules.ReloadMode {
	case ReloadInterval:
		if cfg.Rules.ReloadInterval <= 0 {
			return fmt.Errorf("%w: rules.reload_interval must be positive", core.ErrConfigInvalid)
		}
	case ReloadPerPacket:
	default:
		return fmt.Errorf("%w: rules.reload_mode %s (must be %s/%s)", core.ErrConfigInvalid,
			cfg.Rules.ReloadMode, ReloadInterval, ReloadPerPacket)
	}

	// ── Rate limit ──
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.MaxPackets <= 0 {
			return fmt.Errorf("%w: rate_limit.max_packets must be positive", core.ErrConfigInvalid)
		}
		if cfg.RateLimit.Window <= 0 {
			return fmt.Errorf("%w: rate_limit.window must be positive", core.ErrConfigInvalid)
		}
		// Evicting a source before its window expires would forget live timestamps.
		if cfg.RateLimit.IdleTTL < cfg.RateLimit.Window {
			cfg.RateLimit.IdleTTL = 2 * cfg.RateLimit.Window
		}
	}

	// ── Extract ──
	if cfg.Extract.AppPort <= 0 || cfg.Extract.AppPort > 65535 {
		return fmt.Errorf("%w: extract.app_port %d out of range", core.ErrConfigInvalid, cfg.Extract.AppPort)
	}

	// ── Enforce ──
	switch cfg.Enforce.Backend {
	case BackendIptables:
		if cfg.Enforce.Chain == "" {
			return fmt.Errorf("%w: enforce.chain is required for iptables", core.ErrConfigInvalid)
		}
	case BackendNftables:
		if cfg.Enforce.NFTable == "" || cfg.Enforce.NFChain == "" {
			return fmt.Errorf("%w: enforce.nft_table and enforce.nft_chain are required for nftables", core.ErrConfigInvalid)
		}
	case BackendDryRun:
	default:
		return fmt.Errorf("%w: enforce.backend %s (must be %s/%s/%s)", core.ErrConfigInvalid,
			cfg.Enforce.Backend, BackendIptables, BackendNftables, BackendDryRun)
	}

	// ── Capture ──
	if cfg.Capture.Type != CapturePcap && cfg.Capture.Type != CaptureAFPacket {
		return fmt.Errorf("%w: capture.type %s (must be %s/%s)", core.ErrConfigInvalid,
			cfg.Capture.Type, CapturePcap, CaptureAFPacket)
	}
	if cfg.Capture.SnapLen <= 0 {
		return fmt.Errorf("%w: capture.snap_len must be positive", core.ErrConfigInvalid)
	}
	if cfg.Capture.Timeout <= 0 {
		return fmt.Errorf("%w: capture.timeout must be positive", core.ErrConfigInvalid)
	}

	// ── Reporter ──
	if c := cfg.Reporter.Console; c.Enabled && c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("%w: reporter.console.format %s (must be text/json)", core.ErrConfigInvalid, c.Format)
	}
	if k := cfg.Reporter.Kafka; k.Enabled {
		if len(k.Brokers) == 0 {
			return fmt.Errorf("%w: reporter.kafka.brokers is required when reporter.kafka.enabled=true", core.ErrConfigInvalid)
		}
		if k.Topic == "" {
			return fmt.Errorf("%w: reporter.kafka.topic is required when reporter.kafka.enabled=true", core.ErrConfigInvalid)
		}
	}

	return nil
}
