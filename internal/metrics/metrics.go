// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts classified packets by interface and decision action
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficguard_packets_total",
			Help: "Total number of packets classified",
		},
		[]string{"interface", "action"},
	)

	// RateLimitedTotal counts packets rejected by the per-source rate limiter
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficguard_rate_limited_total",
			Help: "Total number of packets rejected by the rate limiter",
		},
		[]string{"interface"},
	)

	// ExtractSkippedTotal counts frames skipped for lacking a network layer
	ExtractSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficguard_extract_skipped_total",
			Help: "Total number of frames skipped without a network layer",
		},
		[]string{"interface"},
	)

	// EnforcementsTotal counts firewall mutations by kind and outcome
	EnforcementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficguard_enforcements_total",
			Help: "Total number of firewall mutations attempted",
		},
		[]string{"kind", "outcome"},
	)

	// ProcessingPanicsTotal counts recovered per-packet panics
	ProcessingPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficguard_processing_panics_total",
			Help: "Total number of recovered panics while processing a packet",
		},
		[]string{"interface"},
	)

	// ProcessingLatencySeconds measures per-packet processing latency
	ProcessingLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trafficguard_processing_latency_seconds",
			Help:    "Latency of per-packet processing in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~1s
		},
		[]string{"interface"},
	)

	// RulesLoaded tracks the number of rules in the current snapshot
	RulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trafficguard_rules_loaded",
			Help: "Number of rules in the current snapshot",
		},
	)

	// RuleReloadsTotal counts snapshot reloads by outcome (ok, io_error, format_error)
	RuleReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficguard_rule_reloads_total",
			Help: "Total number of rule snapshot reloads",
		},
		[]string{"outcome"},
	)

	// RateLimiterKeys tracks the number of sources held by the rate limiter
	RateLimiterKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trafficguard_rate_limiter_keys",
			Help: "Number of sources tracked by the rate limiter",
		},
	)

	// CaptureLoopsActive tracks running capture loops
	CaptureLoopsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trafficguard_capture_loops_active",
			Help: "Number of running capture loops",
		},
	)

	// CaptureDropsTotal counts packets dropped by the kernel or libpcap
	CaptureDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficguard_capture_drops_total",
			Help: "Total number of packets dropped before capture",
		},
		[]string{"interface"},
	)

	// ReporterErrorsTotal counts event reporter errors by reporter
	ReporterErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficguard_reporter_errors_total",
			Help: "Total number of event reporter errors",
		},
		[]string{"reporter"},
	)
)
