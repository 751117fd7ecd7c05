// Package pipeline implements the per-packet classification chain.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/trafficguard/internal/core"
	"firestige.xyz/trafficguard/internal/enforce"
	"firestige.xyz/trafficguard/internal/extract"
	"firestige.xyz/trafficguard/internal/log"
	"firestige.xyz/trafficguard/internal/matcher"
	"firestige.xyz/trafficguard/internal/metrics"
	"firestige.xyz/trafficguard/internal/ratelimit"
	"firestige.xyz/trafficguard/internal/reporter"
	"firestige.xyz/trafficguard/internal/store"
)

// RuleSource serves the rule snapshot to classify against.
type RuleSource interface {
	Current() *store.Snapshot
}

// Pipeline processes the packets of one interface in arrival order.
// It is not safe for concurrent use; the limiter, rules, matcher and
// executor it references are shared and are.
type Pipeline struct {
	iface     string
	extractor *extract.Extractor
	limiter   *ratelimit.Limiter
	rules     RuleSource
	matcher   *matcher.Matcher
	executor  *enforce.Executor
	reporters []reporter.Reporter
	metrics   *Metrics
}

// Config contains pipeline configuration.
type Config struct {
	Interface string
	LinkType  layers.LinkType
	AppPort   uint16
	Limiter   *ratelimit.Limiter // nil disables rate limiting
	Rules     RuleSource
	Matcher   *matcher.Matcher
	Executor  *enforce.Executor // nil skips enforcement
	Reporters []reporter.Reporter
}

// Result is the outcome of one packet.
type Result struct {
	Metadata    core.PacketMetadata
	Decision    core.Decision
	Enforcement []core.EnforcementResult
	Skipped     bool // no network layer, nothing classified
	Panicked    bool
}

// New creates a new pipeline.
func New(cfg Config) *Pipeline {
	m := cfg.Matcher
	if m == nil {
		m = matcher.New(matcher.Options{})
	}
	return &Pipeline{
		iface:     cfg.Interface,
		extractor: extract.NewExtractor(cfg.Interface, cfg.LinkType, cfg.AppPort),
		limiter:   cfg.Limiter,
		rules:     cfg.Rules,
		matcher:   m,
		executor:  cfg.Executor,
		reporters: cfg.Reporters,
		metrics:   NewMetrics(cfg.Interface),
	}
}

// Interface returns the interface this pipeline serves.
func (p *Pipeline) Interface() string { return p.iface }

// Process runs one frame through extraction, rate limiting, matching and
// enforcement. It never panics; a panic inside the chain is recovered,
// counted and reported in the result.
func (p *Pipeline) Process(ctx context.Context, data []byte, ci gopacket.CaptureInfo) (res Result) {
	start := time.Now()
	p.metrics.Received.Add(1)

	defer func() {
		if r := recover(); r != nil {
			p.metrics.Panics.Add(1)
			metrics.ProcessingPanicsTotal.WithLabelValues(p.iface).Inc()
			log.GetLogger().WithFields(map[string]interface{}{
				"iface": p.iface,
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("packet processing panicked")
			res = Result{Panicked: true, Decision: core.AllowDecision()}
		}
		metrics.ProcessingLatencySeconds.WithLabelValues(p.iface).Observe(time.Since(start).Seconds())
	}()

	md, err := p.extractor.Extract(data, ci)
	if err != nil {
		p.metrics.Skipped.Add(1)
		metrics.ExtractSkippedTotal.WithLabelValues(p.iface).Inc()
		if !errors.Is(err, core.ErrNoNetworkLayer) {
			log.GetLogger().WithField("iface", p.iface).WithError(err).Debug("extract failed")
		}
		return Result{Skipped: true, Decision: core.AllowDecision()}
	}
	res.Metadata = md

	if p.limiter != nil {
		limited := p.limiter.IsRateLimited(md.SrcIP.String())
		metrics.RateLimiterKeys.Set(float64(p.limiter.Len()))
		if limited {
			p.metrics.RateLimited.Add(1)
			metrics.RateLimitedTotal.WithLabelValues(p.iface).Inc()
			res.Decision = core.Decision{Action: core.ActionBlock, Condition: core.ConditionRateLimited, Index: -1}
			p.record(ctx, &res)
			return res
		}
	}

	var rules []core.Rule
	if p.rules != nil {
		if snap := p.rules.Current(); snap != nil {
			rules = snap.Rules
		}
	}
	res.Decision = p.matcher.Classify(&md, rules)

	if res.Decision.Action == core.ActionBlock && p.executor != nil {
		res.Enforcement = p.executor.Enforce(ctx, &md, res.Decision)
		for _, r := range res.Enforcement {
			outcome := "ok"
			if r.Err != nil {
				outcome = "error"
				p.metrics.EnforceErrors.Add(1)
			}
			metrics.EnforcementsTotal.WithLabelValues(string(r.Kind), outcome).Inc()
		}
	}
	p.record(ctx, &res)
	return res
}

// record writes the decision log line, updates counters and publishes blocks.
func (p *Pipeline) record(ctx context.Context, res *Result) {
	d := res.Decision
	entry := log.GetLogger().WithFields(d.LogFields(&res.Metadata))

	metrics.PacketsTotal.WithLabelValues(p.iface, string(d.Action)).Inc()
	if d.Action != core.ActionBlock {
		p.metrics.Allowed.Add(1)
		entry.Info("allowed")
		return
	}
	p.metrics.Blocked.Add(1)
	if d.Condition == core.ConditionRateLimited {
		entry.Warn("rate limited")
	} else {
		entry.Warn("blocked")
	}

	if len(p.reporters) == 0 {
		return
	}
	ev := reporter.NewEvent(&res.Metadata, d, res.Enforcement)
	for _, r := range p.reporters {
		if err := r.Report(ctx, ev); err != nil {
			p.metrics.ReportErrors.Add(1)
			log.GetLogger().WithField("reporter", r.Name()).WithError(err).Debug("report failed")
		}
	}
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return p.metrics.Snapshot()
}
