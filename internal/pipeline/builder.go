package pipeline

import (
	"github.com/google/gopacket/layers"

	"firestige.xyz/trafficguard/internal/enforce"
	"firestige.xyz/trafficguard/internal/matcher"
	"firestige.xyz/trafficguard/internal/ratelimit"
	"firestige.xyz/trafficguard/internal/reporter"
)

// Builder holds the components shared by every interface and stamps out
// one Pipeline per interface.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithAppPort sets the designated application port.
func (b *Builder) WithAppPort(port uint16) *Builder {
	b.config.AppPort = port
	return b
}

// WithLimiter sets the shared rate limiter.
func (b *Builder) WithLimiter(l *ratelimit.Limiter) *Builder {
	b.config.Limiter = l
	return b
}

// WithRules sets the rule snapshot source.
func (b *Builder) WithRules(r RuleSource) *Builder {
	b.config.Rules = r
	return b
}

// WithMatcher sets the matcher.
func (b *Builder) WithMatcher(m *matcher.Matcher) *Builder {
	b.config.Matcher = m
	return b
}

// WithExecutor sets the enforcement executor.
func (b *Builder) WithExecutor(e *enforce.Executor) *Builder {
	b.config.Executor = e
	return b
}

// WithReporters sets the reporter chain.
func (b *Builder) WithReporters(reporters ...reporter.Reporter) *Builder {
	b.config.Reporters = reporters
	return b
}

// Build creates the pipeline for one interface.
func (b *Builder) Build(iface string, link layers.LinkType) *Pipeline {
	cfg := b.config
	cfg.Interface = iface
	cfg.LinkType = link
	return New(cfg)
}
