// Package daemon implements the trafficguard process lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/trafficguard/internal/capture"
	"firestige.xyz/trafficguard/internal/config"
	"firestige.xyz/trafficguard/internal/core"
	"firestige.xyz/trafficguard/internal/enforce"
	"firestige.xyz/trafficguard/internal/log"
	"firestige.xyz/trafficguard/internal/matcher"
	"firestige.xyz/trafficguard/internal/metrics"
	"firestige.xyz/trafficguard/internal/pipeline"
	"firestige.xyz/trafficguard/internal/ratelimit"
	"firestige.xyz/trafficguard/internal/reporter"
	"firestige.xyz/trafficguard/internal/store"
	"firestige.xyz/trafficguard/internal/supervisor"
)

// Option customises a Daemon.
type Option func(*Daemon)

// WithOpener sets how capture sources are opened.
func WithOpener(o capture.Opener) Option {
	return func(d *Daemon) { d.opener = o }
}

// WithInterfaces fixes the interface list instead of enumerating devices.
func WithInterfaces(ifaces ...string) Option {
	return func(d *Daemon) { d.interfaces = ifaces }
}

// WithCommandRunner sets the runner used by the iptables backend.
func WithCommandRunner(r enforce.CommandRunner) Option {
	return func(d *Daemon) { d.runner = r }
}

// WithReporters replaces the reporters built from configuration.
func WithReporters(rs ...reporter.Reporter) Option {
	return func(d *Daemon) { d.reporters = rs; d.reportersSet = true }
}

// WithExitWhenCaptureEnds makes Run return once every capture loop has ended,
// as replaying a capture file does at EOF.
func WithExitWhenCaptureEnds() Option {
	return func(d *Daemon) { d.exitWhenDone = true }
}

// Daemon wires the rule store, limiter, matcher, enforcement and capture
// supervisor together and owns their lifetime.
type Daemon struct {
	config     *config.GlobalConfig
	configPath string

	opener       capture.Opener
	interfaces   []string
	runner       enforce.CommandRunner
	reporters    []reporter.Reporter
	reportersSet bool
	exitWhenDone bool

	store         *store.FileRuleStore
	snapshotter   *store.Snapshotter
	limiter       *ratelimit.Limiter
	supervisor    *supervisor.Supervisor
	metricsServer *metrics.Server // nil if metrics disabled

	stopOnce sync.Once
}

// New loads configuration and creates a Daemon. An empty configPath runs on
// defaults and environment overrides.
func New(configPath string, opts ...Option) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(cfg, configPath, opts...), nil
}

// NewWithConfig creates a Daemon from an already loaded configuration.
func NewWithConfig(cfg *config.GlobalConfig, configPath string, opts ...Option) *Daemon {
	d := &Daemon{config: cfg, configPath: configPath}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.GlobalConfig { return d.config }

// Supervisor returns the capture supervisor, nil before Start.
func (d *Daemon) Supervisor() *supervisor.Supervisor { return d.supervisor }

// Start initializes every component. Nothing captures until Run.
func (d *Daemon) Start(ctx context.Context) error {
	// 1. Logging
	if err := log.Init(d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger := log.GetLogger()
	logger.WithFields(map[string]interface{}{
		"config":  d.configPath,
		"rules":   d.config.Rules.Path,
		"backend": d.config.Enforce.Backend,
	}).Info("starting trafficguard")

	// 2. PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Metrics server
	if err := d.startMetrics(ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Rule store and snapshot
	d.store = store.NewFileRuleStore(d.config.Rules.Path)
	snapOpts := store.SnapshotOptions{
		PerPacket: d.config.Rules.ReloadMode == config.ReloadPerPacket,
		Interval:  d.config.Rules.ReloadInterval,
		OnReload:  observeReload,
	}
	if d.config.Rules.Watch {
		snapOpts.WatchPath = d.config.Rules.Path
	}
	d.snapshotter = store.NewSnapshotter(d.store, snapOpts)
	if snap := d.snapshotter.Reload(); snap.Err == nil {
		logger.WithField("rules", len(snap.Rules)).Info("rules loaded")
	}

	// 5. Shared classification state
	if d.config.RateLimit.Enabled {
		d.limiter = ratelimit.NewLimiter(ratelimit.Config{
			MaxPackets: d.config.RateLimit.MaxPackets,
			Window:     d.config.RateLimit.Window,
			IdleTTL:    d.config.RateLimit.IdleTTL,
		})
	}
	backend, err := enforce.NewBackend(d.config.Enforce, d.runner)
	if err != nil {
		return fmt.Errorf("failed to create enforcement backend: %w", err)
	}
	appPort := uint16(d.config.Extract.AppPort)

	// 6. Reporters
	if !d.reportersSet {
		if err := d.buildReporters(); err != nil {
			return err
		}
	}

	builder := pipeline.NewBuilder().
		WithAppPort(appPort).
		WithLimiter(d.limiter).
		WithRules(d.snapshotter).
		WithMatcher(matcher.New(matcher.Options{EnforceSizeBounds: d.config.Matcher.EnforceSizeBounds})).
		WithExecutor(enforce.NewExecutor(backend, appPort)).
		WithReporters(d.reporters...)

	// 7. Capture supervisor
	d.supervisor = supervisor.New(supervisor.Config{
		Interfaces: d.interfaces,
		Opener:     d.opener,
		Options:    capture.OptionsFrom(d.config.Capture),
		Builder:    builder,
	})

	logger.WithFields(map[string]interface{}{
		"interfaces":  d.interfaces,
		"app_port":    appPort,
		"rate_limit":  d.config.RateLimit.Enabled,
		"reload_mode": d.config.Rules.ReloadMode,
	}).Info("daemon started successfully")
	return nil
}

// Run captures until ctx is cancelled, then stops every component.
// SIGHUP forces a rule reload. When every capture loop has ended on its own
// the daemon keeps serving metrics until ctx is cancelled, unless
// WithExitWhenCaptureEnds was given.
func (d *Daemon) Run(ctx context.Context) error {
	if d.supervisor == nil {
		return errors.New("daemon not started")
	}
	defer d.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.snapshotter.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.GetLogger().WithError(err).Warn("rule snapshot refresh stopped")
		}
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	supDone := make(chan error, 1)
	go func() { supDone <- d.supervisor.Run(runCtx) }()

	log.GetLogger().Info("daemon running, waiting for signals")
	var runErr error
loop:
	for {
		select {
		case <-hup:
			snap := d.snapshotter.Reload()
			log.GetLogger().WithField("rules", len(snap.Rules)).Info("rules reloaded on signal")
		case err := <-supDone:
			supDone = nil
			if err != nil {
				runErr = err
				break loop
			}
			if d.exitWhenDone {
				log.GetLogger().Info("all capture loops ended")
				break loop
			}
			log.GetLogger().Warn("all capture loops ended")
		case <-ctx.Done():
			log.GetLogger().WithError(ctx.Err()).Info("received shutdown signal")
			break loop
		}
	}

	cancel()
	if supDone != nil {
		<-supDone
	}
	wg.Wait()
	return runErr
}

// Stop releases every component. Safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		logger := log.GetLogger()
		logger.Info("initiating graceful shutdown")

		for _, r := range d.reporters {
			if err := r.Close(); err != nil {
				logger.WithField("reporter", r.Name()).WithError(err).Error("error closing reporter")
			}
		}

		if d.metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := d.metricsServer.Stop(shutdownCtx); err != nil {
				logger.WithError(err).Error("error stopping metrics server")
			}
		}

		if err := d.removePIDFile(); err != nil {
			logger.WithError(err).Error("error removing PID file")
		}

		logger.Info("daemon stopped gracefully")
		log.Flush()
	})
}

func (d *Daemon) buildReporters() error {
	if cc := d.config.Reporter.Console; cc.Enabled {
		cr, err := reporter.NewConsoleReporter(cc.Format)
		if err != nil {
			return fmt.Errorf("failed to create console reporter: %w", err)
		}
		d.reporters = append(d.reporters, cr)
	}
	if kc := d.config.Reporter.Kafka; kc.Enabled {
		kr, err := reporter.NewKafkaReporter(kc)
		if err != nil {
			return fmt.Errorf("failed to create kafka reporter: %w", err)
		}
		d.reporters = append(d.reporters, kr)
	}
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics(ctx context.Context) error {
	if !d.config.Metrics.Enabled {
		log.GetLogger().Info("metrics server disabled")
		return nil
	}
	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(ctx); err != nil {
		d.metricsServer = nil
		return err
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"addr": d.metricsServer.Addr().String(),
		"path": d.config.Metrics.Path,
	}).Info("metrics server started")
	return nil
}

// MetricsAddr returns the bound metrics address, "" if metrics are disabled.
func (d *Daemon) MetricsAddr() string {
	if d.metricsServer == nil {
		return ""
	}
	return d.metricsServer.Addr().String()
}

func observeReload(s *store.Snapshot) {
	metrics.RulesLoaded.Set(float64(len(s.Rules)))
	outcome := "ok"
	switch {
	case s.Err == nil:
	case errors.Is(s.Err, core.ErrStoreFormat):
		outcome = "format_error"
	default:
		outcome = "io_error"
	}
	metrics.RuleReloadsTotal.WithLabelValues(outcome).Inc()
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.config.PIDFile == "" {
		return nil
	}
	pid := os.Getpid()
	if err := os.WriteFile(d.config.PIDFile, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.config.PIDFile, err)
	}
	log.GetLogger().WithFields(map[string]interface{}{"path": d.config.PIDFile, "pid": pid}).Debug("PID file written")
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.config.PIDFile == "" {
		return nil
	}
	if err := os.Remove(d.config.PIDFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.config.PIDFile, err)
	}
	return nil
}
