// Package supervisor runs one capture loop per interface.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"firestige.xyz/trafficguard/internal/capture"
	"firestige.xyz/trafficguard/internal/core"
	"firestige.xyz/trafficguard/internal/log"
	"firestige.xyz/trafficguard/internal/metrics"
	"firestige.xyz/trafficguard/internal/pipeline"
)

const defaultStatsInterval = 10 * time.Second

// Config configures a Supervisor.
type Config struct {
	Interfaces []string
	Opener     capture.Opener
	Options    capture.Options
	Builder    *pipeline.Builder
	// StatsInterval is how often each loop polls its source for kernel drops.
	StatsInterval time.Duration
}

// Supervisor owns the capture loops. Loops share the components held by the
// pipeline builder and are otherwise independent: a loop that fails to open or
// read ends alone.
type Supervisor struct {
	cfg Config

	mu        sync.Mutex
	pipelines map[string]*pipeline.Pipeline
}

// New creates a Supervisor.
func New(cfg Config) *Supervisor {
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = defaultStatsInterval
	}
	if cfg.Builder == nil {
		cfg.Builder = pipeline.NewBuilder()
	}
	return &Supervisor{cfg: cfg, pipelines: make(map[string]*pipeline.Pipeline)}
}

// Run starts every loop and blocks until all of them have ended. Live loops end
// when ctx is cancelled or their source fails; replay loops also end at EOF.
// It returns an error only when there is nothing to capture on.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.cfg.Interfaces) == 0 {
		return fmt.Errorf("%w: no interfaces selected", core.ErrInterfaceOpen)
	}
	if s.cfg.Opener == nil {
		return fmt.Errorf("%w: no capture opener", core.ErrConfigInvalid)
	}

	var wg sync.WaitGroup
	for _, iface := range s.cfg.Interfaces {
		wg.Add(1)
		go func(iface string) {
			defer wg.Done()
			if err := s.runLoop(ctx, iface); err != nil {
				log.GetLogger().WithField("iface", iface).WithError(err).Error("capture loop ended")
			}
		}(iface)
	}

	log.GetLogger().WithField("interfaces", s.cfg.Interfaces).Info("capture supervisor started")
	wg.Wait()
	log.GetLogger().Info("capture supervisor stopped")
	return nil
}

// Stats returns per-interface pipeline statistics, sorted by interface.
func (s *Supervisor) Stats() []pipeline.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pipeline.Stats, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		out = append(out, p.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Interface < out[j].Interface })
	return out
}

func (s *Supervisor) runLoop(ctx context.Context, iface string) error {
	src, err := s.cfg.Opener(iface, s.cfg.Options)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrInterfaceOpen, iface, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.GetLogger().WithField("iface", iface).WithError(err).Warn("close capture source")
		}
	}()

	p := s.cfg.Builder.Build(iface, src.LinkType())
	s.mu.Lock()
	s.pipelines[iface] = p
	s.mu.Unlock()

	metrics.CaptureLoopsActive.Inc()
	defer metrics.CaptureLoopsActive.Dec()

	logger := log.GetLogger().WithFields(map[string]interface{}{
		"iface":     iface,
		"link_type": src.LinkType().String(),
	})
	logger.Info("capture loop started")

	drops := dropTracker{iface: iface}
	lastStats := time.Now()
	for {
		if ctx.Err() != nil {
			drops.poll(src)
			logger.Info("capture loop stopped")
			return nil
		}
		if time.Since(lastStats) >= s.cfg.StatsInterval {
			drops.poll(src)
			lastStats = time.Now()
		}

		data, ci, err := src.ReadPacketData()
		switch {
		case err == nil:
		case errors.Is(err, capture.ErrTimeout):
			continue
		case errors.Is(err, io.EOF):
			st := p.Stats()
			logger.WithFields(map[string]interface{}{
				"received": st.Received,
				"blocked":  st.Blocked,
			}).Info("capture source exhausted")
			return nil
		default:
			return fmt.Errorf("read packet: %w", err)
		}

		p.Process(ctx, data, ci)
	}
}

// dropTracker feeds the delta of a source's cumulative drop counter to metrics.
type dropTracker struct {
	iface string
	last  uint64
}

func (d *dropTracker) poll(src capture.Source) {
	st, err := src.Stats()
	if err != nil {
		return
	}
	if st.Dropped > d.last {
		metrics.CaptureDropsTotal.WithLabelValues(d.iface).Add(float64(st.Dropped - d.last))
	}
	d.last = st.Dropped
}
