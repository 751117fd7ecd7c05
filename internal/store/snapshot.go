package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"firestige.xyz/trafficguard/internal/clock"
	"firestige.xyz/trafficguard/internal/core"
	"firestige.xyz/trafficguard/internal/log"
)

// Snapshot is an immutable view of the rule list. Callers must not modify Rules.
type Snapshot struct {
	Rules      []core.Rule
	LoadedAt   time.Time
	Generation uint64
	Err        error // load error that produced this snapshot, if any
}

// SnapshotOptions configures refresh behaviour.
type SnapshotOptions struct {
	// PerPacket reloads the store on every Current call.
	PerPacket bool
	// Interval is the periodic reload cadence; zero disables the ticker.
	Interval time.Duration
	// WatchPath enables fsnotify-triggered reloads for the given file.
	WatchPath string
	Clock     clock.Clock
	// OnReload is called after each reload, e.g. for metrics.
	OnReload func(s *Snapshot)
}

// Snapshotter serves the current rule snapshot to concurrent readers.
// Readers never block on a reload; a reload swaps the pointer atomically.
type Snapshotter struct {
	store   RuleStore
	opts    SnapshotOptions
	clock   clock.Clock
	current atomic.Pointer[Snapshot]
	gen     atomic.Uint64
	warned  sync.Map // rule text -> struct{}, invalid rules already reported
}

// NewSnapshotter creates a Snapshotter over store. No load happens until Current or Run.
func NewSnapshotter(store RuleStore, opts SnapshotOptions) *Snapshotter {
	return &Snapshotter{
		store: store,
		opts:  opts,
		clock: clock.OrReal(opts.Clock),
	}
}

// Current returns the rule snapshot to evaluate a packet against.
func (s *Snapshotter) Current() *Snapshot {
	if s.opts.PerPacket {
		return s.Reload()
	}
	if snap := s.current.Load(); snap != nil {
		return snap
	}
	return s.Reload()
}

// Reload reads the store and publishes a new snapshot.
// An unreadable store publishes an empty snapshot so traffic is allowed by default.
func (s *Snapshotter) Reload() *Snapshot {
	rules, err := s.store.Load()
	if err != nil {
		fields := map[string]interface{}{"generation": s.gen.Load() + 1}
		if errors.Is(err, core.ErrStoreFormat) {
			log.GetLogger().WithFields(fields).WithError(err).Warn("rule store malformed, evaluating with no rules")
		} else {
			log.GetLogger().WithFields(fields).WithError(err).Warn("rule store unreadable, evaluating with no rules")
		}
		rules = nil
	}
	if rules == nil {
		rules = []core.Rule{}
	}
	s.warnInvalid(rules)

	snap := &Snapshot{
		Rules:      rules,
		LoadedAt:   s.clock.Now(),
		Generation: s.gen.Add(1),
		Err:        err,
	}
	s.current.Store(snap)
	if s.opts.OnReload != nil {
		s.opts.OnReload(snap)
	}
	return snap
}

// warnInvalid reports rules that would be rejected by Validate, once per rule text.
// They stay in the snapshot: positions are identities and must not shift.
func (s *Snapshotter) warnInvalid(rules []core.Rule) {
	for i := range rules {
		err := rules[i].Validate()
		if err == nil {
			continue
		}
		key := rules[i].String()
		if _, loaded := s.warned.LoadOrStore(key, struct{}{}); loaded {
			continue
		}
		log.GetLogger().WithFields(map[string]interface{}{
			"rule_index": i,
			"rule":       key,
		}).WithError(err).Warn("invalid rule in store")
	}
}

// Run refreshes the snapshot until ctx is cancelled. In per-packet mode it only waits.
func (s *Snapshotter) Run(ctx context.Context) error {
	if s.opts.PerPacket {
		<-ctx.Done()
		return nil
	}

	s.Reload()

	var tick <-chan time.Time
	if s.opts.Interval > 0 {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	target := ""
	if s.opts.WatchPath != "" {
		target = filepath.Clean(s.opts.WatchPath)
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			log.GetLogger().WithError(err).Warn("rule watcher unavailable, falling back to interval reloads")
		} else {
			defer watcher.Close()
			// Watch the directory: editors and the store replace the file by rename.
			if err := watcher.Add(filepath.Dir(target)); err != nil {
				log.GetLogger().WithError(err).Warnf("cannot watch %s", filepath.Dir(target))
			} else {
				events, errs = watcher.Events, watcher.Errors
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			s.Reload()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				log.GetLogger().WithField("op", ev.Op.String()).Debug("rule file changed, reloading")
				s.Reload()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.GetLogger().WithError(err).Warn("rule watcher error")
		}
	}
}
