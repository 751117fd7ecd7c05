// Package ratelimit implements the per-source sliding-window packet limiter.
package ratelimit

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/patrickmn/go-cache"

	"firestige.xyz/trafficguard/internal/clock"
)

// Config configures a Limiter.
type Config struct {
	MaxPackets int           // packets admitted per key inside Window
	Window     time.Duration // trailing window length
	IdleTTL    time.Duration // keys idle this long are evicted; below Window it becomes 2*Window
	Clock      clock.Clock
}

const lockShards = 64

// Limiter tracks recent packet timestamps per key (the source address).
// Keys are independent: table lookups serialize on the key's shard and the
// timestamp work on the key's window.
type Limiter struct {
	shards  [lockShards]sync.Mutex
	table   *cache.Cache
	limit   int
	window  time.Duration
	idleTTL time.Duration
	clock   clock.Clock
}

// window is the ordered list of admitted timestamps for one key.
type window struct {
	mu    sync.Mutex
	stamp []time.Time
}

// NewLimiter creates a limiter. Returns nil if disabled (MaxPackets <= 0);
// a nil *Limiter never limits.
func NewLimiter(cfg Config) *Limiter {
	if cfg.MaxPackets <= 0 {
		return nil
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	if cfg.IdleTTL < cfg.Window {
		cfg.IdleTTL = 2 * cfg.Window
	}
	return &Limiter{
		table:   cache.New(cfg.IdleTTL, cfg.IdleTTL),
		limit:   cfg.MaxPackets,
		window:  cfg.Window,
		idleTTL: cfg.IdleTTL,
		clock:   clock.OrReal(cfg.Clock),
	}
}

// IsRateLimited prunes the key's timestamps older than the window, then reports
// whether the key is at its limit. A packet that is not limited is recorded;
// a limited one is not.
func (l *Limiter) IsRateLimited(key string) bool {
	if l == nil {
		return false
	}
	w := l.acquire(key)

	w.mu.Lock()
	defer w.mu.Unlock()
	now := l.clock.Now()
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(w.stamp) && w.stamp[i].Before(cutoff) {
		i++
	}
	w.stamp = w.stamp[i:]
	if len(w.stamp) >= l.limit {
		return true
	}
	w.stamp = append(w.stamp, now)
	return false
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	return l.table.ItemCount()
}

// acquire returns the key's window, creating it when absent, and pushes its idle
// deadline forward. Lookup and refresh happen under the key's shard lock, so a
// caller never refreshes a window that another caller has already replaced.
// A returned window outlives the call by at least IdleTTL >= Window, so an
// evicted window holds no live timestamps.
func (l *Limiter) acquire(key string) *window {
	mu := &l.shards[xxhash.Sum64String(key)%lockShards]
	mu.Lock()
	defer mu.Unlock()

	w := &window{}
	if v, ok := l.table.Get(key); ok {
		w = v.(*window)
	}
	l.table.Set(key, w, l.idleTTL)
	return w
}
