package pipeline

import (
	"sync/atomic"
)

// Metrics contains per-pipeline counters.
type Metrics struct {
	Interface string

	Received      atomic.Uint64
	Skipped       atomic.Uint64
	RateLimited   atomic.Uint64
	Allowed       atomic.Uint64
	Blocked       atomic.Uint64 // includes rate-limited packets
	EnforceErrors atomic.Uint64
	ReportErrors  atomic.Uint64
	Panics        atomic.Uint64
}

// NewMetrics creates a new metrics instance.
func NewMetrics(iface string) *Metrics {
	return &Metrics{Interface: iface}
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		Interface:     m.Interface,
		Received:      m.Received.Load(),
		Skipped:       m.Skipped.Load(),
		RateLimited:   m.RateLimited.Load(),
		Allowed:       m.Allowed.Load(),
		Blocked:       m.Blocked.Load(),
		EnforceErrors: m.EnforceErrors.Load(),
		ReportErrors:  m.ReportErrors.Load(),
		Panics:        m.Panics.Load(),
	}
}

// Stats represents pipeline statistics.
type Stats struct {
	Interface     string
	Received      uint64
	Skipped       uint64
	RateLimited   uint64
	Allowed       uint64
	Blocked       uint64
	EnforceErrors uint64
	ReportErrors  uint64
	Panics        uint64
}
