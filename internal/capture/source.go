// Package capture defines per-interface packet sources.
// Live sources (pcap, AF_PACKET) live in capture/live; this package holds the
// contract, offline replay and interface selection.
package capture

import (
	"errors"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/trafficguard/internal/config"
)

// ErrTimeout is returned by ReadPacketData when no packet arrived within the
// source's read timeout. Callers treat it as "check for shutdown and retry".
var ErrTimeout = errors.New("capture: read timeout")

// Source delivers frames from one interface.
// A Source is owned by a single goroutine; Close must not race ReadPacketData.
type Source interface {
	Interface() string
	LinkType() layers.LinkType
	// ReadPacketData returns the next frame. data is only valid until the next call.
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
	Stats() (Stats, error)
	Close() error
}

// Stats reports capture counters where the source can provide them.
type Stats struct {
	Received uint64
	Dropped  uint64
}

// Options configures live sources.
type Options struct {
	SnapLen      int
	Promiscuous  bool
	Timeout      time.Duration
	BPFFilter    string
	BufferSizeMB int
}

// OptionsFrom maps the capture configuration onto source options.
func OptionsFrom(cfg config.CaptureConfig) Options {
	return Options{
		SnapLen:      cfg.SnapLen,
		Promiscuous:  cfg.Promiscuous,
		Timeout:      cfg.Timeout,
		BPFFilter:    cfg.BPFFilter,
		BufferSizeMB: cfg.BufferSizeMB,
	}
}

// Opener opens a Source on the named interface.
type Opener func(iface string, opts Options) (Source, error)
