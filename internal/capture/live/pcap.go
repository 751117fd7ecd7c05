// Package live opens capture sources on host interfaces through libpcap or AF_PACKET.
package live

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/trafficguard/internal/capture"
	"firestige.xyz/trafficguard/internal/core"
)

// defaultPollTimeout bounds each blocking read so a capture loop on an idle
// interface still notices cancellation.
const defaultPollTimeout = 100 * time.Millisecond

// PcapSource reads one interface through libpcap.
type PcapSource struct {
	iface  string
	handle *pcap.Handle
}

// OpenPcap opens iface with an inactive handle so buffer and timeout are applied before activation.
func OpenPcap(iface string, opts capture.Options) (capture.Source, error) {
	inactive, err := pcap.NewInactiveHandle(iface)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrInterfaceOpen, iface, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(opts.SnapLen); err != nil {
		return nil, fmt.Errorf("%w: %s: snap_len: %v", core.ErrInterfaceOpen, iface, err)
	}
	if err := inactive.SetPromisc(opts.Promiscuous); err != nil {
		return nil, fmt.Errorf("%w: %s: promiscuous: %v", core.ErrInterfaceOpen, iface, err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	if err := inactive.SetTimeout(timeout); err != nil {
		return nil, fmt.Errorf("%w: %s: timeout: %v", core.ErrInterfaceOpen, iface, err)
	}
	if opts.BufferSizeMB > 0 {
		if err := inactive.SetBufferSize(opts.BufferSizeMB * 1024 * 1024); err != nil {
			return nil, fmt.Errorf("%w: %s: buffer: %v", core.ErrInterfaceOpen, iface, err)
		}
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrInterfaceOpen, iface, err)
	}
	if opts.BPFFilter != "" {
		if err := handle.SetBPFFilter(opts.BPFFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("%w: %s: bpf filter %q: %v", core.ErrInterfaceOpen, iface, opts.BPFFilter, err)
		}
	}
	return &PcapSource{iface: iface, handle: handle}, nil
}

func (s *PcapSource) Interface() string { return s.iface }

func (s *PcapSource) LinkType() layers.LinkType { return s.handle.LinkType() }

func (s *PcapSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.handle.ZeroCopyReadPacketData()
	if err == pcap.NextErrorTimeoutExpired {
		return nil, ci, capture.ErrTimeout
	}
	return data, ci, err
}

func (s *PcapSource) Stats() (capture.Stats, error) {
	st, err := s.handle.Stats()
	if err != nil {
		return capture.Stats{}, err
	}
	return capture.Stats{Received: uint64(st.PacketsReceived), Dropped: uint64(st.PacketsDropped + st.PacketsIfDropped)}, nil
}

func (s *PcapSource) Close() error {
	s.handle.Close()
	return nil
}
