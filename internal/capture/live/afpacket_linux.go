//go:build linux

package live

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/trafficguard/internal/capture"
	"firestige.xyz/trafficguard/internal/core"
)

// AFPacketSource reads one interface through a TPACKET_V3 ring.
// The ring is unmapped on Close, so Close must only be called by the goroutine
// that reads, after its last ReadPacketData returns.
type AFPacketSource struct {
	iface  string
	handle *afpacket.TPacket
}

// OpenAFPacket opens iface with a ring sized from opts.BufferSizeMB.
func OpenAFPacket(iface string, opts capture.Options) (capture.Source, error) {
	bufMB := opts.BufferSizeMB
	if bufMB <= 0 {
		bufMB = 8
	}
	frameSize, blockSize, numBlocks, err := ringSize(bufMB, opts.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrInterfaceOpen, iface, err)
	}
	poll := opts.Timeout
	if poll <= 0 {
		poll = defaultPollTimeout
	}

	handle, err := afpacket.NewTPacket(
		afpacket.OptInterface(iface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(poll),
		afpacket.OptTPacketVersion(afpacket.TPacketVersion3),
		afpacket.SocketRaw,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrInterfaceOpen, iface, err)
	}

	if opts.BPFFilter != "" {
		insns, err := CompileBPF(opts.BPFFilter, opts.SnapLen)
		if err != nil {
			handle.Close()
			return nil, fmt.Errorf("%w: %s: %v", core.ErrInterfaceOpen, iface, err)
		}
		if err := handle.SetBPF(insns); err != nil {
			handle.Close()
			return nil, fmt.Errorf("%w: %s: set BPF: %v", core.ErrInterfaceOpen, iface, err)
		}
	}
	if err := handle.InitSocketStats(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("%w: %s: socket stats: %v", core.ErrInterfaceOpen, iface, err)
	}
	return &AFPacketSource{iface: iface, handle: handle}, nil
}

func (s *AFPacketSource) Interface() string { return s.iface }

// LinkType is always Ethernet: the socket is opened SOCK_RAW.
func (s *AFPacketSource) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (s *AFPacketSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.handle.ZeroCopyReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) || errors.Is(err, afpacket.ErrPoll) {
		return nil, ci, capture.ErrTimeout
	}
	return data, ci, err
}

func (s *AFPacketSource) Stats() (capture.Stats, error) {
	st, _, err := s.handle.SocketStats()
	if err != nil {
		return capture.Stats{}, err
	}
	return capture.Stats{Received: uint64(st.Packets()), Dropped: uint64(st.Drops())}, nil
}

func (s *AFPacketSource) Close() error {
	s.handle.Close()
	return nil
}
