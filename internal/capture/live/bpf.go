package live

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// CompileBPF compiles a tcpdump-style filter for Ethernet frames into raw
// instructions an AF_PACKET socket accepts.
func CompileBPF(filter string, snapLen int) ([]bpf.RawInstruction, error) {
	pcapBpf, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to compile BPF filter %q: %w", filter, err)
	}

	// pcap.BPFInstruction and bpf.RawInstruction share one layout: Code->Op, Jt, Jf, K.
	raw := make([]bpf.RawInstruction, len(pcapBpf))
	for i, ins := range pcapBpf {
		raw[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return raw, nil
}
