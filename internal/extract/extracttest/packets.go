// Package extracttest builds serialized frames for tests.
package extracttest

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Frame describes one Ethernet frame to build.
type Frame struct {
	SrcIP, DstIP     string
	SrcPort, DstPort uint16
	UDP              bool
	Payload          []byte
	DNS              *layers.DNS // overrides Payload for UDP frames
	ICMP             bool        // build an ICMPv4 echo instead of a transport segment
}

// Build serializes f. It panics on malformed input, which is a test bug.
func Build(f Frame) []byte {
	src, dst := net.ParseIP(f.SrcIP), net.ParseIP(f.DstIP)
	if src == nil || dst == nil {
		panic("extracttest: bad address")
	}
	v6 := src.To4() == nil

	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	var network gopacket.NetworkLayer
	var netLayer gopacket.SerializableLayer
	transportProto := layers.IPProtocolTCP
	if f.UDP {
		transportProto = layers.IPProtocolUDP
	}
	if f.ICMP {
		transportProto = layers.IPProtocolICMPv4
	}
	if v6 {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip6 := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: transportProto, SrcIP: src, DstIP: dst}
		network, netLayer = ip6, ip6
	} else {
		ip4 := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: transportProto, SrcIP: src.To4(), DstIP: dst.To4()}
		network, netLayer = ip4, ip4
	}

	stack := []gopacket.SerializableLayer{eth, netLayer}
	switch {
	case f.ICMP:
		stack = append(stack, &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1})
	case f.UDP:
		udp := &layers.UDP{SrcPort: layers.UDPPort(f.SrcPort), DstPort: layers.UDPPort(f.DstPort)}
		if err := udp.SetNetworkLayerForChecksum(network); err != nil {
			panic(err)
		}
		stack = append(stack, udp)
		if f.DNS != nil {
			stack = append(stack, f.DNS)
		}
	default:
		tcp := &layers.TCP{SrcPort: layers.TCPPort(f.SrcPort), DstPort: layers.TCPPort(f.DstPort), Seq: 1, ACK: true, PSH: true, Window: 1024}
		if err := tcp.SetNetworkLayerForChecksum(network); err != nil {
			panic(err)
		}
		stack = append(stack, tcp)
	}
	if f.DNS == nil && len(f.Payload) > 0 {
		stack = append(stack, gopacket.Payload(f.Payload))
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// CaptureInfo returns capture info for a frame as a capture source would report it.
func CaptureInfo(data []byte) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{CaptureLength: len(data), Length: len(data)}
}

// DNSQuery returns a minimal A query for name.
func DNSQuery(name string) *layers.DNS {
	return &layers.DNS{
		ID:      0x1234,
		RD:      true,
		QDCount: 1,
		Questions: []layers.DNSQuestion{{
			Name:  []byte(name),
			Type:  layers.DNSTypeA,
			Class: layers.DNSClassIN,
		}},
	}
}
