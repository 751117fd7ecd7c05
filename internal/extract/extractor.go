// Package extract turns raw frames into core.PacketMetadata.
package extract

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/trafficguard/internal/core"
)

const dnsPort = 53

// Extractor decodes frames with a reusable gopacket.DecodingLayerParser.
// It is not safe for concurrent use; each capture loop owns one.
type Extractor struct {
	appPort   uint16
	iface     string
	linkFirst gopacket.LayerType

	parsers map[gopacket.LayerType]*gopacket.DecodingLayerParser

	eth      layers.Ethernet
	sll      layers.LinuxSLL
	loopback layers.Loopback
	dot1q    layers.Dot1Q
	ip4      layers.IPv4
	ip6      layers.IPv6
	tcp      layers.TCP
	udp      layers.UDP
	dns      layers.DNS
	payload  gopacket.Payload

	decoded []gopacket.LayerType
}

// NewExtractor creates an extractor for frames of the given link type captured on iface.
// appPort is the designated application port whose TCP payloads are probed for HTTP.
func NewExtractor(iface string, link layers.LinkType, appPort uint16) *Extractor {
	return &Extractor{
		appPort:   appPort,
		iface:     iface,
		linkFirst: FirstLayer(link),
		parsers:   make(map[gopacket.LayerType]*gopacket.DecodingLayerParser),
		decoded:   make([]gopacket.LayerType, 0, 8),
	}
}

// FirstLayer maps a capture link type to the layer the parser starts from.
// LayerTypeZero means "sniff IPv4/IPv6 from the version nibble".
func FirstLayer(link layers.LinkType) gopacket.LayerType {
	switch link {
	case layers.LinkTypeLinuxSLL:
		return layers.LayerTypeLinuxSLL
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		return layers.LayerTypeLoopback
	case layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6:
		return gopacket.LayerTypeZero
	default:
		return layers.LayerTypeEthernet
	}
}

func (e *Extractor) parser(first gopacket.LayerType) *gopacket.DecodingLayerParser {
	if p, ok := e.parsers[first]; ok {
		return p
	}
	p := gopacket.NewDecodingLayerParser(first,
		&e.eth, &e.sll, &e.loopback, &e.dot1q,
		&e.ip4, &e.ip6,
		&e.tcp, &e.udp, &e.dns,
		&e.payload,
	)
	p.IgnoreUnsupported = true
	e.parsers[first] = p
	return p
}

// Extract decodes data into packet metadata. Frames without an IPv4/IPv6 layer
// return core.ErrNoNetworkLayer. Errors past the network layer (e.g. a malformed
// DNS body) are ignored; the metadata decoded so far is returned.
func (e *Extractor) Extract(data []byte, ci gopacket.CaptureInfo) (core.PacketMetadata, error) {
	first := e.linkFirst
	if first == gopacket.LayerTypeZero {
		if len(data) == 0 {
			return core.PacketMetadata{}, core.ErrNoNetworkLayer
		}
		first = layers.LayerTypeIPv4
		if data[0]>>4 == 6 {
			first = layers.LayerTypeIPv6
		}
	}

	e.decoded = e.decoded[:0]
	decodeErr := e.parser(first).DecodeLayers(data, &e.decoded)

	md := core.PacketMetadata{
		Timestamp: ci.Timestamp,
		Interface: e.iface,
		Size:      ci.Length,
		Protocol:  core.ProtoOther,
	}
	if md.Size == 0 {
		md.Size = len(data)
	}

	var haveNet, haveTCP, haveUDP, haveDNS bool
	for _, lt := range e.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			md.SrcIP, md.DstIP = toAddr(e.ip4.SrcIP), toAddr(e.ip4.DstIP)
			haveNet = true
		case layers.LayerTypeIPv6:
			md.SrcIP, md.DstIP = toAddr(e.ip6.SrcIP), toAddr(e.ip6.DstIP)
			haveNet = true
		case layers.LayerTypeTCP:
			md.SrcPort, md.DstPort, md.HasPorts = uint16(e.tcp.SrcPort), uint16(e.tcp.DstPort), true
			haveTCP = true
		case layers.LayerTypeUDP:
			md.SrcPort, md.DstPort, md.HasPorts = uint16(e.udp.SrcPort), uint16(e.udp.DstPort), true
			haveUDP = true
		case layers.LayerTypeDNS:
			haveDNS = true
		}
	}
	if !haveNet {
		if decodeErr != nil {
			return core.PacketMetadata{}, fmt.Errorf("%w: %v", core.ErrNoNetworkLayer, decodeErr)
		}
		return core.PacketMetadata{}, core.ErrNoNetworkLayer
	}

	switch {
	case haveTCP:
		md.Protocol, md.Transport = core.ProtoTCP, core.TransportTCP
	case haveUDP:
		md.Protocol, md.Transport = core.ProtoUDP, core.TransportUDP
	}
	if haveDNS || ((haveTCP || haveUDP) && (md.SrcPort == dnsPort || md.DstPort == dnsPort)) {
		md.Protocol = core.ProtoDNS
	}
	if haveTCP && (md.SrcPort == e.appPort || md.DstPort == e.appPort) {
		if info, ok := parseHTTPRequest(e.tcp.Payload); ok {
			md.HTTP = info
			md.Protocol = core.ProtoHTTP
		}
	}
	return md, nil
}

func toAddr(ip net.IP) netip.Addr {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}
