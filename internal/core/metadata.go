// Package core defines core data structures with zero external dependencies.
package core

import (
	"net/netip"
	"strconv"
	"time"
)

// Protocol tags assigned by the extractor.
const (
	ProtoHTTP  = "HTTP"
	ProtoDNS   = "DNS"
	ProtoTCP   = "TCP"
	ProtoUDP   = "UDP"
	ProtoOther = "OTHER"
)

// Transport names as firewall tools spell them.
const (
	TransportTCP = "tcp"
	TransportUDP = "udp"
)

// HTTPInfo carries the best-effort request-line parse of an application-port flow.
type HTTPInfo struct {
	Method  string
	Path    string
	Headers map[string]string
	Raw     []byte
}

// PacketMetadata is the classification view of one captured packet.
// It lives for a single pipeline pass and is never persisted.
type PacketMetadata struct {
	Timestamp time.Time
	Interface string

	SrcIP     netip.Addr
	DstIP     netip.Addr
	SrcPort   uint16
	DstPort   uint16
	HasPorts  bool   // transport layer carried ports
	Transport string // "tcp", "udp" or "" below the protocol tag
	Protocol  string
	Size      int

	HTTP *HTTPInfo // nil unless the application-port parse succeeded
}

// SrcPortString returns the source port in rule encoding, or "" without a transport layer.
func (m *PacketMetadata) SrcPortString() string {
	if !m.HasPorts {
		return ""
	}
	return strconv.Itoa(int(m.SrcPort))
}

// DstPortString returns the destination port in rule encoding, or "" without a transport layer.
func (m *PacketMetadata) DstPortString() string {
	if !m.HasPorts {
		return ""
	}
	return strconv.Itoa(int(m.DstPort))
}

// Fields flattens the metadata for structured log lines and event payloads.
func (m *PacketMetadata) Fields() map[string]interface{} {
	f := map[string]interface{}{
		"iface":    m.Interface,
		"src_ip":   m.SrcIP.String(),
		"dst_ip":   m.DstIP.String(),
		"src_port": m.SrcPortString(),
		"dst_port": m.DstPortString(),
		"protocol": m.Protocol,
		"size":     m.Size,
	}
	if m.HTTP != nil {
		f["http_method"] = m.HTTP.Method
		f["http_path"] = m.HTTP.Path
	}
	return f
}

// EnforcementKind distinguishes the two firewall mutations.
type EnforcementKind string

const (
	EnforceSource EnforcementKind = "source"
	EnforcePort   EnforcementKind = "port"
)

// EnforcementResult reports one attempted firewall mutation.
type EnforcementResult struct {
	Kind   EnforcementKind
	Target string // address or port
	Err    error
}
