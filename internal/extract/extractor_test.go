package extract

import (
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/trafficguard/internal/core"
	"firestige.xyz/trafficguard/internal/extract/extracttest"
)

const appPort = 4000

func extract(t *testing.T, f extracttest.Frame) core.PacketMetadata {
	t.Helper()
	data := extracttest.Build(f)
	ci := extracttest.CaptureInfo(data)
	ci.Timestamp = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	md, err := NewExtractor("eth0", layers.LinkTypeEthernet, appPort).Extract(data, ci)
	require.NoError(t, err)
	return md
}

func TestExtractTCP(t *testing.T) {
	f := extracttest.Frame{SrcIP: "10.0.0.5", DstIP: "10.0.0.1", SrcPort: 40000, DstPort: 22, Payload: []byte("ssh")}
	md := extract(t, f)

	assert.Equal(t, netip.MustParseAddr("10.0.0.5"), md.SrcIP)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), md.DstIP)
	assert.Equal(t, uint16(40000), md.SrcPort)
	assert.Equal(t, uint16(22), md.DstPort)
	assert.True(t, md.HasPorts)
	assert.Equal(t, core.ProtoTCP, md.Protocol)
	assert.Equal(t, "eth0", md.Interface)
	assert.Nil(t, md.HTTP)
	assert.Equal(t, len(extracttest.Build(f)), md.Size)
}

func TestExtractUDP(t *testing.T) {
	md := extract(t, extracttest.Frame{SrcIP: "10.0.0.5", DstIP: "10.0.0.1", SrcPort: 5000, DstPort: 5001, UDP: true, Payload: []byte{1, 2, 3}})
	assert.Equal(t, core.ProtoUDP, md.Protocol)
	assert.Equal(t, "5001", md.DstPortString())
}

func TestExtractDNS(t *testing.T) {
	md := extract(t, extracttest.Frame{
		SrcIP: "10.0.0.5", DstIP: "10.0.0.53", SrcPort: 33333, DstPort: 53, UDP: true,
		DNS: extracttest.DNSQuery("example.com"),
	})
	assert.Equal(t, core.ProtoDNS, md.Protocol)
}

func TestExtractHTTPOnAppPort(t *testing.T) {
	payload := []byte("GET /api/items?id=7 HTTP/1.1\r\nHost: example\r\nUser-Agent: curl/8.0\r\n\r\n")
	md := extract(t, extracttest.Frame{SrcIP: "10.0.0.5", DstIP: "10.0.0.1", SrcPort: 51000, DstPort: appPort, Payload: payload})

	assert.Equal(t, core.ProtoHTTP, md.Protocol)
	require.NotNil(t, md.HTTP)
	assert.Equal(t, "GET", md.HTTP.Method)
	assert.Equal(t, "/api/items?id=7", md.HTTP.Path)
	assert.Equal(t, "example", md.HTTP.Headers["Host"])
	assert.Equal(t, "curl/8.0", md.HTTP.Headers["User-Agent"])
	assert.Equal(t, payload, md.HTTP.Raw)
}

func TestExtractHTTPIgnoredOffAppPort(t *testing.T) {
	md := extract(t, extracttest.Frame{SrcIP: "10.0.0.5", DstIP: "10.0.0.1", SrcPort: 51000, DstPort: 8080, Payload: []byte("GET / HTTP/1.1\r\n\r\n")})
	assert.Equal(t, core.ProtoTCP, md.Protocol)
	assert.Nil(t, md.HTTP)
}

func TestExtractNonHTTPOnAppPortFallsBackToTCP(t *testing.T) {
	md := extract(t, extracttest.Frame{SrcIP: "10.0.0.5", DstIP: "10.0.0.1", SrcPort: appPort, DstPort: 51000, Payload: []byte{0x16, 0x03, 0x01, 0x00}})
	assert.Equal(t, core.ProtoTCP, md.Protocol)
	assert.Nil(t, md.HTTP)
}

func TestExtractIPv6(t *testing.T) {
	md := extract(t, extracttest.Frame{SrcIP: "2001:db8::5", DstIP: "2001:db8::1", SrcPort: 40000, DstPort: 443})
	assert.Equal(t, netip.MustParseAddr("2001:db8::5"), md.SrcIP)
	assert.Equal(t, core.ProtoTCP, md.Protocol)
}

func TestExtractICMPHasNoPorts(t *testing.T) {
	md := extract(t, extracttest.Frame{SrcIP: "10.0.0.5", DstIP: "10.0.0.1", ICMP: true})
	assert.Equal(t, core.ProtoOther, md.Protocol)
	assert.False(t, md.HasPorts)
	assert.Equal(t, "", md.DstPortString())
}

func TestExtractNoNetworkLayer(t *testing.T) {
	buf := gopacket.NewSerializeBuffer()
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: []byte{2, 0, 0, 0, 0, 1}, SourceProtAddress: []byte{10, 0, 0, 5},
		DstHwAddress: []byte{0, 0, 0, 0, 0, 0}, DstProtAddress: []byte{10, 0, 0, 1},
	}
	eth := &layers.Ethernet{SrcMAC: []byte{2, 0, 0, 0, 0, 1}, DstMAC: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, EthernetType: layers.EthernetTypeARP}
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp))

	_, err := NewExtractor("eth0", layers.LinkTypeEthernet, appPort).Extract(buf.Bytes(), extracttest.CaptureInfo(buf.Bytes()))
	assert.ErrorIs(t, err, core.ErrNoNetworkLayer)
}

func TestExtractGarbage(t *testing.T) {
	_, err := NewExtractor("eth0", layers.LinkTypeEthernet, appPort).Extract([]byte{0x01, 0x02}, gopacket.CaptureInfo{})
	assert.ErrorIs(t, err, core.ErrNoNetworkLayer)
}

func TestExtractRawLinkSniffsVersion(t *testing.T) {
	frame := extracttest.Build(extracttest.Frame{SrcIP: "2001:db8::5", DstIP: "2001:db8::1", SrcPort: 1, DstPort: 2, UDP: true})
	raw := frame[14:] // strip Ethernet
	md, err := NewExtractor("tun0", layers.LinkTypeRaw, appPort).Extract(raw, extracttest.CaptureInfo(raw))
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("2001:db8::5"), md.SrcIP)
	assert.Equal(t, core.ProtoUDP, md.Protocol)
}

func TestExtractorReuse(t *testing.T) {
	e := NewExtractor("eth0", layers.LinkTypeEthernet, appPort)
	tcp := extracttest.Build(extracttest.Frame{SrcIP: "10.0.0.5", DstIP: "10.0.0.1", SrcPort: 1, DstPort: 2})
	icmp := extracttest.Build(extracttest.Frame{SrcIP: "10.0.0.6", DstIP: "10.0.0.1", ICMP: true})

	md1, err := e.Extract(tcp, extracttest.CaptureInfo(tcp))
	require.NoError(t, err)
	md2, err := e.Extract(icmp, extracttest.CaptureInfo(icmp))
	require.NoError(t, err)

	assert.True(t, md1.HasPorts)
	assert.False(t, md2.HasPorts, "state from the previous frame must not leak")
	assert.Equal(t, netip.MustParseAddr("10.0.0.6"), md2.SrcIP)
}

func TestParseHTTPRequest(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		method  string
		path    string
		ok      bool
	}{
		{"get", "GET / HTTP/1.1\r\n\r\n", "GET", "/", true},
		{"post", "POST /submit HTTP/1.0\r\nContent-Length: 0\r\n\r\n", "POST", "/submit", true},
		{"put", "PUT /a/b HTTP/1.1\n", "PUT", "/a/b", true},
		{"delete", "DELETE /x HTTP/1.1", "DELETE", "/x", true},
		{"unsupported method", "PATCH /x HTTP/1.1\r\n", "", "", false},
		{"response", "HTTP/1.1 200 OK\r\n", "", "", false},
		{"not at start", " GET / HTTP/1.1", "", "", false},
		{"empty", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := parseHTTPRequest([]byte(tt.payload))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.method, info.Method)
				assert.Equal(t, tt.path, info.Path)
			}
		})
	}
}
