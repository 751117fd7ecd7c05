package capture

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/trafficguard/internal/config"
)

func TestSelectInterfaces(t *testing.T) {
	discovered := []string{"lo", "eth0", "eth1", "docker0", "veth12ab", "eth0"}

	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []string
	}{
		{"all", nil, nil, []string{"lo", "eth0", "eth1", "docker0", "veth12ab"}},
		{"include exact", []string{"eth1"}, nil, []string{"eth1"}},
		{"include pattern", []string{"eth*"}, nil, []string{"eth0", "eth1"}},
		{"exclude", nil, []string{"lo", "veth*", "docker0"}, []string{"eth0", "eth1"}},
		{"exclude wins", []string{"eth*"}, []string{"eth0"}, []string{"eth1"}},
		{"unknown include", []string{"wlan0"}, nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectInterfaces(discovered, tt.include, tt.exclude))
		})
	}
}

func TestFileSourceReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))

	frames := [][]byte{{0x01, 0x02, 0x03}, {0x04, 0x05}}
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	for _, data := range frames {
		ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
	}
	require.NoError(t, f.Close())

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, layers.LinkTypeEthernet, src.LinkType())
	for _, want := range frames {
		data, ci, err := src.ReadPacketData()
		require.NoError(t, err)
		assert.Equal(t, want, data)
		assert.Equal(t, len(want), ci.Length)
		assert.True(t, ts.Equal(ci.Timestamp))
	}
	_, _, err = src.ReadPacketData()
	assert.ErrorIs(t, err, io.EOF)

	st, err := src.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.Received)
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "absent.pcap"))
	assert.Error(t, err)
}

func TestOptionsFrom(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	opts := OptionsFrom(cfg.Capture)
	assert.Equal(t, cfg.Capture.SnapLen, opts.SnapLen)
	assert.Equal(t, cfg.Capture.Promiscuous, opts.Promiscuous)
	assert.Equal(t, 500*time.Millisecond, opts.Timeout)
	assert.Equal(t, cfg.Capture.BufferSizeMB, opts.BufferSizeMB)
}
