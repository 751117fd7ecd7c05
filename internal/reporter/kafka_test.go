package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/trafficguard/internal/config"
	"firestige.xyz/trafficguard/internal/core"
)

type fakeWriter struct {
	msgs     []kafka.Message
	writeErr error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func sampleEvent() *Event {
	md := &core.PacketMetadata{
		Timestamp: time.UnixMilli(1717232400000),
		Interface: "eth0",
		SrcIP:     netip.MustParseAddr("10.0.0.5"),
		DstIP:     netip.MustParseAddr("10.0.0.1"),
		SrcPort:   40000,
		DstPort:   4000,
		HasPorts:  true,
		Protocol:  core.ProtoHTTP,
		Size:      512,
	}
	d := core.Decision{Action: core.ActionBlock, Condition: core.ConditionSrcIP, Index: 2}
	results := []core.EnforcementResult{
		{Kind: core.EnforceSource, Target: "10.0.0.5"},
		{Kind: core.EnforcePort, Target: "4000", Err: errors.New("permission denied")},
	}
	return NewEvent(md, d, results)
}

func TestKafkaReportSerializesEvent(t *testing.T) {
	w := &fakeWriter{}
	r := newKafkaReporterWithWriter(w, "events")

	require.NoError(t, r.Report(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, []byte("10.0.0.5"), msg.Key)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, float64(1717232400000), decoded["timestamp"])
	assert.Equal(t, "block", decoded["action"])
	assert.Equal(t, "src_ip", decoded["condition"])
	assert.Equal(t, float64(2), decoded["rule_index"])
	assert.Equal(t, "4000", decoded["dst_port"])
	assert.Equal(t, "HTTP", decoded["protocol"])

	enf, ok := decoded["enforcement"].([]interface{})
	require.True(t, ok)
	require.Len(t, enf, 2)
	assert.Equal(t, "permission denied", enf[1].(map[string]interface{})["error"])

	require.NoError(t, r.Close())
	assert.True(t, w.closed)
}

func TestKafkaReportWriteError(t *testing.T) {
	w := &fakeWriter{writeErr: errors.New("broker down")}
	r := newKafkaReporterWithWriter(w, "events")

	err := r.Report(context.Background(), sampleEvent())
	assert.Error(t, err)
	assert.Equal(t, uint64(1), r.errorCount.Load())
	assert.Error(t, r.Report(context.Background(), nil))
}

func TestKafkaCompletionCountsFailures(t *testing.T) {
	r := newKafkaReporterWithWriter(&fakeWriter{}, "events")
	r.onCompletion([]kafka.Message{{}, {}}, errors.New("timeout"))
	r.onCompletion([]kafka.Message{{}}, nil)
	assert.Equal(t, uint64(2), r.errorCount.Load())
}

func TestNewKafkaReporterValidation(t *testing.T) {
	_, err := NewKafkaReporter(config.KafkaReporterConfig{Topic: "t"})
	assert.Error(t, err)
	_, err = NewKafkaReporter(config.KafkaReporterConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
	_, err = NewKafkaReporter(config.KafkaReporterConfig{Brokers: []string{"localhost:9092"}, Topic: "t", Compression: "brotli"})
	assert.Error(t, err)

	r, err := NewKafkaReporter(config.KafkaReporterConfig{Brokers: []string{"localhost:9092"}, Topic: "t", Compression: "snappy"})
	require.NoError(t, err)
	assert.Equal(t, "kafka", r.Name())
	assert.NoError(t, r.Close())
}

func TestParseCompression(t *testing.T) {
	c, err := parseCompression("lz4")
	require.NoError(t, err)
	assert.Equal(t, compress.Lz4, c)
	c, err = parseCompression("none")
	require.NoError(t, err)
	assert.Equal(t, compress.Compression(0), c)
}

func TestNopReporter(t *testing.T) {
	var r Reporter = Nop{}
	assert.NoError(t, r.Report(context.Background(), sampleEvent()))
	assert.NoError(t, r.Close())
}
