package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/trafficguard/internal/config"
	"firestige.xyz/trafficguard/internal/log"
	"firestige.xyz/trafficguard/internal/metrics"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultMaxAttempts  = 3
)

// messageWriter is the subset of *kafka.Writer the reporter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter sends block events to a Kafka topic.
// The writer is asynchronous; delivery errors surface through its completion callback.
type KafkaReporter struct {
	writer messageWriter
	topic  string

	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// NewKafkaReporter creates a reporter from configuration.
func NewKafkaReporter(cfg config.KafkaReporterConfig) (*KafkaReporter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka reporter: brokers is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka reporter: topic is required")
	}
	codec, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}

	r := &KafkaReporter{topic: cfg.Topic}
	r.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // same source lands on the same partition
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		MaxAttempts:  defaultMaxAttempts,
		Compression:  codec,
		Async:        true,
		Completion:   r.onCompletion,
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"brokers":       cfg.Brokers,
		"topic":         cfg.Topic,
		"batch_size":    batchSize,
		"batch_timeout": batchTimeout,
		"compression":   cfg.Compression,
	}).Info("kafka reporter started")
	return r, nil
}

func newKafkaReporterWithWriter(w messageWriter, topic string) *KafkaReporter {
	return &KafkaReporter{writer: w, topic: topic}
}

func parseCompression(name string) (compress.Compression, error) {
	switch name {
	case "none", "":
		return 0, nil
	case "gzip":
		return compress.Gzip, nil
	case "snappy":
		return compress.Snappy, nil
	case "lz4":
		return compress.Lz4, nil
	case "zstd":
		return compress.Zstd, nil
	default:
		return 0, fmt.Errorf("kafka reporter: invalid compression type: %s", name)
	}
}

func (r *KafkaReporter) Name() string { return "kafka" }

// Report queues ev for delivery, keyed by source address.
func (r *KafkaReporter) Report(ctx context.Context, ev *Event) error {
	if ev == nil {
		return fmt.Errorf("nil event")
	}
	value, err := serializeEvent(ev)
	if err != nil {
		r.errorCount.Add(1)
		metrics.ReporterErrorsTotal.WithLabelValues(r.Name()).Inc()
		return fmt.Errorf("serialize event failed: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.SrcIP),
		Value: value,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(ev.Action)},
			{Key: "interface", Value: []byte(ev.Interface)},
		},
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		r.errorCount.Add(1)
		metrics.ReporterErrorsTotal.WithLabelValues(r.Name()).Inc()
		return fmt.Errorf("kafka write failed: %w", err)
	}
	r.reportedCount.Add(1)
	return nil
}

func (r *KafkaReporter) onCompletion(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	r.errorCount.Add(uint64(len(msgs)))
	metrics.ReporterErrorsTotal.WithLabelValues(r.Name()).Add(float64(len(msgs)))
	log.GetLogger().WithError(err).WithField("messages", len(msgs)).Warn("kafka delivery failed")
}

// Close flushes pending messages.
func (r *KafkaReporter) Close() error {
	err := r.writer.Close()
	log.GetLogger().WithFields(map[string]interface{}{
		"total_reported": r.reportedCount.Load(),
		"total_errors":   r.errorCount.Load(),
	}).Info("kafka reporter stopped")
	if err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// serializeEvent renders ev as JSON with a millisecond timestamp.
func serializeEvent(ev *Event) ([]byte, error) {
	type wire struct {
		Timestamp int64 `json:"timestamp"`
		*Event
	}
	return json.Marshal(wire{Timestamp: ev.Timestamp.UnixMilli(), Event: ev})
}
