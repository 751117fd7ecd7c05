package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleReporterText(t *testing.T) {
	var buf bytes.Buffer
	r, err := newConsoleReporter("", &buf)
	require.NoError(t, err)

	require.NoError(t, r.Report(context.Background(), sampleEvent()))
	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, "Blocked: eth0 10.0.0.5:40000 -> 10.0.0.1:4000")
	assert.Contains(t, line, "proto=HTTP size=512")
	assert.Contains(t, line, "rule=2(src_ip)")
	assert.Contains(t, line, "source:10.0.0.5=dropped")
	assert.Contains(t, line, "port:4000=failed")

	ev := sampleEvent()
	ev.Condition = "rate_limited"
	ev.Enforcement = nil
	buf.Reset()
	require.NoError(t, r.Report(context.Background(), ev))
	assert.Contains(t, buf.String(), "Rate-limited:")
	assert.NotContains(t, buf.String(), "rule=")
}

func TestConsoleReporterJSON(t *testing.T) {
	var buf bytes.Buffer
	r, err := newConsoleReporter("json", &buf)
	require.NoError(t, err)

	require.NoError(t, r.Report(context.Background(), sampleEvent()))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "10.0.0.5", decoded["src_ip"])
	assert.Equal(t, uint64(1), r.reportedCount.Load())
	assert.NoError(t, r.Close())
}

func TestConsoleReporterRejects(t *testing.T) {
	_, err := newConsoleReporter("xml", &bytes.Buffer{})
	assert.Error(t, err)

	r, err := NewConsoleReporter("text")
	require.NoError(t, err)
	assert.Error(t, r.Report(context.Background(), nil))
}
