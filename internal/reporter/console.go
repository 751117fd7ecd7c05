package reporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"firestige.xyz/trafficguard/internal/log"
)

// ConsoleReporter prints block events for operators watching a terminal.
type ConsoleReporter struct {
	format        string // "json" or "text"
	mu            sync.Mutex
	out           io.Writer
	reportedCount atomic.Uint64
}

// NewConsoleReporter creates a console reporter writing to stdout.
func NewConsoleReporter(format string) (*ConsoleReporter, error) {
	return newConsoleReporter(format, os.Stdout)
}

func newConsoleReporter(format string, out io.Writer) (*ConsoleReporter, error) {
	switch format {
	case "":
		format = "text"
	case "json", "text":
	default:
		return nil, fmt.Errorf("invalid format %q, must be json or text", format)
	}
	return &ConsoleReporter{format: format, out: out}, nil
}

func (r *ConsoleReporter) Name() string { return "console" }

// Report writes one line per event.
func (r *ConsoleReporter) Report(_ context.Context, ev *Event) error {
	if ev == nil {
		return fmt.Errorf("nil event")
	}
	var line []byte
	if r.format == "json" {
		data, err := serializeEvent(ev)
		if err != nil {
			return fmt.Errorf("json marshal failed: %w", err)
		}
		line = append(data, '\n')
	} else {
		line = []byte(formatText(ev))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.out.Write(line); err != nil {
		return err
	}
	r.reportedCount.Add(1)
	return nil
}

func formatText(ev *Event) string {
	verb := "Blocked"
	if ev.Condition == "rate_limited" {
		verb = "Rate-limited"
	}
	s := fmt.Sprintf("[%s] %s: %s %s", ev.Timestamp.Format("15:04:05.000"), verb, ev.Interface, endpoint(ev.SrcIP, ev.SrcPort))
	s += " -> " + endpoint(ev.DstIP, ev.DstPort)
	s += fmt.Sprintf(" proto=%s size=%d", ev.Protocol, ev.Size)
	if ev.Condition != "" && ev.Condition != "rate_limited" {
		s += fmt.Sprintf(" rule=%d(%s)", ev.RuleIndex, ev.Condition)
	}
	for _, e := range ev.Enforcement {
		if e.Error != "" {
			s += fmt.Sprintf(" %s:%s=failed", e.Kind, e.Target)
		} else {
			s += fmt.Sprintf(" %s:%s=dropped", e.Kind, e.Target)
		}
	}
	return s + "\n"
}

func endpoint(ip, port string) string {
	if port == "" {
		return ip
	}
	return ip + ":" + port
}

func (r *ConsoleReporter) Close() error {
	log.GetLogger().WithField("total_reported", r.reportedCount.Load()).Info("console reporter stopped")
	return nil
}
