// Package reporter publishes block decisions to external sinks.
package reporter

import (
	"context"
	"time"

	"firestige.xyz/trafficguard/internal/core"
)

// Reporter publishes decision events. Report must not block the capture loop.
type Reporter interface {
	Name() string
	Report(ctx context.Context, ev *Event) error
	Close() error
}

// Event is the published form of one blocked packet.
type Event struct {
	Timestamp   time.Time          `json:"-"`
	Interface   string             `json:"interface"`
	Action      string             `json:"action"`
	Condition   string             `json:"condition,omitempty"`
	RuleIndex   int                `json:"rule_index"`
	SrcIP       string             `json:"src_ip"`
	DstIP       string             `json:"dst_ip"`
	SrcPort     string             `json:"src_port,omitempty"`
	DstPort     string             `json:"dst_port,omitempty"`
	Protocol    string             `json:"protocol"`
	Size        int                `json:"size"`
	Enforcement []EnforcementEvent `json:"enforcement,omitempty"`
}

// EnforcementEvent is the published form of one firewall mutation.
type EnforcementEvent struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Error  string `json:"error,omitempty"`
}

// NewEvent builds an event from a decision and its enforcement results.
func NewEvent(md *core.PacketMetadata, d core.Decision, results []core.EnforcementResult) *Event {
	ev := &Event{
		Timestamp: md.Timestamp,
		Interface: md.Interface,
		Action:    string(d.Action),
		Condition: string(d.Condition),
		RuleIndex: d.Index,
		SrcIP:     md.SrcIP.String(),
		DstIP:     md.DstIP.String(),
		SrcPort:   md.SrcPortString(),
		DstPort:   md.DstPortString(),
		Protocol:  md.Protocol,
		Size:      md.Size,
	}
	for _, r := range results {
		ee := EnforcementEvent{Kind: string(r.Kind), Target: r.Target}
		if r.Err != nil {
			ee.Error = r.Err.Error()
		}
		ev.Enforcement = append(ev.Enforcement, ee)
	}
	return ev
}

// Nop discards events.
type Nop struct{}

func (Nop) Name() string                         { return "nop" }
func (Nop) Report(context.Context, *Event) error { return nil }
func (Nop) Close() error                         { return nil }
