// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// Action is the outcome attached to a rule and to a classification decision.
type Action string

const (
	ActionAllow Action = "allow"
	ActionBlock Action = "block"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return a == ActionAllow || a == ActionBlock
}

// TimeOfDayLayout is the wall-clock layout of Rule.StartTime and Rule.EndTime.
const TimeOfDayLayout = "15:04"

// Rule is a declarative filter condition paired with an action.
// Rules have no identity beyond their position in the stored sequence.
type Rule struct {
	Action    Action `json:"action" yaml:"action" mapstructure:"action"`
	SrcIP     string `json:"src_ip,omitempty" yaml:"src_ip,omitempty" mapstructure:"src_ip"`
	Protocol  string `json:"protocol,omitempty" yaml:"protocol,omitempty" mapstructure:"protocol"`
	Port      string `json:"port,omitempty" yaml:"port,omitempty" mapstructure:"port"`
	SizeMin   *int   `json:"size_min,omitempty" yaml:"size_min,omitempty" mapstructure:"size_min"`
	SizeMax   *int   `json:"size_max,omitempty" yaml:"size_max,omitempty" mapstructure:"size_max"`
	StartTime string `json:"start_time,omitempty" yaml:"start_time,omitempty" mapstructure:"start_time"`
	EndTime   string `json:"end_time,omitempty" yaml:"end_time,omitempty" mapstructure:"end_time"`
}

// HasTimeWindow reports whether the rule is gated by a time-of-day window.
// A window needs both bounds; a single bound leaves the rule always active.
func (r Rule) HasTimeWindow() bool {
	return r.StartTime != "" && r.EndTime != ""
}

// MatchesAll reports whether the rule names no packet field, so it matches every
// packet while active.
func (r Rule) MatchesAll() bool {
	return r.SrcIP == "" && r.Protocol == "" && r.Port == "" && r.SizeMin == nil && r.SizeMax == nil
}

// Validate checks the rule fields a CRUD caller supplies.
func (r Rule) Validate() error {
	if !r.Action.Valid() {
		return fmt.Errorf("%w: action %q must be %q or %q", ErrInvalidRule, r.Action, ActionAllow, ActionBlock)
	}
	if r.SrcIP != "" {
		if _, err := netip.ParseAddr(r.SrcIP); err != nil {
			return fmt.Errorf("%w: src_ip %q: %v", ErrInvalidRule, r.SrcIP, err)
		}
	}
	if r.Port != "" {
		if _, err := ParsePort(r.Port); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
	}
	for _, tod := range []string{r.StartTime, r.EndTime} {
		if tod == "" {
			continue
		}
		if _, err := time.Parse(TimeOfDayLayout, tod); err != nil {
			return fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidRule, tod)
		}
	}
	if r.SizeMin != nil && r.SizeMax != nil && *r.SizeMin > *r.SizeMax {
		return fmt.Errorf("%w: size_min %d exceeds size_max %d", ErrInvalidRule, *r.SizeMin, *r.SizeMax)
	}
	return nil
}

// String renders the non-empty conditions, for logs and the CLI.
func (r Rule) String() string {
	parts := []string{"action=" + string(r.Action)}
	if r.SrcIP != "" {
		parts = append(parts, "src_ip="+r.SrcIP)
	}
	if r.Protocol != "" {
		parts = append(parts, "protocol="+r.Protocol)
	}
	if r.Port != "" {
		parts = append(parts, "port="+r.Port)
	}
	if r.SizeMin != nil {
		parts = append(parts, "size_min="+strconv.Itoa(*r.SizeMin))
	}
	if r.SizeMax != nil {
		parts = append(parts, "size_max="+strconv.Itoa(*r.SizeMax))
	}
	if r.StartTime != "" || r.EndTime != "" {
		parts = append(parts, "window="+r.StartTime+"-"+r.EndTime)
	}
	return strings.Join(parts, " ")
}

// ParsePort parses a string-encoded port number in 1..65535.
func ParsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("port %q is not in 1-65535", s)
	}
	return uint16(n), nil
}

// Condition names the rule field that produced a decision.
type Condition string

const (
	ConditionNone        Condition = ""
	ConditionSrcIP       Condition = "src_ip"
	ConditionPort        Condition = "port"
	ConditionSize        Condition = "size"
	ConditionAny         Condition = "any"
	ConditionRateLimited Condition = "rate_limited"
)

// Decision is the result of classifying one packet.
type Decision struct {
	Action    Action
	Condition Condition
	Rule      *Rule // nil when no rule matched
	Index     int   // position of Rule in the evaluated snapshot, -1 when none
}

// LogFields returns md's fields plus the decision's action, condition and rule index.
func (d Decision) LogFields(md *PacketMetadata) map[string]interface{} {
	fields := md.Fields()
	fields["action"] = string(d.Action)
	if d.Condition != ConditionNone {
		fields["condition"] = string(d.Condition)
	}
	if d.Index >= 0 {
		fields["rule_index"] = d.Index
	}
	return fields
}

// AllowDecision is the default-allow outcome.
func AllowDecision() Decision {
	return Decision{Action: ActionAllow, Index: -1}
}
