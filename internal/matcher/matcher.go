// Package matcher classifies packet metadata against the rule list.
package matcher

import (
	"net/netip"
	"strings"
	"sync"

	"firestige.xyz/trafficguard/internal/clock"
	"firestige.xyz/trafficguard/internal/core"
	"firestige.xyz/trafficguard/internal/log"
)

// Options configures a Matcher.
type Options struct {
	// EnforceSizeBounds adds a size pass after the port pass.
	EnforceSizeBounds bool
	Clock             clock.Clock
}

// Matcher is stateless apart from its warn-once set and is safe for concurrent use.
type Matcher struct {
	sizeBounds bool
	clock      clock.Clock
	warned     sync.Map // rule text -> struct{}, bad windows already reported
}

// New creates a Matcher.
func New(opts Options) *Matcher {
	return &Matcher{
		sizeBounds: opts.EnforceSizeBounds,
		clock:      clock.OrReal(opts.Clock),
	}
}

type indexed struct {
	rule  *core.Rule
	index int
}

// Classify decides the action for md against rules.
//
// Only rules active now take part. The source-address pass runs first: the first
// active rule naming md's source, or naming no field at all, decides the packet
// unless it allows. The port pass follows with the same shape over src and dst
// ports, then the optional size pass. Anything left is allowed, so a source block
// outranks a port block regardless of rule order.
func (m *Matcher) Classify(md *core.PacketMetadata, rules []core.Rule) core.Decision {
	active := m.activeRules(rules)
	if len(active) == 0 {
		return core.AllowDecision()
	}

	for _, r := range active {
		cond := core.ConditionSrcIP
		switch {
		case r.rule.MatchesAll():
			cond = core.ConditionAny
		case r.rule.SrcIP != "" && sameAddr(r.rule.SrcIP, md.SrcIP):
		default:
			continue
		}
		if r.rule.Action != core.ActionAllow {
			return decision(r, cond)
		}
		break
	}

	if md.HasPorts {
		for _, r := range active {
			if r.rule.Port == "" {
				continue
			}
			port, err := core.ParsePort(r.rule.Port)
			if err != nil || (port != md.SrcPort && port != md.DstPort) {
				continue
			}
			if r.rule.Action != core.ActionAllow {
				return decision(r, core.ConditionPort)
			}
			break
		}
	}

	if m.sizeBounds {
		for _, r := range active {
			if hasSizeBound(r.rule) && sizeInBounds(r.rule, md.Size) {
				if r.rule.Action != core.ActionAllow {
					return decision(r, core.ConditionSize)
				}
				break
			}
		}
	}

	return core.AllowDecision()
}

// activeRules returns the rules whose time window contains now, with their original positions.
func (m *Matcher) activeRules(rules []core.Rule) []indexed {
	now := m.clock.Now()
	active := make([]indexed, 0, len(rules))
	for i := range rules {
		ok, err := inWindow(&rules[i], now)
		if err != nil {
			m.warnOnce(&rules[i], err)
			continue
		}
		if ok {
			active = append(active, indexed{rule: &rules[i], index: i})
		}
	}
	return active
}

func (m *Matcher) warnOnce(rule *core.Rule, err error) {
	key := rule.String()
	if _, loaded := m.warned.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	log.GetLogger().WithField("rule", key).WithError(err).Warn("rule time window unparseable, rule treated as inactive")
}

func decision(r indexed, cond core.Condition) core.Decision {
	return core.Decision{Action: r.rule.Action, Condition: cond, Rule: r.rule, Index: r.index}
}

// sameAddr compares a rule address with a packet address. Textual comparison is
// the fallback for addresses that do not parse.
func sameAddr(ruleIP string, addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	if parsed, err := netip.ParseAddr(strings.TrimSpace(ruleIP)); err == nil {
		return parsed.Unmap() == addr
	}
	return ruleIP == addr.String()
}

func hasSizeBound(r *core.Rule) bool {
	return r.SizeMin != nil || r.SizeMax != nil
}

func sizeInBounds(r *core.Rule, size int) bool {
	if r.SizeMin != nil && size < *r.SizeMin {
		return false
	}
	if r.SizeMax != nil && size > *r.SizeMax {
		return false
	}
	return true
}
