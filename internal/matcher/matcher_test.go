package matcher

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/trafficguard/internal/clock"
	"firestige.xyz/trafficguard/internal/core"
)

func intPtr(v int) *int { return &v }

func at(hour, minute, second int) *clock.MockClock {
	return clock.NewMockClock(time.Date(2024, 6, 1, hour, minute, second, 0, time.Local))
}

func packet(src string, sport, dport uint16) *core.PacketMetadata {
	return &core.PacketMetadata{
		SrcIP:    netip.MustParseAddr(src),
		DstIP:    netip.MustParseAddr("10.0.0.1"),
		SrcPort:  sport,
		DstPort:  dport,
		HasPorts: true,
		Protocol: core.ProtoTCP,
		Size:     512,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		rules     []core.Rule
		md        *core.PacketMetadata
		action    core.Action
		condition core.Condition
		index     int
	}{
		{
			name:   "empty rule set allows",
			md:     packet("10.0.0.5", 40000, 4000),
			action: core.ActionAllow, index: -1,
		},
		{
			name:   "no match allows",
			rules:  []core.Rule{{Action: core.ActionBlock, SrcIP: "10.9.9.9"}, {Action: core.ActionBlock, Port: "22"}},
			md:     packet("10.0.0.5", 40000, 4000),
			action: core.ActionAllow, index: -1,
		},
		{
			name:   "source block",
			rules:  []core.Rule{{Action: core.ActionBlock, SrcIP: "10.0.0.5"}},
			md:     packet("10.0.0.5", 40000, 4000),
			action: core.ActionBlock, condition: core.ConditionSrcIP, index: 0,
		},
		{
			name:   "port block on destination",
			rules:  []core.Rule{{Action: core.ActionBlock, Port: "4000"}},
			md:     packet("10.0.0.7", 40000, 4000),
			action: core.ActionBlock, condition: core.ConditionPort, index: 0,
		},
		{
			name:   "port block on source port",
			rules:  []core.Rule{{Action: core.ActionBlock, Port: "40000"}},
			md:     packet("10.0.0.7", 40000, 4000),
			action: core.ActionBlock, condition: core.ConditionPort, index: 0,
		},
		{
			name: "source block outranks earlier port block",
			rules: []core.Rule{
				{Action: core.ActionBlock, Port: "4000"},
				{Action: core.ActionBlock, SrcIP: "10.0.0.5"},
			},
			md:     packet("10.0.0.5", 40000, 4000),
			action: core.ActionBlock, condition: core.ConditionSrcIP, index: 1,
		},
		{
			name: "source allow falls through to port block",
			rules: []core.Rule{
				{Action: core.ActionAllow, SrcIP: "10.0.0.5"},
				{Action: core.ActionBlock, Port: "4000"},
			},
			md:     packet("10.0.0.5", 40000, 4000),
			action: core.ActionBlock, condition: core.ConditionPort, index: 1,
		},
		{
			name: "first source match wins",
			rules: []core.Rule{
				{Action: core.ActionAllow, SrcIP: "10.0.0.5"},
				{Action: core.ActionBlock, SrcIP: "10.0.0.5"},
			},
			md:     packet("10.0.0.5", 40000, 80),
			action: core.ActionAllow, index: -1,
		},
		{
			name: "first port match wins",
			rules: []core.Rule{
				{Action: core.ActionAllow, Port: "80"},
				{Action: core.ActionBlock, Port: "80"},
			},
			md:     packet("10.0.0.5", 40000, 80),
			action: core.ActionAllow, index: -1,
		},
		{
			name:   "ipv6 source in canonical form",
			rules:  []core.Rule{{Action: core.ActionBlock, SrcIP: "2001:0db8::0005"}},
			md:     packet("2001:db8::5", 40000, 80),
			action: core.ActionBlock, condition: core.ConditionSrcIP, index: 0,
		},
		{
			name:   "unknown action is returned but not block",
			rules:  []core.Rule{{Action: "log", SrcIP: "10.0.0.5"}},
			md:     packet("10.0.0.5", 40000, 80),
			action: core.Action("log"), condition: core.ConditionSrcIP, index: 0,
		},
		{
			name:   "rule without fields blocks everything",
			rules:  []core.Rule{{Action: core.ActionBlock}},
			md:     packet("10.0.0.5", 40000, 80),
			action: core.ActionBlock, condition: core.ConditionAny, index: 0,
		},
		{
			name: "rule without fields allows ahead of a later source block",
			rules: []core.Rule{
				{Action: core.ActionAllow},
				{Action: core.ActionBlock, SrcIP: "10.0.0.5"},
			},
			md:     packet("10.0.0.5", 40000, 80),
			action: core.ActionAllow, index: -1,
		},
		{
			name: "source block ahead of a rule without fields",
			rules: []core.Rule{
				{Action: core.ActionBlock, SrcIP: "10.0.0.5"},
				{Action: core.ActionAllow},
			},
			md:     packet("10.0.0.5", 40000, 80),
			action: core.ActionBlock, condition: core.ConditionSrcIP, index: 0,
		},
		{
			name:   "port with leading zero matches numerically",
			rules:  []core.Rule{{Action: core.ActionBlock, Port: "080"}},
			md:     packet("10.0.0.5", 40000, 80),
			action: core.ActionBlock, condition: core.ConditionPort, index: 0,
		},
		{
			name:   "port rule ignored without transport ports",
			rules:  []core.Rule{{Action: core.ActionBlock, Port: "80"}},
			md:     &core.PacketMetadata{SrcIP: netip.MustParseAddr("10.0.0.5"), Protocol: core.ProtoOther},
			action: core.ActionAllow, index: -1,
		},
		{
			name:   "size bounds ignored by default",
			rules:  []core.Rule{{Action: core.ActionBlock, SizeMin: intPtr(100), SizeMax: intPtr(1000)}},
			md:     packet("10.0.0.5", 40000, 80),
			action: core.ActionAllow, index: -1,
		},
	}

	m := New(Options{Clock: at(12, 0, 0)})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := m.Classify(tt.md, tt.rules)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.condition, d.Condition)
			assert.Equal(t, tt.index, d.Index)
			if tt.index >= 0 {
				require.NotNil(t, d.Rule)
				assert.Equal(t, tt.rules[tt.index], *d.Rule)
			} else {
				assert.Nil(t, d.Rule)
			}
		})
	}
}

func TestNoPortsNeverMatchPortRule(t *testing.T) {
	m := New(Options{Clock: at(12, 0, 0)})
	md := &core.PacketMetadata{SrcIP: netip.MustParseAddr("10.0.0.5"), Protocol: core.ProtoOther}
	d := m.Classify(md, []core.Rule{{Action: core.ActionBlock, Port: "4000"}})
	assert.Equal(t, core.ActionAllow, d.Action)
}

func TestTimeWindowGating(t *testing.T) {
	rules := []core.Rule{{Action: core.ActionBlock, Port: "4000", StartTime: "09:00", EndTime: "17:00"}}
	md := packet("10.0.0.5", 40000, 4000)

	tests := []struct {
		name   string
		clock  *clock.MockClock
		action core.Action
	}{
		{"before window", at(8, 59, 59), core.ActionAllow},
		{"at start", at(9, 0, 0), core.ActionBlock},
		{"inside", at(12, 30, 0), core.ActionBlock},
		{"at end", at(17, 0, 0), core.ActionBlock},
		{"seconds past end", at(17, 0, 30), core.ActionAllow},
		{"after window", at(18, 0, 0), core.ActionAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Options{Clock: tt.clock}).Classify(md, rules)
			assert.Equal(t, tt.action, d.Action)
		})
	}
}

func TestInactiveRuleDoesNotShadow(t *testing.T) {
	// The inactive allow must not stop the port pass from reaching the block.
	rules := []core.Rule{
		{Action: core.ActionAllow, Port: "4000", StartTime: "01:00", EndTime: "02:00"},
		{Action: core.ActionBlock, Port: "4000"},
	}
	d := New(Options{Clock: at(12, 0, 0)}).Classify(packet("10.0.0.5", 40000, 4000), rules)
	assert.Equal(t, core.ActionBlock, d.Action)
	assert.Equal(t, 1, d.Index)
}

func TestSingleBoundIsAlwaysActive(t *testing.T) {
	rules := []core.Rule{{Action: core.ActionBlock, SrcIP: "10.0.0.5", StartTime: "23:00"}}
	d := New(Options{Clock: at(3, 0, 0)}).Classify(packet("10.0.0.5", 1, 2), rules)
	assert.Equal(t, core.ActionBlock, d.Action)
}

func TestOvernightWindow(t *testing.T) {
	rules := []core.Rule{{Action: core.ActionBlock, SrcIP: "10.0.0.5", StartTime: "22:00", EndTime: "06:00"}}
	md := packet("10.0.0.5", 1, 2)

	assert.Equal(t, core.ActionBlock, New(Options{Clock: at(23, 15, 0)}).Classify(md, rules).Action)
	assert.Equal(t, core.ActionBlock, New(Options{Clock: at(5, 0, 0)}).Classify(md, rules).Action)
	assert.Equal(t, core.ActionAllow, New(Options{Clock: at(12, 0, 0)}).Classify(md, rules).Action)
}

func TestUnparseableWindowIsInactive(t *testing.T) {
	rules := []core.Rule{{Action: core.ActionBlock, SrcIP: "10.0.0.5", StartTime: "nine", EndTime: "17:00"}}
	m := New(Options{Clock: at(12, 0, 0)})
	assert.Equal(t, core.ActionAllow, m.Classify(packet("10.0.0.5", 1, 2), rules).Action)
	// Repeated evaluation only warns once.
	assert.Equal(t, core.ActionAllow, m.Classify(packet("10.0.0.5", 1, 2), rules).Action)
}

func TestSizePass(t *testing.T) {
	m := New(Options{EnforceSizeBounds: true, Clock: at(12, 0, 0)})
	rules := []core.Rule{
		{Action: core.ActionBlock, SizeMin: intPtr(1000)},
		{Action: core.ActionBlock, SizeMin: intPtr(100), SizeMax: intPtr(600)},
	}

	d := m.Classify(packet("10.0.0.5", 1, 2), rules) // size 512
	assert.Equal(t, core.ActionBlock, d.Action)
	assert.Equal(t, core.ConditionSize, d.Condition)
	assert.Equal(t, 1, d.Index)

	small := packet("10.0.0.5", 1, 2)
	small.Size = 60
	assert.Equal(t, core.ActionAllow, m.Classify(small, rules).Action)
}

func TestSizePassRunsAfterPortPass(t *testing.T) {
	m := New(Options{EnforceSizeBounds: true, Clock: at(12, 0, 0)})
	rules := []core.Rule{
		{Action: core.ActionBlock, SizeMax: intPtr(10000)},
		{Action: core.ActionBlock, Port: "2"},
	}
	d := m.Classify(packet("10.0.0.5", 1, 2), rules)
	assert.Equal(t, core.ConditionPort, d.Condition)
}

func TestInWindowEqualBounds(t *testing.T) {
	r := &core.Rule{StartTime: "10:00", EndTime: "10:00"}
	ok, err := inWindow(r, time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = inWindow(r, time.Date(2024, 1, 1, 10, 0, 1, 0, time.Local))
	require.NoError(t, err)
	assert.False(t, ok)
}
