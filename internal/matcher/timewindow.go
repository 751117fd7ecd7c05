package matcher

import (
	"fmt"
	"time"

	"firestige.xyz/trafficguard/internal/core"
)

// timeOfDay is an offset from local midnight.
type timeOfDay time.Duration

func parseTimeOfDay(s string) (timeOfDay, error) {
	t, err := time.Parse(core.TimeOfDayLayout, s)
	if err != nil {
		return 0, fmt.Errorf("time %q is not HH:MM", s)
	}
	return timeOfDay(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}

func sinceMidnight(now time.Time) timeOfDay {
	h, m, s := now.Clock()
	return timeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(now.Nanosecond()))
}

// inWindow reports whether now falls inside [start, end] on the wall clock.
// The end bound is HH:MM:00, so 17:00:30 is outside a window ending at 17:00.
// A window with start after end wraps past midnight.
func inWindow(rule *core.Rule, now time.Time) (bool, error) {
	if !rule.HasTimeWindow() {
		return true, nil
	}
	start, err := parseTimeOfDay(rule.StartTime)
	if err != nil {
		return false, err
	}
	end, err := parseTimeOfDay(rule.EndTime)
	if err != nil {
		return false, err
	}
	tod := sinceMidnight(now)
	if start <= end {
		return start <= tod && tod <= end, nil
	}
	return tod >= start || tod <= end, nil
}
