package cadence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/prospect-cadence/internal/domain"
)

// ParseClock converts an "HH:MM" wall-clock value into minutes of the day.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// ValidateWindow checks that both bounds parse and at least one day is allowed.
func ValidateWindow(w domain.Window) error {
	if _, err := ParseClock(w.StartTime); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if _, err := ParseClock(w.EndTime); err != nil {
		return fmt.Errorf("end: %w", err)
	}
	if len(w.Days) == 0 {
		return fmt.Errorf("window has no allowed weekdays")
	}
	return nil
}

// InWindow reports whether now falls inside the sending window. Both bounds
// are inclusive. A window whose start is after its end wraps midnight.
// now must already be expressed in the campaign's location. Malformed bounds
// never match.
func InWindow(w domain.Window, now time.Time) bool {
	if !dayAllowed(w.Days, now.Weekday()) {
		return false
	}
	start, err := ParseClock(w.StartTime)
	if err != nil {
		return false
	}
	end, err := ParseClock(w.EndTime)
	if err != nil {
		return false
	}

	cur := now.Hour()*60 + now.Minute()
	if start <= end {
		return cur >= start && cur <= end
	}
	return cur >= start || cur <= end
}

func dayAllowed(days []time.Weekday, d time.Weekday) bool {
	for _, allowed := range days {
		if allowed == d {
			return true
		}
	}
	return false
}

// Weekdays is the Monday to Friday set used as the default window.
var Weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
