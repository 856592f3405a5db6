package cadence

import (
	"testing"
	"time"

	"github.com/ignite/prospect-cadence/internal/domain"
)

// 2026-03-02 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
}

func TestInWindowBoundsAreInclusive(t *testing.T) {
	w := domain.Window{StartTime: "09:00", EndTime: "18:00", Days: Weekdays}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"exactly start", at(2, 9, 0), true},
		{"exactly end", at(2, 18, 0), true},
		{"one minute before start", at(2, 8, 59), false},
		{"one minute after end", at(2, 18, 1), false},
		{"midday", at(2, 12, 30), true},
		{"saturday midday", at(7, 12, 30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InWindow(w, tt.now); got != tt.want {
				t.Errorf("InWindow(%s) = %v, want %v", tt.now.Format("Mon 15:04"), got, tt.want)
			}
		})
	}
}

func TestInWindowWrapsMidnight(t *testing.T) {
	w := domain.Window{StartTime: "22:00", EndTime: "02:00", Days: []time.Weekday{time.Monday, time.Tuesday}}

	tests := []struct {
		now  time.Time
		want bool
	}{
		{at(2, 22, 0), true},
		{at(2, 23, 59), true},
		{at(3, 0, 30), true},
		{at(3, 2, 0), true},
		{at(3, 2, 1), false},
		{at(2, 21, 59), false},
		{at(2, 12, 0), false},
	}

	for _, tt := range tests {
		if got := InWindow(w, tt.now); got != tt.want {
			t.Errorf("InWindow(%s) = %v, want %v", tt.now.Format("Mon 15:04"), got, tt.want)
		}
	}
}

func TestInWindowReflexiveForAllDays(t *testing.T) {
	pairs := [][2]string{{"00:00", "23:59"}, {"08:15", "08:15"}, {"13:00", "17:30"}, {"20:00", "06:00"}}
	all := []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}

	for _, p := range pairs {
		start, _ := ParseClock(p[0])
		end, _ := ParseClock(p[1])
		for day := 1; day <= 7; day++ {
			w := domain.Window{StartTime: p[0], EndTime: p[1], Days: all}
			if !InWindow(w, at(day, start/60, start%60)) {
				t.Errorf("%v: start %s not inside", at(day, 0, 0).Weekday(), p[0])
			}
			if !InWindow(w, at(day, end/60, end%60)) {
				t.Errorf("%v: end %s not inside", at(day, 0, 0).Weekday(), p[1])
			}
		}
	}
}

func TestInWindowMalformedNeverMatches(t *testing.T) {
	w := domain.Window{StartTime: "9am", EndTime: "18:00", Days: Weekdays}
	if InWindow(w, at(2, 12, 0)) {
		t.Fatal("malformed window should never match")
	}
	if err := ValidateWindow(w); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"1230", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
