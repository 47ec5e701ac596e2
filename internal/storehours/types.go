// Package storehours decides whether the pizzeria is open at a given instant
// and when that answer will next change.
package storehours

import (
	"time"
)

// Status is the manual part of the store configuration.
type Status struct {
	ClosedNow  bool       `json:"closed_now"`
	Reason     string     `json:"reason,omitempty"`
	ReopenAt   *time.Time `json:"reopen_at,omitempty"`
	ManualMode bool       `json:"manual_mode"`
}

// DayHours is one day of the weekly schedule. Open and Close are "HH:MM".
type DayHours struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Open    string `json:"open" yaml:"open"`
	Close   string `json:"close" yaml:"close"`
}

// WeeklySchedule is indexed by time.Weekday (0=Sunday .. 6=Saturday).
// A zero DayHours means closed all day.
type WeeklySchedule [7]DayHours

// Day returns the hours for the given weekday. Out of range weekdays are closed.
func (s WeeklySchedule) Day(d time.Weekday) DayHours {
	if d < time.Sunday || d > time.Saturday {
		return DayHours{}
	}
	return s[d]
}

// Snapshot is the status and schedule read together from the configuration store.
type Snapshot struct {
	Status   Status         `json:"status"`
	Schedule WeeklySchedule `json:"schedule"`
}

// window is a parsed open interval in minutes of the day.
type window struct {
	open  int
	close int
}

func (w window) overnight() bool {
	return w.close < w.open
}

// contains reports whether minute m of the day that owns the window is open.
func (w window) contains(m int) bool {
	if w.overnight() {
		return m >= w.open || m < w.close
	}
	return m >= w.open && m < w.close
}

// window parses the day into minutes. It reports false for disabled days,
// malformed times and zero-width windows.
func (d DayHours) window() (window, bool) {
	if !d.Enabled {
		return window{}, false
	}
	open, ok := ParseClock(d.Open)
	if !ok {
		return window{}, false
	}
	closeAt, ok := ParseClock(d.Close)
	if !ok {
		return window{}, false
	}
	if open == closeAt {
		return window{}, false
	}
	return window{open: open, close: closeAt}, true
}

// Valid reports whether the day describes a usable opening window.
func (d DayHours) Valid() bool {
	_, ok := d.window()
	return ok
}

// ParseClock converts "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
