package storehours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2025-01-06 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.January, day, hour, minute, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func everyDay(open, closeAt string) WeeklySchedule {
	var s WeeklySchedule
	for i := range s {
		s[i] = DayHours{Enabled: true, Open: open, Close: closeAt}
	}
	return s
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"00:00", 0, true},
		{"09:30", 570, true},
		{"9:30", 570, true},
		{"23:59", 1439, true},
		{"24:00", 0, false},
		{"12:60", 0, false},
		{"noon", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseClock(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsClosed_Schedule(t *testing.T) {
	var sched WeeklySchedule
	sched[time.Monday] = DayHours{Enabled: true, Open: "18:00", Close: "23:00"}
	sched[time.Tuesday] = DayHours{Enabled: true, Open: "10:00", Close: "10:00"}
	sched[time.Wednesday] = DayHours{Enabled: true, Open: "10:00", Close: "bogus"}
	sched[time.Thursday] = DayHours{Enabled: false, Open: "10:00", Close: "20:00"}

	auto := Status{}

	tests := []struct {
		name   string
		now    time.Time
		closed bool
	}{
		{"before opening", at(6, 17, 59), true},
		{"at opening", at(6, 18, 0), false},
		{"inside window", at(6, 19, 0), false},
		{"last open minute", at(6, 22, 59), false},
		{"close instant is closed", at(6, 23, 0), true},
		{"zero width window", at(7, 10, 0), true},
		{"malformed close", at(8, 12, 0), true},
		{"disabled day", at(9, 12, 0), true},
		{"day without entry", at(10, 12, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.closed, IsClosed(auto, sched, tt.now))
		})
	}
}

func TestIsClosed_OvernightWindow(t *testing.T) {
	var sched WeeklySchedule
	sched[time.Monday] = DayHours{Enabled: true, Open: "22:00", Close: "02:00"}

	auto := Status{}
	assert.False(t, IsClosed(auto, sched, at(6, 23, 30)), "Monday 23:30 is inside Monday's window")
	assert.False(t, IsClosed(auto, sched, at(7, 1, 30)), "Tuesday 01:30 continues Monday's window")
	assert.True(t, IsClosed(auto, sched, at(7, 2, 0)), "close instant is closed")
	assert.True(t, IsClosed(auto, sched, at(7, 3, 0)))
	assert.True(t, IsClosed(auto, sched, at(6, 21, 59)))
}

func TestIsClosed_ManualOverridePrecedence(t *testing.T) {
	open := everyDay("00:00", "23:59")
	closed := Status{ClosedNow: true, Reason: "oven broken"}

	for _, now := range []time.Time{at(6, 0, 0), at(6, 12, 0), at(11, 23, 58)} {
		assert.True(t, IsClosed(closed, open, now))
	}

	expired := Status{ClosedNow: true, ReopenAt: ptr(at(6, 10, 0))}
	assert.True(t, IsClosed(expired, open, at(6, 12, 0)), "lapsed reopen time is not auto-cleared")
}

func TestIsClosed_Idempotent(t *testing.T) {
	sched := everyDay("11:00", "22:00")
	now := at(6, 13, 37)
	first := IsClosed(Status{}, sched, now)
	second := IsClosed(Status{}, sched, now)
	assert.Equal(t, first, second)
}

func TestScenarioA_OpenUntilClose(t *testing.T) {
	var sched WeeklySchedule
	sched[time.Monday] = DayHours{Enabled: true, Open: "18:00", Close: "23:00"}
	status := Status{}
	now := at(6, 19, 0)

	assert.False(t, IsClosed(status, sched, now))

	next, ok := NextBoundary(status, sched, now)
	require.True(t, ok)
	assert.Equal(t, at(6, 23, 0), next)
}

func TestScenarioB_ReopenAt(t *testing.T) {
	reopen := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)
	status := Status{ClosedNow: true, ReopenAt: &reopen}
	now := time.Date(2025, 1, 1, 19, 0, 0, 0, time.UTC)

	assert.True(t, IsClosed(status, everyDay("00:00", "23:59"), now))

	next, ok := NextBoundary(status, everyDay("00:00", "23:59"), now)
	require.True(t, ok)
	assert.Equal(t, reopen, next)
}

func TestScenarioC_ClosedIndefinitely(t *testing.T) {
	status := Status{ClosedNow: true}
	sched := everyDay("10:00", "22:00")

	for _, now := range []time.Time{at(6, 9, 0), at(6, 12, 0), at(12, 23, 0)} {
		assert.True(t, IsClosed(status, sched, now))
		_, ok := NextBoundary(status, sched, now)
		assert.False(t, ok)
	}
}

func TestScenarioD_ManualModeOpen(t *testing.T) {
	status := Status{ManualMode: true}
	var allClosed WeeklySchedule

	for _, now := range []time.Time{at(6, 3, 0), at(8, 12, 0), at(12, 23, 0)} {
		assert.False(t, IsClosed(status, allClosed, now))
		_, ok := NextBoundary(status, allClosed, now)
		assert.False(t, ok)
	}
}

func TestNextBoundary_AllDaysDisabled(t *testing.T) {
	sched := everyDay("10:00", "22:00")
	for i := range sched {
		sched[i].Enabled = false
	}

	for _, now := range []time.Time{at(6, 0, 0), at(7, 11, 0), at(12, 23, 59)} {
		assert.True(t, IsClosed(Status{}, sched, now))
		_, ok := NextBoundary(Status{}, sched, now)
		assert.False(t, ok)
	}
}

func TestNextBoundary_ZeroWidthDaysNeverBoundaries(t *testing.T) {
	sched := everyDay("12:00", "12:00")
	_, ok := NextBoundary(Status{}, sched, at(6, 8, 0))
	assert.False(t, ok)
}

func TestNextBoundary_ClosedPrefersToday(t *testing.T) {
	sched := everyDay("11:00", "22:00")
	next, ok := NextBoundary(Status{}, sched, at(6, 9, 15))
	require.True(t, ok)
	assert.Equal(t, at(6, 11, 0), next)
}

func TestNextBoundary_ClosedScansForwardToNextEnabledDay(t *testing.T) {
	var sched WeeklySchedule
	sched[time.Friday] = DayHours{Enabled: true, Open: "17:00", Close: "21:00"}

	next, ok := NextBoundary(Status{}, sched, at(6, 12, 0))
	require.True(t, ok)
	assert.Equal(t, at(10, 17, 0), next)
}

func TestNextBoundary_OnlyDayAlreadyPassedWrapsAWeek(t *testing.T) {
	var sched WeeklySchedule
	sched[time.Monday] = DayHours{Enabled: true, Open: "10:00", Close: "12:00"}

	next, ok := NextBoundary(Status{}, sched, at(6, 13, 0))
	require.True(t, ok)
	assert.Equal(t, at(13, 10, 0), next)
}

func TestNextBoundary_OvernightClose(t *testing.T) {
	var sched WeeklySchedule
	sched[time.Monday] = DayHours{Enabled: true, Open: "22:00", Close: "02:00"}

	next, ok := NextBoundary(Status{}, sched, at(6, 23, 0))
	require.True(t, ok)
	assert.Equal(t, at(7, 2, 0), next, "close falls on the next calendar day")

	next, ok = NextBoundary(Status{}, sched, at(7, 1, 0))
	require.True(t, ok)
	assert.Equal(t, at(7, 2, 0), next, "already past midnight closes the same calendar day")
}

func TestNextBoundary_AdjacentWindowsMerge(t *testing.T) {
	var sched WeeklySchedule
	sched[time.Monday] = DayHours{Enabled: true, Open: "20:00", Close: "00:00"}
	sched[time.Tuesday] = DayHours{Enabled: true, Open: "00:00", Close: "03:00"}

	next, ok := NextBoundary(Status{}, sched, at(6, 21, 0))
	require.True(t, ok)
	assert.Equal(t, at(7, 3, 0), next, "midnight hand-over is not a state change")
}

func TestNextBoundary_ReopenInPastHasNoBoundary(t *testing.T) {
	status := Status{ClosedNow: true, ReopenAt: ptr(at(6, 10, 0))}
	_, ok := NextBoundary(status, everyDay("00:00", "23:59"), at(6, 12, 0))
	assert.False(t, ok)
}

func TestNextBoundary_IsGenuineTransition(t *testing.T) {
	schedules := map[string]WeeklySchedule{
		"daily lunch and dinner": everyDay("11:30", "22:00"),
		"overnight weekends": func() WeeklySchedule {
			s := everyDay("11:00", "23:00")
			s[time.Friday] = DayHours{Enabled: true, Open: "18:00", Close: "03:00"}
			s[time.Saturday] = DayHours{Enabled: true, Open: "18:00", Close: "03:00"}
			s[time.Sunday] = DayHours{}
			return s
		}(),
		"single weekday": func() WeeklySchedule {
			var s WeeklySchedule
			s[time.Wednesday] = DayHours{Enabled: true, Open: "09:00", Close: "09:01"}
			return s
		}(),
		"overnight into disabled day": func() WeeklySchedule {
			var s WeeklySchedule
			s[time.Monday] = DayHours{Enabled: true, Open: "21:00", Close: "04:30"}
			return s
		}(),
	}

	for name, sched := range schedules {
		t.Run(name, func(t *testing.T) {
			for now := at(6, 0, 0); now.Before(at(13, 0, 0)); now = now.Add(37 * time.Minute) {
				next, ok := NextBoundary(Status{}, sched, now)
				require.True(t, ok, "expected a boundary after %s", now)
				require.True(t, next.After(now))

				before := IsClosed(Status{}, sched, next.Add(-time.Minute))
				after := IsClosed(Status{}, sched, next)
				assert.NotEqual(t, before, after, "boundary %s from %s is not a transition", next, now)
				assert.Equal(t, IsClosed(Status{}, sched, now), before, "state changed before %s", next)
			}
		})
	}
}

func TestNextBoundary_RespectsLocation(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	sched := everyDay("10:00", "22:00")

	now := time.Date(2025, 1, 6, 21, 0, 0, 0, loc)
	next, ok := NextBoundary(Status{}, sched, now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 6, 22, 0, 0, 0, loc), next)
	assert.Equal(t, time.Date(2025, 1, 6, 19, 0, 0, 0, time.UTC), next.UTC())
}

func TestEvaluate(t *testing.T) {
	reopen := at(6, 20, 0)
	snap := Snapshot{
		Status:   Status{ClosedNow: true, Reason: "private event", ReopenAt: &reopen},
		Schedule: everyDay("10:00", "23:00"),
	}

	v := Evaluate(snap, at(6, 18, 0))
	assert.True(t, v.Closed)
	assert.Equal(t, "private event", v.Reason)
	require.NotNil(t, v.NextChangeAt)
	assert.Equal(t, reopen, *v.NextChangeAt)
	assert.Equal(t, at(6, 18, 0), v.EvaluatedAt)

	c := v.Customer()
	assert.True(t, c.Closed)
	assert.Equal(t, "private event", c.Reason)
	assert.Equal(t, v.NextChangeAt, c.NextChangeAt)

	snap.Status = Status{}
	v = Evaluate(snap, at(6, 18, 0))
	assert.False(t, v.Closed)
	assert.Empty(t, v.Reason)
	assert.Nil(t, v.ReopenAt)
	require.NotNil(t, v.NextChangeAt)
	assert.Equal(t, at(6, 23, 0), *v.NextChangeAt)
}
