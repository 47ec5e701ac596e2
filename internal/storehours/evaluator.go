package storehours

import (
	"sort"
	"time"
)

// lookaheadDays bounds the forward scan for the next state change.
// Today plus seven more days covers a store that opens once a week.
const lookaheadDays = 8

// IsClosed reports whether the store is closed at now.
//
// A manual closure always wins, even when ReopenAt has already passed; clearing
// it is the configuration store's job. Manual mode without a closure is open.
// Otherwise the weekly schedule decides, evaluated on the wall clock of now.
func IsClosed(status Status, schedule WeeklySchedule, now time.Time) bool {
	if status.ClosedNow {
		return true
	}
	if status.ManualMode {
		return false
	}
	return !schedule.openAt(now)
}

// openAt evaluates the schedule at minute precision. An overnight window of
// the previous day still counts after midnight.
func (s WeeklySchedule) openAt(now time.Time) bool {
	m := now.Hour()*60 + now.Minute()
	today := now.Weekday()

	if w, ok := s.Day(today).window(); ok && w.contains(m) {
		return true
	}
	yesterday := (today + 6) % 7
	if w, ok := s.Day(yesterday).window(); ok && w.overnight() && m < w.close {
		return true
	}
	return false
}

// NextBoundary returns the earliest instant after now at which IsClosed would
// return a different value than it does at now. It reports false when no
// time-based change exists: an open-ended manual closure, manual mode, or a
// schedule with no change within the lookahead.
func NextBoundary(status Status, schedule WeeklySchedule, now time.Time) (time.Time, bool) {
	if status.ClosedNow {
		if status.ReopenAt != nil && status.ReopenAt.After(now) {
			return *status.ReopenAt, true
		}
		return time.Time{}, false
	}
	if status.ManualMode {
		return time.Time{}, false
	}

	closed := IsClosed(status, schedule, now)
	for _, c := range schedule.candidates(now) {
		if !c.After(now) {
			continue
		}
		if IsClosed(status, schedule, c) != closed {
			return c, true
		}
	}
	return time.Time{}, false
}

// candidates lists, in order, every instant in the lookahead at which the
// schedule state can change: each instant whose wall clock shows midnight or a
// configured open or close minute, plus every zone offset change. Between two
// consecutive candidates the wall clock advances without crossing a mark, so
// the state is constant.
//
// A wall time inside a spring-forward gap has no instant; the offset change
// that skips it is the candidate instead. A wall time inside a fall-back
// overlap has two instants and both are listed.
func (s WeeklySchedule) candidates(now time.Time) []time.Time {
	marks := map[int]struct{}{0: {}}
	for _, d := range s {
		if w, ok := d.window(); ok {
			marks[w.open] = struct{}{}
			marks[w.close] = struct{}{}
		}
	}
	minutes := make([]int, 0, len(marks))
	for m := range marks {
		minutes = append(minutes, m)
	}
	sort.Ints(minutes)

	loc := now.Location()
	y, mo, d := now.Date()
	// An overlap that is still in progress began with a transition before now.
	from := time.Date(y, mo, d-1, 0, 0, 0, 0, loc)
	horizon := time.Date(y, mo, d+lookaheadDays+1, 0, 0, 0, 0, loc)
	transitions, shifts := zoneTransitions(from, horizon)

	out := make([]time.Time, 0, len(minutes)*(lookaheadDays+1)+len(transitions))
	out = append(out, transitions...)
	for off := 0; off <= lookaheadDays; off++ {
		for _, m := range minutes {
			out = append(out, wallInstants(y, mo, d+off, m, loc, shifts)...)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// maxTransitions bounds the zone walk; real zones change at most a few times
// in the lookahead.
const maxTransitions = 16

// zoneTransitions returns the instants in (from, to] at which the UTC offset
// of from's location changes, and the distinct absolute offset shifts.
func zoneTransitions(from, to time.Time) ([]time.Time, []time.Duration) {
	var at []time.Time
	var shifts []time.Duration
	t := from
	for i := 0; i < maxTransitions; i++ {
		_, end := t.ZoneBounds()
		if end.IsZero() || end.After(to) {
			break
		}
		_, before := t.Zone()
		_, after := end.Zone()
		at = append(at, end)
		if shift := time.Duration(after-before) * time.Second; shift != 0 {
			if shift < 0 {
				shift = -shift
			}
			shifts = appendUnique(shifts, shift)
		}
		t = end
	}
	return at, shifts
}

// wallInstants returns every instant whose wall clock in loc reads minute m
// of the given calendar day: none in a gap, two in an overlap.
func wallInstants(y int, mo time.Month, day, m int, loc *time.Location, shifts []time.Duration) []time.Time {
	want := time.Date(y, mo, day, m/60, m%60, 0, 0, time.UTC)
	base := time.Date(y, mo, day, m/60, m%60, 0, 0, loc)

	var out []time.Time
	try := func(t time.Time) {
		if !sameWall(t, want) {
			return
		}
		for _, o := range out {
			if o.Equal(t) {
				return
			}
		}
		out = append(out, t)
	}
	try(base)
	for _, shift := range shifts {
		try(base.Add(shift))
		try(base.Add(-shift))
	}
	return out
}

func sameWall(t, want time.Time) bool {
	ty, tm, td := t.Date()
	wy, wm, wd := want.Date()
	return ty == wy && tm == wm && td == wd && t.Hour() == want.Hour() && t.Minute() == want.Minute()
}

func appendUnique(list []time.Duration, d time.Duration) []time.Duration {
	for _, v := range list {
		if v == d {
			return list
		}
	}
	return append(list, d)
}

// View is the public status derived from a snapshot at one instant.
type View struct {
	Closed       bool       `json:"closed"`
	Reason       string     `json:"reason,omitempty"`
	ManualMode   bool       `json:"manual_mode"`
	ReopenAt     *time.Time `json:"reopen_at,omitempty"`
	NextChangeAt *time.Time `json:"next_change_at,omitempty"`
	EvaluatedAt  time.Time  `json:"evaluated_at"`
}

// CustomerView is the subset of View shown on the storefront.
type CustomerView struct {
	Closed       bool       `json:"closed"`
	Reason       string     `json:"reason,omitempty"`
	NextChangeAt *time.Time `json:"next_change_at,omitempty"`
}

// Evaluate computes the view of a snapshot at now.
func Evaluate(snap Snapshot, now time.Time) View {
	v := View{
		Closed:      IsClosed(snap.Status, snap.Schedule, now),
		ManualMode:  snap.Status.ManualMode,
		EvaluatedAt: now,
	}
	if snap.Status.ClosedNow {
		v.Reason = snap.Status.Reason
		v.ReopenAt = snap.Status.ReopenAt
	}
	if next, ok := NextBoundary(snap.Status, snap.Schedule, now); ok {
		v.NextChangeAt = &next
	}
	return v
}

// Customer strips admin-only fields.
func (v View) Customer() CustomerView {
	return CustomerView{
		Closed:       v.Closed,
		Reason:       v.Reason,
		NextChangeAt: v.NextChangeAt,
	}
}
