package monitor

import (
	"context"
	"time"

	"pizzeria/internal/storehours"
)

// Reason tells subscribers why a status notification was emitted.
type Reason string

const (
	// ReasonBoundary is emitted when the wake timer reaches a state change.
	ReasonBoundary Reason = "boundary"
	// ReasonRefresh is emitted after a configuration write asked for a refresh.
	ReasonRefresh Reason = "refresh"
)

// Loader reads the current status and weekly schedule.
type Loader interface {
	Load(ctx context.Context) (storehours.Snapshot, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (storehours.Snapshot, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context) (storehours.Snapshot, error) {
	return f(ctx)
}

// Sink receives every status notification.
//
// Notify is called while the monitor holds its lock, so notifications arrive
// in order. It must not block for long and must not call back into the Monitor.
type Sink interface {
	Notify(reason Reason, view storehours.View)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(reason Reason, view storehours.View)

// Notify calls f.
func (f SinkFunc) Notify(reason Reason, view storehours.View) {
	f(reason, view)
}

// Sinks fans a notification out to several sinks in order.
type Sinks []Sink

// Notify forwards to every non-nil sink.
func (s Sinks) Notify(reason Reason, view storehours.View) {
	for _, sink := range s {
		if sink != nil {
			sink.Notify(reason, view)
		}
	}
}

// Timer is a pending wake-up.
type Timer interface {
	// Stop prevents the timer from firing. It reports false if the timer
	// already fired or was stopped.
	Stop() bool
}

// Clock abstracts time so tests can drive the monitor.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc.
func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
