// Package monitor wakes up exactly when the store opens or closes and
// broadcasts the new status.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pizzeria/internal/metrics"
	"pizzeria/internal/storehours"
)

// Config holds configuration for the monitor.
type Config struct {
	// MaxSleep caps a single timer delay. A boundary further away is reached
	// through intermediate wakes that recompute and rearm.
	MaxSleep time.Duration
	// RetryDelay is how long to wait after a failed load before trying again.
	RetryDelay time.Duration
	// LoadTimeout bounds a single load.
	LoadTimeout time.Duration
	// Location is the store time zone the schedule is written in.
	Location *time.Location
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		MaxSleep:    24 * time.Hour,
		RetryDelay:  60 * time.Second,
		LoadTimeout: 10 * time.Second,
		Location:    time.Local,
	}
}

type state int

const (
	stateIdle state = iota
	stateScheduled
	stateStopped
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateScheduled:
		return "scheduled"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Monitor owns a single pending wake-up timer aimed at the next boundary.
type Monitor struct {
	config Config
	loader Loader
	sink   Sink
	clock  Clock
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state state
	// started is separate from state because Refresh may arm the timer
	// before Start has installed the ctx watcher.
	started bool
	timer   Timer
	// gen invalidates callbacks of timers that were replaced or stopped but
	// may already be running.
	gen uint64
	// target is the instant the pending timer stands for. A wake before it is
	// an intermediate (capped) wake. Zero for retry timers.
	target time.Time
	wakeAt time.Time
}

// New creates a monitor. A nil clock means the system clock.
func New(config Config, loader Loader, sink Sink, clock Clock, logger zerolog.Logger) *Monitor {
	defaults := DefaultConfig()
	if config.MaxSleep <= 0 {
		config.MaxSleep = defaults.MaxSleep
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = defaults.LoadTimeout
	}
	if config.Location == nil {
		config.Location = defaults.Location
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if sink == nil {
		sink = Sinks(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		config: config,
		loader: loader,
		sink:   sink,
		clock:  clock,
		logger: logger.With().Str("component", "monitor").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start loads the current configuration and arms the first wake-up.
// It returns immediately; the monitor stops when ctx is done or Stop is called.
// Start has effect only once. If Refresh already armed a timer, that timer
// is kept and only the ctx watcher is installed.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.state == stateStopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	if m.state == stateIdle {
		m.state = stateScheduled
		m.reschedule(ctx, "")
	}
	m.mu.Unlock()

	m.logger.Info().
		Str("timezone", m.config.Location.String()).
		Dur("max_sleep", m.config.MaxSleep).
		Msg("store monitor started")

	go func() {
		select {
		case <-ctx.Done():
			m.Stop()
		case <-m.ctx.Done():
		}
	}()
}

// Refresh cancels any pending wake, recomputes the next boundary from a fresh
// load, rearms and notifies subscribers with ReasonRefresh. Load failures are
// logged and retried later; they are never returned.
func (m *Monitor) Refresh(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateStopped {
		return
	}
	m.state = stateScheduled
	metrics.IncMonitorRefresh()
	m.reschedule(ctx, ReasonRefresh)
}

// Stop cancels the pending wake. It is safe to call more than once and from
// any goroutine; no notification is emitted after it returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state == stateStopped {
		m.mu.Unlock()
		return
	}
	m.state = stateStopped
	m.disarm()
	m.mu.Unlock()

	m.cancel()
	m.logger.Info().Msg("store monitor stopped")
}

// State returns "idle", "scheduled" or "stopped".
func (m *Monitor) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.String()
}

// NextWake returns when the pending timer fires, if one is armed.
func (m *Monitor) NextWake() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer == nil {
		return time.Time{}, false
	}
	return m.wakeAt, true
}

// wake runs on the timer goroutine.
func (m *Monitor) wake(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateStopped || gen != m.gen {
		metrics.IncMonitorWake("stale")
		return
	}
	m.timer = nil

	now := m.now()
	if !m.target.IsZero() && now.Before(m.target) {
		// Capped or early wake: nothing changed yet, just rearm.
		metrics.IncMonitorWake("intermediate")
		m.logger.Debug().Time("target", m.target).Msg("intermediate wake, rescheduling")
		m.reschedule(m.ctx, "")
		return
	}

	metrics.IncMonitorWake("boundary")
	m.reschedule(m.ctx, ReasonBoundary)
}

// reschedule must be called with m.mu held. It replaces the pending timer
// with one computed from a fresh load and, when reason is set, notifies.
func (m *Monitor) reschedule(ctx context.Context, reason Reason) {
	m.disarm()

	loadCtx, cancel := context.WithTimeout(ctx, m.config.LoadTimeout)
	snap, err := m.loader.Load(loadCtx)
	cancel()
	if err != nil {
		metrics.IncMonitorLoadFailure()
		m.logger.Error().Err(err).
			Dur("retry_in", m.config.RetryDelay).
			Msg("failed to load store status, will retry")
		m.armRetry()
		return
	}

	now := m.now()
	view := storehours.Evaluate(snap, now)
	metrics.SetStoreClosed(view.Closed)

	if view.NextChangeAt == nil {
		metrics.SetNextBoundary(-1)
		m.logger.Debug().Bool("closed", view.Closed).Msg("no time-based boundary, timer not armed")
	} else {
		m.arm(now, *view.NextChangeAt)
	}

	if reason != "" {
		metrics.IncNotification(string(reason))
		m.sink.Notify(reason, view)
	}
}

// arm must be called with m.mu held.
func (m *Monitor) arm(now, target time.Time) {
	delay := target.Sub(now)
	if delay < 0 {
		delay = 0
	}
	metrics.SetNextBoundary(delay.Seconds())
	if delay > m.config.MaxSleep {
		delay = m.config.MaxSleep
	}

	m.gen++
	gen := m.gen
	m.target = target
	m.wakeAt = now.Add(delay)
	m.timer = m.clock.AfterFunc(delay, func() { m.wake(gen) })

	m.logger.Debug().
		Time("boundary", target).
		Dur("sleep", delay).
		Msg("next wake scheduled")
}

// armRetry must be called with m.mu held.
func (m *Monitor) armRetry() {
	m.gen++
	gen := m.gen
	m.target = time.Time{}
	m.wakeAt = m.now().Add(m.config.RetryDelay)
	m.timer = m.clock.AfterFunc(m.config.RetryDelay, func() { m.wake(gen) })
}

// disarm must be called with m.mu held.
func (m *Monitor) disarm() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.target = time.Time{}
}

func (m *Monitor) now() time.Time {
	return m.clock.Now().In(m.config.Location)
}
