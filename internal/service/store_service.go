// Package service is the configuration store for the pizzeria status: every
// write goes through it, is journaled and triggers a monitor refresh.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pizzeria/internal/database"
	"pizzeria/internal/events"
	"pizzeria/internal/storehours"
)

var (
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrInvalidStatus   = errors.New("invalid status")
)

// Repository is the persistence the service needs.
type Repository interface {
	GetStatus(ctx context.Context) (storehours.Status, error)
	SaveStatus(ctx context.Context, s storehours.Status) error
	ClearClosure(ctx context.Context, seen storehours.Status) (bool, error)
	GetSchedule(ctx context.Context) (storehours.WeeklySchedule, error)
	SaveDay(ctx context.Context, day time.Weekday, h storehours.DayHours) error
	ReplaceSchedule(ctx context.Context, s storehours.WeeklySchedule) error
	EnsureDefaultSchedule(ctx context.Context, s storehours.WeeklySchedule) (int, error)
	AppendJournal(ctx context.Context, e database.JournalEntry) (int64, error)
}

// Cache is an optional read-through cache in front of the repository.
type Cache interface {
	Load(ctx context.Context) (storehours.Snapshot, error)
	Invalidate(ctx context.Context)
}

// Refresher is the monitor as seen by the service.
type Refresher interface {
	Refresh(ctx context.Context)
}

// StatusUpdate is an admin request to change the manual status.
type StatusUpdate struct {
	ClosedNow  bool       `json:"closed_now"`
	Reason     string     `json:"reason"`
	ReopenAt   *time.Time `json:"reopen_at"`
	ManualMode bool       `json:"manual_mode"`
}

// StoreService owns the store configuration.
type StoreService struct {
	repo     Repository
	cache    Cache
	bus      *events.Bus
	location *time.Location
	now      func() time.Time
	logger   zerolog.Logger

	mu        sync.Mutex
	refresher Refresher
}

// NewStoreService creates the service. cache and bus may be nil.
func NewStoreService(repo Repository, cache Cache, bus *events.Bus, location *time.Location, logger zerolog.Logger) *StoreService {
	if location == nil {
		location = time.Local
	}
	return &StoreService{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		location: location,
		now:      time.Now,
		logger:   logger.With().Str("component", "store_service").Logger(),
	}
}

// SetRefresher connects the monitor. The monitor loads through the service,
// so it can only be attached after both exist.
func (s *StoreService) SetRefresher(r Refresher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresher = r
}

// Load implements monitor.Loader.
func (s *StoreService) Load(ctx context.Context) (storehours.Snapshot, error) {
	return s.Snapshot(ctx)
}

// Snapshot returns the current status and schedule. A manual closure whose
// reopen time has passed is cleared and persisted first, unless an admin
// write replaced it in the meantime; then the fresh row is returned.
func (s *StoreService) Snapshot(ctx context.Context) (storehours.Snapshot, error) {
	snap, err := s.read(ctx)
	if err != nil {
		return storehours.Snapshot{}, err
	}

	st := snap.Status
	if !st.ClosedNow || st.ReopenAt == nil || st.ReopenAt.After(s.now()) {
		return snap, nil
	}

	cleared, err := s.repo.ClearClosure(ctx, st)
	if err != nil {
		return storehours.Snapshot{}, fmt.Errorf("clear expired closure: %w", err)
	}
	s.invalidate(ctx)
	if !cleared {
		s.logger.Debug().Time("reopen_at", *st.ReopenAt).Msg("expired closure already replaced")
		return s.read(ctx)
	}

	s.journal(ctx, database.JournalEntry{
		Kind:    database.KindOverrideExpired,
		Actor:   "system",
		Closed:  false,
		Details: fmt.Sprintf("reopen_at %s reached, reason was %q", st.ReopenAt.In(s.location).Format(time.RFC3339), st.Reason),
	})
	s.logger.Info().Time("reopen_at", *st.ReopenAt).Msg("manual closure expired")

	snap.Status = storehours.Status{ManualMode: st.ManualMode}
	return snap, nil
}

// Current evaluates the store status now in the store time zone.
func (s *StoreService) Current(ctx context.Context) (storehours.View, storehours.WeeklySchedule, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return storehours.View{}, storehours.WeeklySchedule{}, err
	}
	return storehours.Evaluate(snap, s.now().In(s.location)), snap.Schedule, nil
}

// SetStatus validates and stores a manual status change.
func (s *StoreService) SetStatus(ctx context.Context, actor string, u StatusUpdate) error {
	if u.ReopenAt != nil {
		if !u.ClosedNow {
			return fmt.Errorf("%w: reopen_at requires closed_now", ErrInvalidStatus)
		}
		if !u.ReopenAt.After(s.now()) {
			return fmt.Errorf("%w: reopen_at must be in the future", ErrInvalidStatus)
		}
	}
	if len(u.Reason) > 500 {
		return fmt.Errorf("%w: reason is too long", ErrInvalidStatus)
	}

	status := storehours.Status{
		ClosedNow:  u.ClosedNow,
		Reason:     u.Reason,
		ReopenAt:   u.ReopenAt,
		ManualMode: u.ManualMode,
	}
	if !status.ClosedNow {
		status.Reason = ""
	}
	if err := s.repo.SaveStatus(ctx, status); err != nil {
		return err
	}

	details := fmt.Sprintf("closed_now=%t manual_mode=%t reason=%q", status.ClosedNow, status.ManualMode, status.Reason)
	if status.ReopenAt != nil {
		details += " reopen_at=" + status.ReopenAt.In(s.location).Format(time.RFC3339)
	}
	s.changed(ctx, actor, database.KindStatus, status.ClosedNow, details)
	return nil
}

// SetDay validates and stores the hours of one weekday.
func (s *StoreService) SetDay(ctx context.Context, actor string, day time.Weekday, h storehours.DayHours) error {
	if err := validateDay(h); err != nil {
		return fmt.Errorf("%s: %w", day, err)
	}
	if err := s.repo.SaveDay(ctx, day, h); err != nil {
		if errors.Is(err, database.ErrInvalidDay) {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		return err
	}
	s.changed(ctx, actor, database.KindHours, false, fmt.Sprintf("%s enabled=%t %s-%s", day, h.Enabled, h.Open, h.Close))
	return nil
}

// SetSchedule replaces the whole week in one transaction.
func (s *StoreService) SetSchedule(ctx context.Context, actor string, schedule storehours.WeeklySchedule) error {
	for d, h := range schedule {
		if err := validateDay(h); err != nil {
			return fmt.Errorf("%s: %w", time.Weekday(d), err)
		}
	}
	if err := s.repo.ReplaceSchedule(ctx, schedule); err != nil {
		return err
	}
	s.changed(ctx, actor, database.KindHours, false, "weekly schedule replaced")
	return nil
}

// SeedSchedule fills the weekdays that have no stored hours yet. Existing
// days are never overwritten. It reports how many days were created.
func (s *StoreService) SeedSchedule(ctx context.Context, source string, schedule storehours.WeeklySchedule) (int, error) {
	for d, h := range schedule {
		if err := validateDay(h); err != nil {
			return 0, fmt.Errorf("%s: %w", time.Weekday(d), err)
		}
	}
	seeded, err := s.repo.EnsureDefaultSchedule(ctx, schedule)
	if err != nil {
		return 0, err
	}
	if seeded == 0 {
		return 0, nil
	}
	s.changed(ctx, "system", database.KindHoursFile, false, fmt.Sprintf("seeded %d days from %s", seeded, source))
	return seeded, nil
}

// ApplyRemoteChange reacts to a configuration change made by another instance.
func (s *StoreService) ApplyRemoteChange(ctx context.Context) {
	s.invalidate(ctx)
	s.refresh(ctx)
}

// HandleConfigChanged is the bus handler for remote configuration changes.
func (s *StoreService) HandleConfigChanged(e events.Event) error {
	if !e.Remote {
		return nil
	}
	s.logger.Debug().Str("event_id", e.ID).Msg("remote configuration change")
	s.ApplyRemoteChange(context.Background())
	return nil
}

func validateDay(h storehours.DayHours) error {
	if !h.Enabled {
		return nil
	}
	if _, ok := storehours.ParseClock(h.Open); !ok {
		return fmt.Errorf("%w: open %q is not HH:MM", ErrInvalidSchedule, h.Open)
	}
	if _, ok := storehours.ParseClock(h.Close); !ok {
		return fmt.Errorf("%w: close %q is not HH:MM", ErrInvalidSchedule, h.Close)
	}
	if h.Open == h.Close {
		return fmt.Errorf("%w: open and close are equal", ErrInvalidSchedule)
	}
	return nil
}

// changed runs after every successful write.
func (s *StoreService) changed(ctx context.Context, actor, kind string, closed bool, details string) {
	if actor == "" {
		actor = "unknown"
	}
	s.invalidate(ctx)
	s.journal(ctx, database.JournalEntry{Kind: kind, Actor: actor, Closed: closed, Details: details})
	s.refresh(ctx)

	if s.bus != nil {
		if err := events.PublishConfigChanged(s.bus, events.ConfigChanged{Kind: kind, Actor: actor, ChangedAt: s.now()}); err != nil {
			s.logger.Error().Err(err).Msg("publish config change")
		}
	}
	s.logger.Info().Str("actor", actor).Str("kind", kind).Str("details", details).Msg("store configuration changed")
}

func (s *StoreService) read(ctx context.Context) (storehours.Snapshot, error) {
	if s.cache != nil {
		return s.cache.Load(ctx)
	}
	status, err := s.repo.GetStatus(ctx)
	if err != nil {
		return storehours.Snapshot{}, err
	}
	schedule, err := s.repo.GetSchedule(ctx)
	if err != nil {
		return storehours.Snapshot{}, err
	}
	return storehours.Snapshot{Status: status, Schedule: schedule}, nil
}

func (s *StoreService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func (s *StoreService) journal(ctx context.Context, e database.JournalEntry) {
	if _, err := s.repo.AppendJournal(ctx, e); err != nil {
		s.logger.Error().Err(err).Str("kind", e.Kind).Msg("append journal")
	}
}

func (s *StoreService) refresh(ctx context.Context) {
	s.mu.Lock()
	r := s.refresher
	s.mu.Unlock()
	if r != nil {
		r.Refresh(ctx)
	}
}
