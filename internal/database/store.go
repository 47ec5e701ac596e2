package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pizzeria/internal/storehours"
)

// GetStatus returns the manual status. If no row exists, the store is open
// and follows its schedule.
func (db *DB) GetStatus(ctx context.Context) (storehours.Status, error) {
	var s storehours.Status
	var reopenAt sql.NullTime
	err := db.QueryRowContext(ctx, `
		SELECT closed_now, reason, reopen_at, manual_mode
		FROM store_status
		WHERE id = 1`,
	).Scan(&s.ClosedNow, &s.Reason, &reopenAt, &s.ManualMode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storehours.Status{}, nil
		}
		return storehours.Status{}, fmt.Errorf("get status: %w", err)
	}
	if reopenAt.Valid {
		t := reopenAt.Time
		s.ReopenAt = &t
	}
	return s, nil
}

// SaveStatus creates or updates the manual status.
func (db *DB) SaveStatus(ctx context.Context, s storehours.Status) error {
	var reopenAt any
	if s.ReopenAt != nil {
		reopenAt = s.ReopenAt.UTC()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO store_status (id, closed_now, reason, reopen_at, manual_mode, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			closed_now = excluded.closed_now,
			reason = excluded.reason,
			reopen_at = excluded.reopen_at,
			manual_mode = excluded.manual_mode,
			updated_at = excluded.updated_at`,
		s.ClosedNow, s.Reason, reopenAt, s.ManualMode, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save status: %w", err)
	}
	return nil
}

// ClearClosure reopens the store only if the row still holds the closure
// that was read earlier. It reports whether the row was changed; false means
// another writer got there first. manual_mode is left as it is.
func (db *DB) ClearClosure(ctx context.Context, seen storehours.Status) (bool, error) {
	if !seen.ClosedNow || seen.ReopenAt == nil {
		return false, nil
	}
	res, err := db.ExecContext(ctx, `
		UPDATE store_status
		SET closed_now = 0, reason = '', reopen_at = NULL, updated_at = ?
		WHERE id = 1 AND closed_now = 1 AND reason = ? AND reopen_at = ?`,
		time.Now().UTC(), seen.Reason, seen.ReopenAt.UTC())
	if err != nil {
		return false, fmt.Errorf("clear closure: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("clear closure: %w", err)
	}
	return n == 1, nil
}

// GetSchedule returns the weekly hours. Days without a row are closed.
func (db *DB) GetSchedule(ctx context.Context) (storehours.WeeklySchedule, error) {
	var s storehours.WeeklySchedule

	rows, err := db.QueryContext(ctx, `
		SELECT day_of_week, enabled, open_time, close_time
		FROM store_hours
		ORDER BY day_of_week`)
	if err != nil {
		return s, fmt.Errorf("get schedule: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var day int
		var h storehours.DayHours
		if err := rows.Scan(&day, &h.Enabled, &h.Open, &h.Close); err != nil {
			return s, fmt.Errorf("scan schedule: %w", err)
		}
		if day < 0 || day > 6 {
			continue
		}
		s[day] = h
	}
	return s, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveDay(ctx context.Context, ex execer, day time.Weekday, h storehours.DayHours) error {
	if day < time.Sunday || day > time.Saturday {
		return ErrInvalidDay
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO store_hours (day_of_week, enabled, open_time, close_time, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(day_of_week) DO UPDATE SET
			enabled = excluded.enabled,
			open_time = excluded.open_time,
			close_time = excluded.close_time,
			updated_at = excluded.updated_at`,
		int(day), h.Enabled, h.Open, h.Close, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save day %d: %w", day, err)
	}
	return nil
}

// SaveDay creates or updates a single weekday.
func (db *DB) SaveDay(ctx context.Context, day time.Weekday, h storehours.DayHours) error {
	return saveDay(ctx, db, day, h)
}

// ReplaceSchedule writes all seven days in one transaction.
func (db *DB) ReplaceSchedule(ctx context.Context, s storehours.WeeklySchedule) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for d, h := range s {
		if err := saveDay(ctx, tx, time.Weekday(d), h); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule: %w", err)
	}
	return nil
}

// EnsureDefaultSchedule seeds the days that have no row yet. It reports how
// many days were created.
func (db *DB) EnsureDefaultSchedule(ctx context.Context, s storehours.WeeklySchedule) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := 0
	for d, h := range s {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO store_hours (day_of_week, enabled, open_time, close_time, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(day_of_week) DO NOTHING`,
			d, h.Enabled, h.Open, h.Close, time.Now().UTC())
		if err != nil {
			return 0, fmt.Errorf("seed day %d: %w", d, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	if created > 0 {
		db.logger.Info().Int("days", created).Msg("Seeded default store hours")
	}
	return created, nil
}

// Load reads status and schedule together.
func (db *DB) Load(ctx context.Context) (storehours.Snapshot, error) {
	status, err := db.GetStatus(ctx)
	if err != nil {
		return storehours.Snapshot{}, err
	}
	schedule, err := db.GetSchedule(ctx)
	if err != nil {
		return storehours.Snapshot{}, err
	}
	return storehours.Snapshot{Status: status, Schedule: schedule}, nil
}
