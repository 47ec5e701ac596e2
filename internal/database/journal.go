package database

import (
	"context"
	"fmt"
	"time"
)

// Journal entry kinds.
const (
	KindStatus          = "status"
	KindHours           = "hours"
	KindOverrideExpired = "override_expired"
	KindHoursFile       = "hours_file"
)

// JournalEntry records one change of the store configuration.
type JournalEntry struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Actor     string    `json:"actor"`
	Closed    bool      `json:"closed"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendJournal stores an entry. A zero CreatedAt means now.
func (db *DB) AppendJournal(ctx context.Context, e JournalEntry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO store_journal (kind, actor, closed, details, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.Kind, e.Actor, e.Closed, e.Details, e.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("append journal: %w", err)
	}
	return res.LastInsertId()
}

// ListJournal returns entries with from <= created_at < to, oldest first.
func (db *DB) ListJournal(ctx context.Context, from, to time.Time) ([]JournalEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, actor, closed, details, created_at
		FROM store_journal
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at, id`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Actor, &e.Closed, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteJournalBefore removes entries older than t and reports how many.
func (db *DB) DeleteJournalBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM store_journal WHERE created_at < ?`, t.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete journal: %w", err)
	}
	return res.RowsAffected()
}
