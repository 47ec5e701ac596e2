package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"pizzeria/internal/database"
)

// Journal provides access to the store change journal.
type Journal interface {
	ListJournal(ctx context.Context, from, to time.Time) ([]database.JournalEntry, error)
	DeleteJournalBefore(ctx context.Context, t time.Time) (int64, error)
}

// ExcelWriter writes data to Excel format.
type ExcelWriter interface {
	// AddSheet adds a new sheet with the given name.
	AddSheet(name string) error

	// WriteHeader writes column headers to current sheet.
	WriteHeader(columns []string) error

	// WriteRow writes a data row to current sheet.
	WriteRow(row []any) error

	// Save writes the Excel file to the writer.
	Save(w io.Writer) error

	Close() error
}

// Notifier delivers reports to managers.
type Notifier interface {
	SendDocument(ctx context.Context, filename string, data []byte, caption string) error
}

// GenerateFilename creates a filename like "store_journal_2026-01.xlsx".
func GenerateFilename(month time.Time) string {
	return fmt.Sprintf("store_journal_%s.xlsx", month.Format("2006-01"))
}

// PreviousMonth returns the first instant of the month before t and of t's month.
func PreviousMonth(t time.Time) (from, to time.Time) {
	to = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	from = to.AddDate(0, -1, 0)
	return from, to
}
