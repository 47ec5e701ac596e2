// Package audit exports the store change journal to Excel and delivers a
// monthly report to the managers.
package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds configuration for the audit service.
type Config struct {
	// RetentionDays is how long journal entries are kept. Default: 365.
	RetentionDays int

	// ExportOnStart runs the monthly export immediately on start.
	ExportOnStart bool

	Location *time.Location
}

// Service handles monthly journal exports and cleanup.
type Service struct {
	config   Config
	journal  Journal
	writer   func() ExcelWriter
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates an audit service. notifier may be nil.
func NewService(config Config, journal Journal, writerFactory func() ExcelWriter, notifier Notifier, logger zerolog.Logger) *Service {
	if config.RetentionDays <= 0 {
		config.RetentionDays = 365
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if writerFactory == nil {
		writerFactory = NewExcelizeWriter
	}
	return &Service{
		config:   config,
		journal:  journal,
		writer:   writerFactory,
		notifier: notifier,
		logger:   logger.With().Str("component", "audit").Logger(),
		now:      time.Now,
	}
}

// Export writes journal entries with from <= created_at < to as an xlsx workbook.
func (s *Service) Export(ctx context.Context, from, to time.Time, w io.Writer) (int, error) {
	entries, err := s.journal.ListJournal(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list journal: %w", err)
	}

	excel := s.writer()
	defer excel.Close()

	if err := excel.AddSheet("Journal"); err != nil {
		return 0, err
	}
	if err := excel.WriteHeader([]string{"ID", "Time", "Kind", "Actor", "Closed", "Details"}); err != nil {
		return 0, err
	}
	for _, e := range entries {
		row := []any{
			e.ID,
			e.CreatedAt.In(s.config.Location).Format("2006-01-02 15:04:05"),
			e.Kind,
			e.Actor,
			closedLabel(e.Closed),
			e.Details,
		}
		if err := excel.WriteRow(row); err != nil {
			return 0, fmt.Errorf("write row %d: %w", e.ID, err)
		}
	}

	if err := excel.AddSheet("Period"); err != nil {
		return 0, err
	}
	if err := excel.WriteHeader([]string{"From", "To", "Entries"}); err != nil {
		return 0, err
	}
	if err := excel.WriteRow([]any{
		from.In(s.config.Location).Format("2006-01-02"),
		to.In(s.config.Location).Format("2006-01-02"),
		len(entries),
	}); err != nil {
		return 0, err
	}

	if err := excel.Save(w); err != nil {
		return 0, fmt.Errorf("save excel: %w", err)
	}
	return len(entries), nil
}

// Start begins the monthly scheduler.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if s.config.ExportOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.RunExportAndCleanup(ctx)
		}()
	}

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info().Int("retention_days", s.config.RetentionDays).Msg("Audit service started")
}

// Stop gracefully stops the audit service.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Audit service stopped")
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	nextRun := s.nextFirstOfMonth()
	timer := time.NewTimer(time.Until(nextRun))
	defer timer.Stop()
	s.logger.Info().Time("time", nextRun).Msg("Next audit scheduled")

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.RunExportAndCleanup(ctx)

			nextRun = s.nextFirstOfMonth()
			timer.Reset(time.Until(nextRun))
			s.logger.Info().Time("time", nextRun).Msg("Next audit scheduled")
		}
	}
}

func (s *Service) nextFirstOfMonth() time.Time {
	now := s.now().In(s.config.Location)
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, s.config.Location)
}

// RunExportAndCleanup exports the previous month, sends it and then deletes
// entries past retention.
func (s *Service) RunExportAndCleanup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	if err := s.exportPreviousMonth(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to export audit data")
	}
	if err := s.cleanup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to cleanup old journal entries")
	}
}

func (s *Service) exportPreviousMonth(ctx context.Context) error {
	from, to := PreviousMonth(s.now().In(s.config.Location))

	var buf bytes.Buffer
	n, err := s.Export(ctx, from, to, &buf)
	if err != nil {
		return err
	}

	if s.notifier == nil {
		s.logger.Info().Int("entries", n).Msg("Audit export done, no notifier configured")
		return nil
	}

	filename := GenerateFilename(from)
	caption := fmt.Sprintf("📊 Store journal for %s (%d entries)", from.Format("January 2006"), n)
	if err := s.notifier.SendDocument(ctx, filename, buf.Bytes(), caption); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	s.logger.Info().Str("filename", filename).Int("entries", n).Msg("Audit report sent")
	return nil
}

func (s *Service) cleanup(ctx context.Context) error {
	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	deleted, err := s.journal.DeleteJournalBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete old journal entries: %w", err)
	}
	s.logger.Info().
		Int64("deleted_count", deleted).
		Int("retention_days", s.config.RetentionDays).
		Msg("Cleaned up old journal entries")
	return nil
}

func closedLabel(b bool) string {
	if b {
		return "closed"
	}
	return "open"
}
