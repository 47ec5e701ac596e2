// Package notify tells the managers on Telegram when the store opens or closes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"pizzeria/internal/metrics"
	"pizzeria/internal/monitor"
	"pizzeria/internal/storehours"
)

// Client is the part of *tgbotapi.BotAPI the notifier uses.
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			30 * time.Second,
		},
	}
}

// Config configures the notifier.
type Config struct {
	ChatIDs   []int64
	RateLimit float64 // messages per second
	Burst     int
	QueueSize int
	Retry     RetryConfig
	Location  *time.Location
}

// TelegramNotifier implements monitor.Sink. It only reports changes of the
// open/closed state; messages are delivered by Run.
type TelegramNotifier struct {
	client  Client
	config  Config
	limiter *rate.Limiter
	queue   chan string
	logger  zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	lastClosed *bool
}

// NewTelegramNotifier creates a notifier.
func NewTelegramNotifier(client Client, config Config, logger zerolog.Logger) *TelegramNotifier {
	if config.RateLimit <= 0 {
		config.RateLimit = 20
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.Retry.RetryDelays == nil {
		config.Retry = DefaultRetryConfig()
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return &TelegramNotifier{
		client:  client,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
		queue:   make(chan string, config.QueueSize),
		logger:  logger.With().Str("component", "telegram_notifier").Logger(),
		sleep:   sleepCtx,
	}
}

// Notify implements monitor.Sink. It never blocks.
func (n *TelegramNotifier) Notify(reason monitor.Reason, view storehours.View) {
	n.mu.Lock()
	if n.lastClosed != nil && *n.lastClosed == view.Closed {
		n.mu.Unlock()
		return
	}
	closed := view.Closed
	n.lastClosed = &closed
	n.mu.Unlock()

	text := FormatStatus(view, n.config.Location)
	select {
	case n.queue <- text:
	default:
		metrics.IncTelegramSend("dropped")
		n.logger.Warn().Str("reason", string(reason)).Msg("notification queue full, dropping message")
	}
}

// Run delivers queued messages until ctx is done.
func (n *TelegramNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-n.queue:
			for _, chatID := range n.config.ChatIDs {
				msg := tgbotapi.NewMessage(chatID, text)
				if err := n.sendWithRetry(ctx, msg); err != nil {
					n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to notify manager")
				}
			}
		}
	}
}

// SendDocument sends a file to every manager chat.
func (n *TelegramNotifier) SendDocument(ctx context.Context, filename string, data []byte, caption string) error {
	var errs []error
	for _, chatID := range n.config.ChatIDs {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: filename, Bytes: data})
		doc.Caption = caption
		if err := n.sendWithRetry(ctx, doc); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// sendWithRetry sends with rate limiting, honoring Telegram's retry_after.
func (n *TelegramNotifier) sendWithRetry(ctx context.Context, c tgbotapi.Chattable) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	maxRetries := n.config.Retry.MaxRetries
	delays := n.config.Retry.RetryDelays

	for attempt := 0; attempt <= maxRetries; attempt++ {
		_, err := n.client.Send(c)
		if err == nil {
			metrics.IncTelegramSend("sent")
			return nil
		}
		lastErr = err

		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			switch tgErr.Code {
			case 429: // Too Many Requests
				wait := time.Duration(tgErr.RetryAfter) * time.Second
				if wait == 0 {
					wait = delayFor(delays, attempt)
				}
				n.logger.Info().Dur("retry_after", wait).Int("attempt", attempt).Msg("rate limited by Telegram, waiting")
				if err := n.sleep(ctx, wait); err != nil {
					return err
				}
				continue

			case 400, 403: // Bad request or bot blocked
				metrics.IncTelegramSend("rejected")
				return fmt.Errorf("telegram rejected message: %w", err)
			}
		}

		if attempt < maxRetries {
			delay := delayFor(delays, attempt)
			n.logger.Info().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying telegram send")
			if err := n.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	metrics.IncTelegramSend("failed")
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func delayFor(delays []time.Duration, attempt int) time.Duration {
	if len(delays) == 0 {
		return time.Second
	}
	if attempt < len(delays) {
		return delays[attempt]
	}
	return delays[len(delays)-1]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FormatStatus renders a view for managers.
func FormatStatus(view storehours.View, loc *time.Location) string {
	var b strings.Builder
	if view.Closed {
		b.WriteString("🔴 The store is now CLOSED")
		if view.Reason != "" {
			fmt.Fprintf(&b, ": %s", view.Reason)
		}
	} else {
		b.WriteString("🟢 The store is now OPEN")
	}
	if view.ManualMode {
		b.WriteString("\nManual mode is on, the weekly schedule is ignored.")
	}
	if view.NextChangeAt != nil {
		verb := "Closes"
		if view.Closed {
			verb = "Opens"
		}
		fmt.Fprintf(&b, "\n%s %s", verb, view.NextChangeAt.In(loc).Format("Mon 02.01 15:04"))
	} else if view.Closed {
		b.WriteString("\nNo reopening time is set.")
	}
	return b.String()
}
