package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Topics published on the bus.
const (
	TopicStatusAdmin    = "store.status.admin"
	TopicStatusCustomer = "store.status.customer"
	TopicConfigChanged  = "store.config.changed"
)

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Topic     string
	Payload   []byte
	CreatedAt time.Time
	// Remote is set for events received from another instance.
	Remote bool
}

// Handler reacts to an event.
type Handler func(event Event) error

// Bus provides in-process pub/sub for events.
type Bus struct {
	subscribers map[string][]subscription
	nextID      int
	mu          sync.RWMutex
	logger      zerolog.Logger
}

type subscription struct {
	id      int
	handler Handler
}

// NewBus constructs an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]subscription),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a topic. The returned function removes it.
func (b *Bus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subscribers[topic] = append(b.subscribers[topic], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[topic]
		for i, s := range subs {
			if s.id == id {
				b.subscribers[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish notifies subscribers of the event topic.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[event.Topic]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, s := range subs {
		// Handlers run synchronously; caller decides concurrency model.
		if err := s.handler(event); err != nil {
			b.logger.Warn().Err(err).
				Str("topic", event.Topic).
				Str("event_id", event.ID).
				Msg("event handler failed")
		}
	}
}
