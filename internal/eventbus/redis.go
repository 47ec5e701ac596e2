// Package eventbus relays selected local events between instances over Redis pub/sub.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pizzeria/internal/events"
)

const channelPrefix = "pizzeria:events:"

// Relay forwards local events of the configured topics to Redis and
// republishes events from other nodes on the local bus.
type Relay struct {
	client *redis.Client
	bus    *events.Bus
	nodeID string
	topics []string
	logger zerolog.Logger

	mu          sync.Mutex
	pubsub      *redis.PubSub
	unsubscribe []func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewRelay creates a relay. An empty nodeID gets a random one.
func NewRelay(client *redis.Client, bus *events.Bus, nodeID string, topics []string, logger zerolog.Logger) *Relay {
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	return &Relay{
		client: client,
		bus:    bus,
		nodeID: nodeID,
		topics: topics,
		logger: logger.With().Str("component", "eventbus").Str("node_id", nodeID).Logger(),
	}
}

// NodeID identifies this instance in relayed messages.
func (r *Relay) NodeID() string {
	return r.nodeID
}

// Start subscribes to Redis and to the local bus. It returns once the Redis
// subscription is confirmed.
func (r *Relay) Start(ctx context.Context) error {
	channels := make([]string, 0, len(r.topics))
	for _, t := range r.topics {
		channels = append(channels, channelPrefix+t)
	}

	pubsub := r.client.Subscribe(ctx, channels...)
	for range channels {
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return fmt.Errorf("subscribe redis channels: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.pubsub = pubsub
	r.cancel = cancel
	for _, topic := range r.topics {
		r.unsubscribe = append(r.unsubscribe, r.bus.Subscribe(topic, r.forward))
	}
	r.mu.Unlock()

	r.wg.Add(1)
	go r.receive(runCtx, pubsub)

	r.logger.Info().Strs("topics", r.topics).Msg("redis event relay started")
	return nil
}

// forward publishes a local event to Redis. Remote events are not forwarded again.
func (r *Relay) forward(event events.Event) error {
	if event.Remote {
		return nil
	}

	data, err := json.Marshal(message{
		Topic:   event.Topic,
		Payload: event.Payload,
		NodeID:  r.nodeID,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal relay message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, channelPrefix+event.Topic, data).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}

	r.logger.Debug().Str("topic", event.Topic).Msg("published event to redis")
	return nil
}

func (r *Relay) receive(ctx context.Context, pubsub *redis.PubSub) {
	defer r.wg.Done()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				r.logger.Warn().Msg("redis channel closed")
				return
			}

			var m message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.logger.Error().Err(err).Str("channel", msg.Channel).Msg("failed to unmarshal relay message")
				continue
			}
			// Skip messages from ourselves (prevent echo)
			if m.NodeID == r.nodeID {
				continue
			}

			r.bus.Publish(events.Event{
				Topic:     m.Topic,
				Payload:   m.Payload,
				CreatedAt: m.SentAt,
				Remote:    true,
			})
			r.logger.Debug().
				Str("topic", m.Topic).
				Str("source_node", m.NodeID).
				Msg("delivered remote event")
		}
	}
}

// Close stops relaying. It is safe to call more than once.
func (r *Relay) Close() error {
	r.mu.Lock()
	for _, unsub := range r.unsubscribe {
		unsub()
	}
	r.unsubscribe = nil
	cancel := r.cancel
	pubsub := r.pubsub
	r.cancel = nil
	r.pubsub = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if pubsub != nil {
		err = pubsub.Close()
	}
	r.wg.Wait()
	return err
}

type message struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	NodeID  string          `json:"node_id"`
	SentAt  time.Time       `json:"sent_at"`
}
