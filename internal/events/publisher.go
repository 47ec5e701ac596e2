package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"pizzeria/internal/monitor"
	"pizzeria/internal/storehours"
)

// StatusMessage is the payload of the status topics.
type StatusMessage struct {
	Reason monitor.Reason `json:"reason"`
	Status any            `json:"status"`
}

// ConfigChanged is the payload of TopicConfigChanged.
type ConfigChanged struct {
	Kind      string    `json:"kind"`
	Actor     string    `json:"actor"`
	ChangedAt time.Time `json:"changed_at"`
}

// StatusPublisher turns monitor notifications into bus events, one for
// admins and one for customers.
type StatusPublisher struct {
	bus    *Bus
	logger zerolog.Logger
}

// NewStatusPublisher creates a publisher on bus.
func NewStatusPublisher(bus *Bus, logger zerolog.Logger) *StatusPublisher {
	return &StatusPublisher{bus: bus, logger: logger.With().Str("component", "status_publisher").Logger()}
}

// Notify implements monitor.Sink.
func (p *StatusPublisher) Notify(reason monitor.Reason, view storehours.View) {
	p.publish(TopicStatusAdmin, StatusMessage{Reason: reason, Status: view})
	p.publish(TopicStatusCustomer, StatusMessage{Reason: reason, Status: view.Customer()})
}

func (p *StatusPublisher) publish(topic string, msg StatusMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Msg("marshal status event")
		return
	}
	p.bus.Publish(Event{Topic: topic, Payload: payload})
}

// PublishConfigChanged announces a configuration write.
func PublishConfigChanged(bus *Bus, change ConfigChanged) error {
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now()
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	bus.Publish(Event{Topic: TopicConfigChanged, Payload: payload, CreatedAt: change.ChangedAt})
	return nil
}
