package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pizzeria/internal/events"
)

type collector struct {
	mu  sync.Mutex
	got []events.Event
}

func (c *collector) handle(e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, e)
	return nil
}

func (c *collector) remote() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, e := range c.got {
		if e.Remote {
			out = append(out, e)
		}
	}
	return out
}

func newNode(t *testing.T, mr *miniredis.Miniredis, id string) (*events.Bus, *Relay) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := events.NewBus(zerolog.Nop())
	relay := NewRelay(client, bus, id, []string{events.TopicConfigChanged}, zerolog.Nop())
	require.NoError(t, relay.Start(context.Background()))
	t.Cleanup(func() { _ = relay.Close() })
	return bus, relay
}

func TestRelay_DeliversToOtherNodes(t *testing.T) {
	mr := miniredis.RunT(t)

	busA, _ := newNode(t, mr, "node-a")
	busB, _ := newNode(t, mr, "node-b")

	var onA, onB collector
	busA.Subscribe(events.TopicConfigChanged, onA.handle)
	busB.Subscribe(events.TopicConfigChanged, onB.handle)

	busA.Publish(events.Event{Topic: events.TopicConfigChanged, Payload: []byte(`{"kind":"hours"}`)})

	require.Eventually(t, func() bool { return len(onB.remote()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := onB.remote()[0]
	assert.JSONEq(t, `{"kind":"hours"}`, string(got.Payload))
	assert.Equal(t, events.TopicConfigChanged, got.Topic)

	// No echo to the sender, and B does not bounce the event back.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, onA.remote())
	assert.Len(t, onB.remote(), 1)
}

func TestRelay_IgnoresOtherTopics(t *testing.T) {
	mr := miniredis.RunT(t)

	busA, _ := newNode(t, mr, "node-a")
	busB, _ := newNode(t, mr, "node-b")

	var onB collector
	busB.Subscribe(events.TopicStatusAdmin, onB.handle)

	busA.Publish(events.Event{Topic: events.TopicStatusAdmin, Payload: []byte(`{}`)})
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, onB.remote())
}

func TestRelay_CloseIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	_, relay := newNode(t, mr, "")

	assert.NotEmpty(t, relay.NodeID())
	assert.NoError(t, relay.Close())
	assert.NoError(t, relay.Close())
}

func TestRelay_StartFailsWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	relay := NewRelay(client, events.NewBus(zerolog.Nop()), "n", []string{events.TopicConfigChanged}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, relay.Start(ctx))
}
