package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pizzeria/internal/monitor"
	"pizzeria/internal/storehours"
)

func countingLoader(snap storehours.Snapshot, err error, calls *int) monitor.Loader {
	return monitor.LoaderFunc(func(ctx context.Context) (storehours.Snapshot, error) {
		*calls++
		return snap, err
	})
}

func sampleSnapshot() storehours.Snapshot {
	reopen := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)
	var s storehours.Snapshot
	s.Status = storehours.Status{ClosedNow: true, Reason: "renovation", ReopenAt: &reopen}
	s.Schedule[time.Friday] = storehours.DayHours{Enabled: true, Open: "18:00", Close: "02:00"}
	return s
}

func TestSnapshotCache_ReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	calls := 0
	want := sampleSnapshot()
	c := NewSnapshotCache(countingLoader(want, nil, &calls), client, time.Minute, zerolog.Nop())

	got, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, mr.Exists(DefaultKey))

	got2, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second load served from redis")
	assert.Equal(t, got.Schedule, got2.Schedule)
	assert.True(t, want.Status.ReopenAt.Equal(*got2.Status.ReopenAt))

	c.Invalidate(context.Background())
	assert.False(t, mr.Exists(DefaultKey))
	_, err = c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSnapshotCache_InvalidateDuringLoadIsNotOverwritten(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	stale := sampleSnapshot()
	fresh := storehours.Snapshot{}

	var c *SnapshotCache
	calls := 0
	loader := monitor.LoaderFunc(func(ctx context.Context) (storehours.Snapshot, error) {
		calls++
		if calls == 1 {
			// An admin write commits and invalidates after sqlite was read.
			c.Invalidate(ctx)
			return stale, nil
		}
		return fresh, nil
	})
	c = NewSnapshotCache(loader, client, time.Minute, zerolog.Nop())

	got, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Status.ClosedNow, "the caller still gets what it loaded")
	assert.False(t, mr.Exists(DefaultKey), "a load that raced an invalidation is not cached")

	got, err = c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.False(t, got.Status.ClosedNow)
	assert.True(t, mr.Exists(DefaultKey))

	_, err = c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "an undisturbed load is cached")
}

func TestSnapshotCache_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	calls := 0
	c := NewSnapshotCache(countingLoader(sampleSnapshot(), nil, &calls), client, 30*time.Second, zerolog.Nop())

	_, _ = c.Load(context.Background())
	mr.FastForward(31 * time.Second)
	_, _ = c.Load(context.Background())
	assert.Equal(t, 2, calls)
}

func TestSnapshotCache_ErrorsAreNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	calls := 0
	c := NewSnapshotCache(countingLoader(storehours.Snapshot{}, errors.New("locked"), &calls), client, time.Minute, zerolog.Nop())

	_, err := c.Load(context.Background())
	assert.Error(t, err)
	assert.False(t, mr.Exists(DefaultKey))
}

func TestSnapshotCache_FallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	calls := 0
	c := NewSnapshotCache(countingLoader(sampleSnapshot(), nil, &calls), client, time.Minute, zerolog.Nop())

	snap, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Status.ClosedNow)
	assert.Equal(t, 1, calls)
	c.Invalidate(context.Background())
}

func TestSnapshotCache_Disabled(t *testing.T) {
	calls := 0
	c := NewSnapshotCache(countingLoader(sampleSnapshot(), nil, &calls), nil, time.Minute, zerolog.Nop())

	_, _ = c.Load(context.Background())
	_, _ = c.Load(context.Background())
	c.Invalidate(context.Background())
	assert.Equal(t, 2, calls)
}
