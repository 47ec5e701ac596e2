// Package cache keeps the store snapshot in Redis so that status reads do not
// hit sqlite on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pizzeria/internal/monitor"
	"pizzeria/internal/storehours"
)

// DefaultKey is the Redis key of the cached snapshot.
const DefaultKey = "pizzeria:store:snapshot"

// errStale aborts a cache write whose load raced an invalidation.
var errStale = errors.New("snapshot changed while loading")

// SnapshotCache decorates a loader with a Redis JSON cache.
type SnapshotCache struct {
	next   monitor.Loader
	redis  *redis.Client
	ttl    time.Duration
	key    string
	logger zerolog.Logger
}

// NewSnapshotCache wraps next. A nil client or non-positive ttl disables caching.
func NewSnapshotCache(next monitor.Loader, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *SnapshotCache {
	return &SnapshotCache{
		next:   next,
		redis:  client,
		ttl:    ttl,
		key:    DefaultKey,
		logger: logger.With().Str("component", "snapshot_cache").Logger(),
	}
}

// Load implements monitor.Loader.
func (c *SnapshotCache) Load(ctx context.Context) (storehours.Snapshot, error) {
	var snap storehours.Snapshot
	if c.readCache(ctx, &snap) {
		return snap, nil
	}

	// The version is read before the load so that a write which invalidates
	// in between keeps this (possibly stale) snapshot out of the cache.
	version, versionOK := c.version(ctx)

	snap, err := c.next.Load(ctx)
	if err != nil {
		return storehours.Snapshot{}, err
	}
	if versionOK {
		c.writeCache(ctx, version, snap)
	}
	return snap, nil
}

// Invalidate drops the cached snapshot and bumps its version.
func (c *SnapshotCache) Invalidate(ctx context.Context) {
	if !c.enabled() {
		return
	}
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.versionKey())
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to invalidate snapshot cache")
	}
}

func (c *SnapshotCache) versionKey() string {
	return c.key + ":version"
}

// version returns the current invalidation counter. A missing key is "".
func (c *SnapshotCache) version(ctx context.Context) (string, bool) {
	if !c.enabled() {
		return "", false
	}
	return c.getVersion(ctx, c.redis)
}

func (c *SnapshotCache) getVersion(ctx context.Context, cmd redis.Cmdable) (string, bool) {
	v, err := cmd.Get(ctx, c.versionKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Debug().Err(err).Msg("snapshot version read failed")
		return "", false
	}
	return v, true
}

func (c *SnapshotCache) enabled() bool {
	return c.redis != nil && c.ttl > 0
}

func (c *SnapshotCache) readCache(ctx context.Context, out *storehours.Snapshot) bool {
	if !c.enabled() {
		return false
	}
	val, err := c.redis.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug().Err(err).Msg("snapshot cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(val, out); err != nil {
		c.logger.Debug().Err(err).Msg("snapshot cache entry is corrupt")
		return false
	}
	return true
}

// writeCache stores snap only if no invalidation happened since version was
// read.
func (c *SnapshotCache) writeCache(ctx context.Context, version string, snap storehours.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, ok := c.getVersion(ctx, tx)
		if !ok || current != version {
			return errStale
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key, data, c.ttl)
			return nil
		})
		return err
	}, c.versionKey())
	switch {
	case err == nil:
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug().Msg("snapshot changed while loading, not cached")
	default:
		c.logger.Debug().Err(err).Msg("snapshot cache write failed")
	}
}
