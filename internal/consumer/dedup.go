package consumer

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper filters redelivered events. Seen is read-only; Mark is called
// only after an event was fully handled, so a failed handler leaves the id
// unmarked and the broker's redelivery is processed again. The broker
// delivers at least once; this check narrows the duplicate-row window but
// does not close it.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

const dedupKeyPrefix = "notif:event:"

type redisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisDeduper tracks handled event ids in Redis with a TTL.
func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) Deduper {
	return &redisDeduper{rdb: rdb, ttl: ttl}
}

func (d *redisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.rdb.Exists(ctx, dedupKeyPrefix+eventID).Result()
	if err != nil {
		// Fail open: a Redis outage must not stall event processing. A
		// duplicate notification row is the accepted cost.
		return false, err
	}
	return n > 0, nil
}

func (d *redisDeduper) Mark(ctx context.Context, eventID string) error {
	return d.rdb.Set(ctx, dedupKeyPrefix+eventID, 1, d.ttl).Err()
}

type noopDeduper struct{}

// NewNoopDeduper never reports a duplicate. Used when dedup is disabled.
func NewNoopDeduper() Deduper { return noopDeduper{} }

func (noopDeduper) Seen(context.Context, string) (bool, error) { return false, nil }

func (noopDeduper) Mark(context.Context, string) error { return nil }
