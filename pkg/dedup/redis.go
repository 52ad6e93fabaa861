package dedup

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "journey:event:"

// Redis dedupes event ids across engine replicas with SET NX and a TTL.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis creates a deduper from a redis URL.
func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &Redis{
		client: redis.NewClient(opts),
		ttl:    ttl,
	}, nil
}

func (r *Redis) Seen(ctx context.Context, eventID string) (bool, error) {
	inserted, err := r.client.SetNX(ctx, keyPrefix+eventID, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event %s: %w", eventID, err)
	}

	return !inserted, nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
