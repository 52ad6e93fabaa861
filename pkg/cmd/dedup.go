package cmd

import (
	"fmt"
	"time"

	"github.com/vowflow/journey/pkg/dedup"
)

// NewDeduper returns a Redis-backed deduper when a URL is configured and
// falls back to the in-memory implementation otherwise.
func NewDeduper(redisURL string, ttl time.Duration) dedup.Deduper {
	if redisURL == "" {
		return dedup.NewMemory(ttl)
	}

	deduper, err := dedup.NewRedis(redisURL, ttl)
	if err != nil {
		panic(fmt.Errorf("failed to create Redis deduper: %w", err))
	}

	return deduper
}
