// Package cache keeps a Redis-backed snapshot of the most recent SLA
// breach scan so dashboards and health probes can report breach pressure
// without hitting the ticket store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const breachSnapshotKey = "sla:breach:snapshot"

// BreachSnapshot is the cached result of one breach scan.
type BreachSnapshot struct {
	TicketIDs []string  `json:"ticket_ids"`
	ScannedAt time.Time `json:"scanned_at"`
}

// BreachCache stores breach snapshots with a TTL.
type BreachCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBreachCache constructs the cache.
func NewBreachCache(client *redis.Client, ttl time.Duration) *BreachCache {
	return &BreachCache{client: client, ttl: ttl}
}

// Store replaces the snapshot.
func (c *BreachCache) Store(ctx context.Context, snapshot BreachSnapshot) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, breachSnapshotKey, payload, c.ttl).Err()
}

// Latest returns the current snapshot, or ok=false when none is cached
// or the previous one expired.
func (c *BreachCache) Latest(ctx context.Context) (BreachSnapshot, bool, error) {
	var snapshot BreachSnapshot
	if c == nil || c.client == nil {
		return snapshot, false, nil
	}
	payload, err := c.client.Get(ctx, breachSnapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return snapshot, false, nil
		}
		return snapshot, false, err
	}
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return snapshot, false, err
	}
	return snapshot, true, nil
}
