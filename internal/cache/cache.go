// Package cache stores generated enrichments in Redis so repeated pipeline
// runs and retried cities do not regenerate identical content.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/triptide/collector/internal/poi"
)

// Generated content stays valid for a long time; the TTL mostly bounds
// storage for POIs that disappear from the map.
const defaultTTL = 30 * 24 * time.Hour

// Cache wraps a Redis client with typed get/set for enrichment payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache with the default TTL.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client, ttl: defaultTTL}
}

// key returns the Redis key for the given OSM identity.
func key(osmID string) string {
	return "enrichment:" + osmID
}

// Get retrieves a cached enrichment.
// Returns nil, nil on a cache miss (not an error).
func (c *Cache) Get(ctx context.Context, osmID string) (*poi.Enrichment, error) {
	val, err := c.client.Get(ctx, key(osmID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get for %s: %w", osmID, err)
	}

	var e poi.Enrichment
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return nil, fmt.Errorf("unmarshaling cached enrichment for %s: %w", osmID, err)
	}

	return &e, nil
}

// Set stores an enrichment with the configured TTL. Fallback enrichments are
// not cached so a later run with a working backend can replace them.
func (c *Cache) Set(ctx context.Context, osmID string, e poi.Enrichment) error {
	if e.Fallback {
		return nil
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling enrichment for %s: %w", osmID, err)
	}

	if err := c.client.Set(ctx, key(osmID), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set for %s: %w", osmID, err)
	}

	return nil
}

// Delete removes the cached enrichment for the given OSM identity.
func (c *Cache) Delete(ctx context.Context, osmID string) error {
	if err := c.client.Del(ctx, key(osmID)).Err(); err != nil {
		return fmt.Errorf("cache delete for %s: %w", osmID, err)
	}
	return nil
}
