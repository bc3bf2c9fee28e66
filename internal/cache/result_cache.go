package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"triage-advisor/pkg"
)

// DefaultTTL is used when the configured TTL is not positive.
const DefaultTTL = time.Hour

// ResultCache handles Redis operations for validated backend results.
type ResultCache interface {
	Get(ctx context.Context, key string) (*pkg.TriageResult, error)
	Set(ctx context.Context, key string, result pkg.TriageResult) error
}

type resultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultCache creates a result cache over client.
func NewResultCache(client *redis.Client, ttl time.Duration) ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &resultCache{client: client, ttl: ttl}
}

func (c *resultCache) resultKey(hash string) string {
	return fmt.Sprintf("triage:result:%s", hash)
}

// Get returns nil, nil on a miss.
func (c *resultCache) Get(ctx context.Context, key string) (*pkg.TriageResult, error) {
	data, err := c.client.Get(ctx, c.resultKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res pkg.TriageResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *resultCache) Set(ctx context.Context, key string, result pkg.TriageResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.resultKey(key), data, c.ttl).Err()
}
