package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pricealerts/internal/metrics"
	"pricealerts/internal/tracing"
)

// AlertsPrefix namespaces cached GET /alerts responses.
const AlertsPrefix = "browse_alerts_"

// Connect opens a Redis client and checks that the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return client, nil
}

// Cache stores rendered responses keyed by request.
type Cache struct {
	client  *redis.Client
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(client *redis.Client, m *metrics.Metrics, logger *zap.Logger) *Cache {
	return &Cache{client: client, metrics: m, logger: logger}
}

// Get returns the cached value and whether it was present.
func (c *Cache) Get(ctx context.Context, key, endpoint string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.metrics.CacheMiss(endpoint)
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	c.metrics.CacheHit(endpoint)
	return val, true, nil
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// InvalidateByPrefix deletes every key starting with prefix and returns how
// many were removed.
func (c *Cache) InvalidateByPrefix(ctx context.Context, prefix, endpoint string) int {
	ctx, span := tracing.Tracer().Start(ctx, "Cache.InvalidateByPrefix")
	defer span.End()

	keys, err := c.keys(ctx, prefix)
	if err != nil {
		c.logger.Error("Failed to get cache keys for invalidation",
			zap.String("prefix", prefix),
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return 0
	}

	invalidated := 0
	for _, key := range keys {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.logger.Warn("Failed to invalidate cache key",
				zap.String("key", key),
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			continue
		}
		invalidated++
	}

	c.logger.Debug("Cache invalidation completed",
		zap.String("prefix", prefix),
		zap.String("endpoint", endpoint),
		zap.Int("invalidated_keys", invalidated),
	)
	return invalidated
}

func (c *Cache) keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		found, next, err := c.client.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, found...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// KeyFor derives a stable key from the query parameters of a request.
func KeyFor(prefix string, query url.Values) string {
	names := make([]string, 0, len(query))
	for k := range query {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", k, strings.Join(query[k], ",")))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "&")))
	return prefix + hex.EncodeToString(hash[:8])
}
