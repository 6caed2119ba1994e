package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"designlab/core"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Cache stores encoded previews by content key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, data []byte)
}

// CacheKey hashes everything that affects the pixels of a preview. Name and timestamps
// are left out so renaming a design does not invalidate its preview.
func CacheKey(d core.Design, width, height int) string {
	payload, _ := json.Marshal(struct {
		Product *core.ProductRef `json:"product"`
		Layers  []core.Layer     `json:"layers"`
		Width   int              `json:"w"`
		Height  int              `json:"h"`
	}{d.Product, d.Layers, width, height})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// MemoryCache keeps up to max previews and evicts the oldest first.
type MemoryCache struct {
	mu      sync.Mutex
	max     int
	entries map[string][]byte
	order   []string
}

func NewMemoryCache(max int) *MemoryCache {
	if max <= 0 {
		max = 128
	}
	return &MemoryCache{max: max, entries: make(map[string][]byte)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	return data, ok
}

func (c *MemoryCache) Put(_ context.Context, key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = data

	for len(c.order) > c.max {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
}

// RedisCache shares previews between instances. Redis errors degrade to cache misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisCacheWithClient(redis.NewClient(opt), ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "designlab:preview:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logrus.WithError(err).Warn("Preview cache lookup failed")
		return nil, false
	}
	return data, true
}

func (c *RedisCache) Put(ctx context.Context, key string, data []byte) {
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		logrus.WithError(err).Warn("Failed to store preview")
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
