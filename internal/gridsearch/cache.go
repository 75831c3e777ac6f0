package gridsearch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// CacheKeyParams is everything the cache key must be stable over: model
// identity, game universe, and every grid/split/cost/alignment parameter
// (spec.md §6.4 "Cache key").
type CacheKeyParams struct {
	ModelName       string
	SeasonOrGameSet string
	Grid            GridConfig
	Split           SplitConfig
	Entry           float64
	Exit            float64
	BetAmount       float64
	FeesEnabled     bool
	SlippageRate    float64
	FeeRounding     string
	MatchWindowSecs float64
	ExcludeFirst    float64
	ExcludeLast     float64
	GameStartAnchor string
	ArtifactVersion string
}

// Key computes a stable hash over the cache-key parameters.
func (p CacheKeyParams) Key() string {
	raw, _ := json.Marshal(p)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Cache stores CombinationResult by key. Implementations must be safe for
// concurrent use and write-once per key (spec.md §5 "Cache: write-once per
// key; readers are concurrent; a per-key one-shot guard prevents duplicate
// work").
type Cache interface {
	Get(ctx context.Context, key string) (CombinationResult, bool, error)
	Set(ctx context.Context, key string, result CombinationResult) error
}

// NoCache always misses; used when --no-cache is set.
type NoCache struct{}

func (NoCache) Get(ctx context.Context, key string) (CombinationResult, bool, error) {
	return CombinationResult{}, false, nil
}

func (NoCache) Set(ctx context.Context, key string, result CombinationResult) error {
	return nil
}

// MemCache is an in-process cache guarded by a one-shot map, useful for
// tests and single-process runs without a Redis dependency.
type MemCache struct {
	mu    sync.RWMutex
	store map[string]CombinationResult
}

func NewMemCache() *MemCache {
	return &MemCache{store: make(map[string]CombinationResult)}
}

func (c *MemCache) Get(ctx context.Context, key string) (CombinationResult, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.store[key]
	return r, ok, nil
}

func (c *MemCache) Set(ctx context.Context, key string, result CombinationResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.store[key]; exists {
		return nil // write-once: first writer wins
	}
	c.store[key] = result
	return nil
}

// RedisCache backs the combination-result cache with go-redis/v9, the way
// the teacher's infrastructure layer wires a shared cache backend alongside
// its Postgres connection pool. Keys are namespaced under "hoopdivergence:grid:".
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "hoopdivergence:grid:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) (CombinationResult, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return CombinationResult{}, false, nil
	}
	if err != nil {
		return CombinationResult{}, false, fmt.Errorf("gridsearch: redis cache get: %w", err)
	}
	var result CombinationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return CombinationResult{}, false, fmt.Errorf("gridsearch: redis cache decode: %w", err)
	}
	return result, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, result CombinationResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("gridsearch: redis cache encode: %w", err)
	}
	// SetNX enforces the write-once-per-key contract across processes.
	_, err = c.client.SetNX(ctx, c.prefix+key, raw, 0).Result()
	if err != nil {
		return fmt.Errorf("gridsearch: redis cache set: %w", err)
	}
	return nil
}
