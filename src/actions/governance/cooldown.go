package governance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown rejects repeated clicks on the same key within a window.
type Cooldown interface {
	// Allow records a click and reports whether it may proceed.
	Allow(ctx context.Context, key string) (bool, error)
}

// NewCooldown uses redis when rdb is set so several replicas share the
// window, and process memory otherwise.
func NewCooldown(rdb *redis.Client, window time.Duration) Cooldown {
	if window <= 0 {
		return noCooldown{}
	}
	if rdb != nil {
		return &redisCooldown{rdb: rdb, window: window}
	}
	return NewMemoryCooldown(window)
}

type noCooldown struct{}

func (noCooldown) Allow(context.Context, string) (bool, error) { return true, nil }

// MemoryCooldown keeps the last click per key in process.
type MemoryCooldown struct {
	mu    sync.Mutex
	last  map[string]time.Time
	limit time.Duration
	now   func() time.Time
}

func NewMemoryCooldown(limit time.Duration) *MemoryCooldown {
	return &MemoryCooldown{
		last:  make(map[string]time.Time),
		limit: limit,
		now:   time.Now,
	}
}

func (c *MemoryCooldown) Allow(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.last[key]; ok && now.Sub(last) < c.limit {
		return false, nil
	}
	c.last[key] = now
	if len(c.last) > 10000 {
		for k, t := range c.last {
			if now.Sub(t) >= c.limit {
				delete(c.last, k)
			}
		}
	}
	return true, nil
}

type redisCooldown struct {
	rdb    *redis.Client
	window time.Duration
}

func (c *redisCooldown) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, "pact:cooldown:"+key, 1, c.window).Result()
	if err != nil {
		return true, fmt.Errorf("cooldown: %w", err)
	}
	return ok, nil
}
