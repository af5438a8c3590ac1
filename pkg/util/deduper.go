package util

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDeduper creates a deduper; logger may be nil.
func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire a dedup lock for a given handler + message key.
// returns true if this is the FIRST time processing
// returns false if it's a duplicate
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, key string) bool {
	dedupKey := fmt.Sprintf("dedup:%s:%s", handler, key)

	ok, err := d.rdb.SetNX(ctx, dedupKey, 1, d.ttl).Result()
	if err != nil {
		// Redis 不可用时不阻止处理
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("handler", handler),
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.String("dedup_key", dedupKey),
		)
	}

	return ok
}

// Release drops the key so the next delivery is processed again.
func (d *Deduper) Release(ctx context.Context, handler string, key string) {
	dedupKey := fmt.Sprintf("dedup:%s:%s", handler, key)
	if err := d.rdb.Del(ctx, dedupKey).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Redis dedup release failed",
			zap.String("handler", handler),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// MemoryDeduper is the single-process fallback when Redis is not configured.
type MemoryDeduper struct {
	seen *expirable.LRU[string, struct{}]
	mu   sync.Mutex
}

func NewMemoryDeduper(size int, ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{seen: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (d *MemoryDeduper) AcquireOnce(_ context.Context, handler string, key string) bool {
	dedupKey := fmt.Sprintf("dedup:%s:%s", handler, key)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen.Contains(dedupKey) {
		return false
	}
	d.seen.Add(dedupKey, struct{}{})
	return true
}

func (d *MemoryDeduper) Release(_ context.Context, handler string, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen.Remove(fmt.Sprintf("dedup:%s:%s", handler, key))
}
