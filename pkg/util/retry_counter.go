package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter 记录 worker 对同一条事件（通知、缩略图）的失败次数，
// 多个 worker 实例共享 Redis 中的计数，超过上限后消息进入 DLQ。
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRetryCounter ttl 覆盖一条消息从首次失败到放弃的整个窗口
func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet 计数加一并返回新值；过期时间只在首次失败时设置。
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis retry count %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Get 返回当前失败次数，没有记录时为 0
func (r *RetryCounter) Get(ctx context.Context, key string) (int64, error) {
	count, err := r.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return count, err
}

// Reset 处理成功后清除计数
func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// FormatRetryKey 以队列名与 MessageId 组成计数 key，
// 例如 xhs:retry:market.notify.q:<uuid>
func FormatRetryKey(queue string, messageID string) string {
	return fmt.Sprintf("xhs:retry:%s:%s", queue, messageID)
}
