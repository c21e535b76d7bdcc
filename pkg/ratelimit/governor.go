package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ==================== 每日调用配额 ====================

// Etsy ToS §4: 每个 API Key 默认每日 10,000 次调用
const (
	DefaultDailyLimit = 10000
	DefaultDailyWarn  = 9000
)

// QuotaError 当日配额已耗尽
// 属于硬停止，不做重试，次日 UTC 零点自动恢复
type QuotaError struct {
	Count int64
	Limit int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("Etsy API 每日配额已耗尽 (%d/%d)，请求暂停至 UTC 零点", e.Count, e.Limit)
}

// ==================== CounterStore 计数器存储 ====================

// CounterStore 跨进程共享的计数器
// 多个店铺共用同一个 API Key，计数必须原子递增
type CounterStore interface {
	// Incr 原子递增并返回递增后的值
	Incr(ctx context.Context, key string) (int64, error)
	// ExpireAt 设置 key 的过期时间点
	ExpireAt(ctx context.Context, key string, at time.Time) error
}

// redisStore 基于 Redis 的实现
type redisStore struct {
	rdb *redis.Client
}

// NewRedisStore 创建 Redis 计数器存储
func NewRedisStore(rdb *redis.Client) CounterStore {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.rdb.Incr(ctx, key).Result()
}

func (s *redisStore) ExpireAt(ctx context.Context, key string, at time.Time) error {
	return s.rdb.ExpireAt(ctx, key, at).Err()
}

// ==================== Governor 配额控制器 ====================

// Governor 每日调用配额控制器
// 每次出站 Etsy 调用前执行一次 Consume，先于 Token 解析，
// 保证配额耗尽时不会再白白消耗一次 Token 刷新
type Governor struct {
	store     CounterStore
	keyPrefix string
	limit     int64
	warn      int64
	log       *zap.Logger
}

// NewGovernor 创建配额控制器
func NewGovernor(store CounterStore, limit, warn int64, log *zap.Logger) *Governor {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	if warn <= 0 {
		warn = DefaultDailyWarn
	}
	return &Governor{
		store:     store,
		keyPrefix: "etsy:api_calls",
		limit:     limit,
		warn:      warn,
		log:       log,
	}
}

// Consume 消耗一次当日配额，返回递增后的计数
// 恰好达到上限的那次调用仍然放行，超过上限才报 QuotaError
func (g *Governor) Consume(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	key := fmt.Sprintf("%s:%s", g.keyPrefix, now.Format("2006-01-02"))

	count, err := g.store.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("配额计数失败: %w", err)
	}

	// 当日首次调用时设置过期点: 下一个 UTC 零点
	if count == 1 {
		midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		if err := g.store.ExpireAt(ctx, key, midnight); err != nil {
			g.log.Warn("设置配额过期时间失败", zap.Error(err))
		}
	}

	if count > g.limit {
		return count, &QuotaError{Count: count, Limit: g.limit}
	}

	if count >= g.warn {
		g.log.Warn("Etsy API 每日调用量接近上限",
			zap.Int64("count", count),
			zap.Int64("limit", g.limit),
		)
	}

	return count, nil
}
