// Package cache 缓存已渲染的标签字节，避免重复合成。
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss 表示缓存不存在
var ErrCacheMiss = errors.New("cache miss")

// DefaultTTL 是未配置时的缓存有效期。
const DefaultTTL = 24 * time.Hour

const keyPrefix = "sampletag:label:"

// LabelCache 抽象的标签缓存（便于在单元测试中替换 Redis）
type LabelCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
}

// Key 生成标签缓存键。内容键与布局 ID 共同决定渲染结果，因此两者都参与键名。
func Key(team, contentKey string, layoutID int64, format string) string {
	return fmt.Sprintf("%s%s:%s:%d:%s", keyPrefix, team, contentKey, layoutID, format)
}

// RedisOptions 是连接 Redis 所需的配置。
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient 创建Redis客户端
func NewRedisClient(opts RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Ping 测试Redis连接
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// RedisLabelCache 基于 go-redis 的标签缓存实现
type RedisLabelCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLabelCache 创建缓存；ttl <= 0 时使用 DefaultTTL。
func NewRedisLabelCache(client *redis.Client, ttl time.Duration) *RedisLabelCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLabelCache{client: client, ttl: ttl}
}

func (r *RedisLabelCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return val, nil
}

func (r *RedisLabelCache) Set(ctx context.Context, key string, data []byte) error {
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

// Invalidate 删除某团队某内容键的全部缓存标签（所有布局与格式）。
func (r *RedisLabelCache) Invalidate(ctx context.Context, team, contentKey string) (int, error) {
	pattern := fmt.Sprintf("%s%s:%s:*", keyPrefix, team, contentKey)
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}
