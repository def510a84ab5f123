package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ========== Rate Limit Repository ==========

const rateLimitPrefix = "ratelimit:"

// IncrRateLimit 固定窗口计数：INCR + 首次设置过期
//
// 多实例部署共享同一窗口，重启不会清零计数。
func (c *Client) IncrRateLimit(key string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	redisKey := rateLimitPrefix + key

	count, err := c.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, err
	}

	if count == 1 {
		if err := c.rdb.Expire(ctx, redisKey, window).Err(); err != nil {
			return count, err
		}
	}

	return count, nil
}

// GetRateLimit 返回当前窗口计数，键不存在时为 0
func (c *Client) GetRateLimit(key string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	count, err := c.rdb.Get(ctx, rateLimitPrefix+key).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}
