package realtime

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/pkg/utils"
)

// RedisLimiter caps concurrent realtime sessions per remote address across
// every dispatcher instance sharing the same Redis.
type RedisLimiter struct {
	rdb    redis.Scripter
	limit  int
	ttl    time.Duration
	prefix string
}

func NewRedisLimiter(rdb redis.Scripter, limit int, ttl time.Duration) *RedisLimiter {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: ttl, prefix: "realtime:sessions:"}
}

func (l *RedisLimiter) Acquire(ctx context.Context, key string) (bool, error) {
	return utils.AcquireSlot(ctx, l.rdb, l.prefix+key, l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context, key string) error {
	return utils.ReleaseSlot(ctx, l.rdb, l.prefix+key, l.ttl)
}
