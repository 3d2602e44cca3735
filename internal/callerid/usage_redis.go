package callerid

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dialer-platform/pkg/utils"
)

// RedisUsageCounter keeps daily per-number dial counts in Redis so every
// engine replica rotates against the same totals. Counters roll over at
// UTC midnight and expire shortly after.
type RedisUsageCounter struct {
	rdb *redis.Client
}

func NewRedisUsageCounter(rdb *redis.Client) *RedisUsageCounter {
	return &RedisUsageCounter{rdb: rdb}
}

func usageKey(workspaceID, number string) string {
	return fmt.Sprintf("callerid:usage:%s:%s", workspaceID, number)
}

func (c *RedisUsageCounter) Incr(ctx context.Context, workspaceID, number string, now time.Time) (int64, error) {
	return utils.IncrDailyCounter(ctx, c.rdb, usageKey(workspaceID, number), now)
}

func (c *RedisUsageCounter) Get(ctx context.Context, workspaceID, number string, now time.Time) (int64, error) {
	return utils.GetDailyCounter(ctx, c.rdb, usageKey(workspaceID, number), now)
}
