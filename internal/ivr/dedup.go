package ivr

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"dialer-platform/pkg/utils"
)

// Deduper answers "is this the first time we have seen this key".
// Providers redeliver webhooks, so the handler keys every event and
// skips repeats.
type Deduper interface {
	First(ctx context.Context, key string) (bool, error)
}

// seenTTL keeps dedup keys long enough to outlive any provider retry
// schedule.
const seenTTL = 24 * time.Hour

// RedisDeduper shares webhook dedup state across engine replicas.
type RedisDeduper struct {
	rdb *redis.Client
}

func NewRedisDeduper(rdb *redis.Client) *RedisDeduper {
	return &RedisDeduper{rdb: rdb}
}

func (d *RedisDeduper) First(ctx context.Context, key string) (bool, error) {
	return utils.SetIfAbsent(ctx, d.rdb, "webhook:seen:"+key, "1", seenTTL)
}

// MemoryDeduper is a single-process Deduper for tests.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: map[string]bool{}}
}

func (d *MemoryDeduper) First(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}
