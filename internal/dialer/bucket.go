package dialer

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"dialer-platform/pkg/utils"
)

// TokenBucket meters dial rate per broadcast. Take returns false when
// the current window's budget is spent.
type TokenBucket interface {
	Take(ctx context.Context, broadcastID string, perMinute int) (bool, error)
}

// RedisTokenBucket shares the rate budget across engine replicas. The
// bucket refills on a fixed one-minute window.
type RedisTokenBucket struct {
	rdb *redis.Client
}

func NewRedisTokenBucket(rdb *redis.Client) *RedisTokenBucket {
	return &RedisTokenBucket{rdb: rdb}
}

func (b *RedisTokenBucket) Take(ctx context.Context, broadcastID string, perMinute int) (bool, error) {
	return utils.TakeToken(ctx, b.rdb, "dialer:pace:"+broadcastID, perMinute, time.Minute)
}

// MemoryTokenBucket is a single-process TokenBucket for tests and local
// runs, using the same fixed-window semantics.
type MemoryTokenBucket struct {
	mu      sync.Mutex
	clock   func() time.Time
	windows map[string]bucketWindow
}

type bucketWindow struct {
	start time.Time
	used  int
}

func NewMemoryTokenBucket() *MemoryTokenBucket {
	return &MemoryTokenBucket{clock: time.Now, windows: map[string]bucketWindow{}}
}

func (b *MemoryTokenBucket) Take(ctx context.Context, broadcastID string, perMinute int) (bool, error) {
	if perMinute <= 0 {
		return false, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	w := b.windows[broadcastID]
	if w.start.IsZero() || now.Sub(w.start) >= time.Minute {
		w = bucketWindow{start: now}
	}
	if w.used >= perMinute {
		b.windows[broadcastID] = w
		return false, nil
	}
	w.used++
	b.windows[broadcastID] = w
	return true, nil
}

// SetClock overrides the clock for deterministic tests.
func (b *MemoryTokenBucket) SetClock(clock func() time.Time) { b.clock = clock }
