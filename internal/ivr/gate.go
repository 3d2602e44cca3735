package ivr

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"dialer-platform/pkg/utils"
)

// TransferGate caps simultaneous transferred calls per broadcast so a
// single live agent is not flooded. Acquire one slot per transfer,
// release it when the transferred call ends.
type TransferGate interface {
	TryAcquire(ctx context.Context, broadcastID string, limit int) (bool, error)
	Release(ctx context.Context, broadcastID string) error
}

// transferSlotTTL bounds slot leakage if a release is lost (crash
// between transfer and the final status callback).
const transferSlotTTL = time.Hour

// RedisTransferGate shares the agent cap across engine replicas.
type RedisTransferGate struct {
	rdb *redis.Client
}

func NewRedisTransferGate(rdb *redis.Client) *RedisTransferGate {
	return &RedisTransferGate{rdb: rdb}
}

func gateKey(broadcastID string) string { return "transfer:active:" + broadcastID }

func (g *RedisTransferGate) TryAcquire(ctx context.Context, broadcastID string, limit int) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, g.rdb, gateKey(broadcastID), limit, transferSlotTTL)
}

func (g *RedisTransferGate) Release(ctx context.Context, broadcastID string) error {
	return utils.ReleaseConcurrencyCap(ctx, g.rdb, gateKey(broadcastID))
}

// MemoryTransferGate is a single-process TransferGate for tests.
type MemoryTransferGate struct {
	mu     sync.Mutex
	active map[string]int
}

func NewMemoryTransferGate() *MemoryTransferGate {
	return &MemoryTransferGate{active: map[string]int{}}
}

func (g *MemoryTransferGate) TryAcquire(ctx context.Context, broadcastID string, limit int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[broadcastID] >= limit {
		return false, nil
	}
	g.active[broadcastID]++
	return true, nil
}

func (g *MemoryTransferGate) Release(ctx context.Context, broadcastID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[broadcastID] > 0 {
		g.active[broadcastID]--
	}
	return nil
}

func (g *MemoryTransferGate) Active(broadcastID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[broadcastID]
}
