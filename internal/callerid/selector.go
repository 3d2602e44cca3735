package callerid

import (
	"context"
	"fmt"
	"time"
)

// Directory lists the numbers a workspace may dial from.
type Directory interface {
	List(ctx context.Context, workspaceID string) ([]PoolEntry, error)
	GetByNumber(ctx context.Context, workspaceID, number string) (PoolEntry, error)
	Upsert(ctx context.Context, entry PoolEntry) error
	SetHealth(ctx context.Context, workspaceID, number string, healthy bool) error
}

// UsageCounter tracks per-number daily dial counts. The counter is shared
// across engine replicas so rotation stays balanced under concurrency.
type UsageCounter interface {
	Incr(ctx context.Context, workspaceID, number string, now time.Time) (int64, error)
	Get(ctx context.Context, workspaceID, number string, now time.Time) (int64, error)
}

// Selector picks the outbound caller id for a dial.
type Selector struct {
	dir   Directory
	usage UsageCounter
	clock func() time.Time
}

func NewSelector(dir Directory, usage UsageCounter) *Selector {
	return &Selector{dir: dir, usage: usage, clock: time.Now}
}

// Select returns the caller id to dial destination from and records one
// use against it. When fixedNumber is set, that number is required to be
// present and usable. Otherwise rotation considers eligible numbers
// only, prefers trunk members on trunk-routed dials and numbers sharing
// the destination's area code, and breaks ties by lowest usage today.
func (s *Selector) Select(ctx context.Context, workspaceID, destination, fixedNumber string, trunkRoute bool) (string, error) {
	if workspaceID == "" || destination == "" {
		return "", ErrInvalidInput
	}
	now := s.clock().UTC()

	if fixedNumber != "" {
		entry, err := s.dir.GetByNumber(ctx, workspaceID, fixedNumber)
		if err != nil {
			return "", err
		}
		if !entry.Usable() {
			return "", fmt.Errorf("%w: fixed number %s is not usable", ErrNoAvailableNumber, fixedNumber)
		}
		if _, err := s.usage.Incr(ctx, workspaceID, entry.Number, now); err != nil {
			return "", err
		}
		return entry.Number, nil
	}

	entries, err := s.dir.List(ctx, workspaceID)
	if err != nil {
		return "", err
	}

	usable := entries[:0:0]
	for _, e := range entries {
		if e.Rotatable() {
			usable = append(usable, e)
		}
	}
	if len(usable) == 0 {
		return "", ErrNoAvailableNumber
	}

	// Trunk-routed dials present best from numbers on the trunk.
	if trunkRoute {
		var members []PoolEntry
		for _, e := range usable {
			if e.TrunkMember {
				members = append(members, e)
			}
		}
		if len(members) > 0 {
			usable = members
		}
	}

	// Local presence next: restrict to numbers in the destination's
	// area code when any exist.
	if ac := AreaCode(destination); ac != "" {
		var local []PoolEntry
		for _, e := range usable {
			if AreaCode(e.Number) == ac {
				local = append(local, e)
			}
		}
		if len(local) > 0 {
			usable = local
		}
	}

	best := usable[0]
	bestCount, err := s.usage.Get(ctx, workspaceID, best.Number, now)
	if err != nil {
		return "", err
	}
	for _, e := range usable[1:] {
		c, err := s.usage.Get(ctx, workspaceID, e.Number, now)
		if err != nil {
			return "", err
		}
		if c < bestCount || (c == bestCount && e.Number < best.Number) {
			best, bestCount = e, c
		}
	}

	if _, err := s.usage.Incr(ctx, workspaceID, best.Number, now); err != nil {
		return "", err
	}
	return best.Number, nil
}

// UsableCount reports how many numbers rotation could currently pick.
// Readiness checks use this without consuming usage.
func (s *Selector) UsableCount(ctx context.Context, workspaceID string) (int, error) {
	entries, err := s.dir.List(ctx, workspaceID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Rotatable() {
			n++
		}
	}
	return n, nil
}

// SetClock overrides the clock for deterministic tests.
func (s *Selector) SetClock(clock func() time.Time) { s.clock = clock }
