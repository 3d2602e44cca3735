package callerid

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryDirectory is an in-memory Directory for tests and local runs.
type MemoryDirectory struct {
	mu      sync.Mutex
	entries map[string]PoolEntry // key: workspaceID + "|" + number
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{entries: map[string]PoolEntry{}}
}

func dirKey(workspaceID, number string) string { return workspaceID + "|" + number }

func (d *MemoryDirectory) List(ctx context.Context, workspaceID string) ([]PoolEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []PoolEntry
	for _, e := range d.entries {
		if e.WorkspaceID == workspaceID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (d *MemoryDirectory) GetByNumber(ctx context.Context, workspaceID, number string) (PoolEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[dirKey(workspaceID, number)]
	if !ok {
		return PoolEntry{}, ErrNotFound
	}
	return e, nil
}

func (d *MemoryDirectory) Upsert(ctx context.Context, entry PoolEntry) error {
	if entry.WorkspaceID == "" || entry.Number == "" {
		return ErrInvalidInput
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[dirKey(entry.WorkspaceID, entry.Number)] = entry
	return nil
}

func (d *MemoryDirectory) SetHealth(ctx context.Context, workspaceID, number string, healthy bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := dirKey(workspaceID, number)
	e, ok := d.entries[k]
	if !ok {
		return ErrNotFound
	}
	e.Healthy = healthy
	d.entries[k] = e
	return nil
}

// MemoryUsageCounter is an in-memory UsageCounter keyed by UTC day.
type MemoryUsageCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryUsageCounter() *MemoryUsageCounter {
	return &MemoryUsageCounter{counts: map[string]int64{}}
}

func (c *MemoryUsageCounter) key(workspaceID, number string, now time.Time) string {
	return workspaceID + "|" + number + "|" + now.UTC().Format("2006-01-02")
}

func (c *MemoryUsageCounter) Incr(ctx context.Context, workspaceID, number string, now time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := c.key(workspaceID, number, now)
	c.counts[k]++
	return c.counts[k], nil
}

func (c *MemoryUsageCounter) Get(ctx context.Context, workspaceID, number string, now time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[c.key(workspaceID, number, now)], nil
}
