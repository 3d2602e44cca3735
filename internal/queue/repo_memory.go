package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local runs. It applies
// the same de-duplication and versioning rules as the Postgres store.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]QueueItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]QueueItem{}}
}

func (m *MemoryStore) InsertBatch(ctx context.Context, items []QueueItem) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, it := range items {
		if m.hasLive(it.BroadcastID, it.Phone) {
			continue
		}
		m.items[it.ID] = it
		inserted++
	}
	return inserted, nil
}

// hasLive mirrors the partial unique index on (broadcast_id, phone).
func (m *MemoryStore) hasLive(broadcastID, phone string) bool {
	for _, it := range m.items {
		if it.BroadcastID == broadcastID && it.Phone == phone && !it.Status.Terminal() {
			return true
		}
	}
	return false
}

func (m *MemoryStore) Get(ctx context.Context, workspaceID, itemID string) (QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[itemID]
	if !ok || it.WorkspaceID != workspaceID {
		return QueueItem{}, ErrNotFound
	}
	return it, nil
}

func (m *MemoryStore) GetByProviderCallID(ctx context.Context, providerCallID string) (QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found QueueItem
	ok := false
	for _, it := range m.items {
		if it.ProviderCallID != providerCallID {
			continue
		}
		if !ok || it.UpdatedAt.After(found.UpdatedAt) {
			found, ok = it, true
		}
	}
	if !ok {
		return QueueItem{}, ErrNotFound
	}
	return found, nil
}

func (m *MemoryStore) ClaimBatch(ctx context.Context, workspaceID, broadcastID string, n int, now time.Time) ([]QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []QueueItem
	for _, it := range m.items {
		if it.WorkspaceID == workspaceID && it.BroadcastID == broadcastID && it.Status == StatusPending {
			pending = append(pending, it)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if len(pending) > n {
		pending = pending[:n]
	}

	out := make([]QueueItem, 0, len(pending))
	for _, it := range pending {
		it.Status = StatusCalling
		it.Version++
		it.UpdatedAt = now
		m.items[it.ID] = it
		out = append(out, it)
	}
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, item QueueItem, expectVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.items[item.ID]
	if !ok || cur.WorkspaceID != item.WorkspaceID {
		return ErrNotFound
	}
	if cur.Version != expectVersion {
		return ErrVersionConflict
	}
	m.items[item.ID] = item
	return nil
}

func (m *MemoryStore) Reset(ctx context.Context, workspaceID, broadcastID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, it := range m.items {
		if it.WorkspaceID != workspaceID || it.BroadcastID != broadcastID || it.Status == StatusPending {
			continue
		}
		it.Status = StatusPending
		it.Attempts = 0
		it.Digit = ""
		it.CallbackAt = nil
		it.ProviderCallID = ""
		it.LastError = ""
		it.Version++
		it.UpdatedAt = now
		m.items[id] = it
		n++
	}
	return n, nil
}

func (m *MemoryStore) CancelPending(ctx context.Context, workspaceID, broadcastID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, it := range m.items {
		if it.WorkspaceID != workspaceID || it.BroadcastID != broadcastID || it.Status != StatusPending {
			continue
		}
		it.Status = StatusCancelled
		it.Version++
		it.UpdatedAt = now
		m.items[id] = it
		n++
	}
	return n, nil
}

func (m *MemoryStore) RetryFailed(ctx context.Context, workspaceID, broadcastID string, maxAttempts int, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, it := range m.items {
		if it.WorkspaceID != workspaceID || it.BroadcastID != broadcastID {
			continue
		}
		if it.Status != StatusFailed || it.Attempts >= maxAttempts {
			continue
		}
		it.Status = StatusPending
		it.ProviderCallID = ""
		it.Version++
		it.UpdatedAt = now
		m.items[id] = it
		n++
	}
	return n, nil
}

func (m *MemoryStore) Stats(ctx context.Context, workspaceID, broadcastID string) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{BroadcastID: broadcastID, Counts: map[Status]int{}}
	for _, it := range m.items {
		if it.WorkspaceID == workspaceID && it.BroadcastID == broadcastID {
			st.Counts[it.Status]++
		}
	}
	return st, nil
}

func (m *MemoryStore) ListByStatus(ctx context.Context, workspaceID, broadcastID string, status Status) ([]QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []QueueItem
	for _, it := range m.items {
		if it.WorkspaceID == workspaceID && it.BroadcastID == broadcastID && it.Status == status {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListStuck(ctx context.Context, workspaceID, broadcastID string, before time.Time) ([]QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []QueueItem
	for _, it := range m.items {
		if it.WorkspaceID != workspaceID || it.BroadcastID != broadcastID {
			continue
		}
		if (it.Status == StatusCalling || it.Status == StatusAnswered) && it.UpdatedAt.Before(before) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}
