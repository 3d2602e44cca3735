package broadcast

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory broadcast store for tests and early
// development. It enforces workspace isolation and the same transition
// rules as the SQL store.

type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Broadcast // key: workspace|id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]Broadcast{}}
}

func key(workspaceID, id string) string { return workspaceID + "|" + id }

func (s *MemoryStore) Insert(ctx context.Context, b Broadcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key(b.WorkspaceID, b.ID)] = b
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, workspaceID, id string) (Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.items[key(workspaceID, id)]
	if !ok || b.DeletedAt != nil {
		return Broadcast{}, ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) List(ctx context.Context, workspaceID string) ([]Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Broadcast
	for _, b := range s.items {
		if b.WorkspaceID == workspaceID && b.DeletedAt == nil {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, b Broadcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[key(b.WorkspaceID, b.ID)]
	if !ok || cur.DeletedAt != nil {
		return ErrNotFound
	}
	// Preserve fields Update does not own.
	b.Status = cur.Status
	b.Counters = cur.Counters
	s.items[key(b.WorkspaceID, b.ID)] = b
	return nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, workspaceID, id string, to Status, now time.Time) (Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.items[key(workspaceID, id)]
	if !ok || b.DeletedAt != nil {
		return Broadcast{}, ErrNotFound
	}
	if b.Status != to {
		if !b.Status.CanTransition(to) {
			return Broadcast{}, ErrBadTransition
		}
		b.Status = to
		b.UpdatedAt = now
		s.items[key(workspaceID, id)] = b
	}
	return b, nil
}

func (s *MemoryStore) ApplyCounterDelta(ctx context.Context, workspaceID, id string, d CounterDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.items[key(workspaceID, id)]
	if !ok || b.DeletedAt != nil {
		return ErrNotFound
	}
	b.Counters.LeadsTotal += d.LeadsTotal
	b.Counters.CallsPlaced += d.CallsPlaced
	b.Counters.Answered += d.Answered
	b.Counters.Transferred += d.Transferred
	b.Counters.Callbacks += d.Callbacks
	b.Counters.DNC += d.DNC
	s.items[key(workspaceID, id)] = b
	return nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, workspaceID, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.items[key(workspaceID, id)]
	if !ok || b.DeletedAt != nil {
		return ErrNotFound
	}
	b.DeletedAt = &now
	b.UpdatedAt = now
	s.items[key(workspaceID, id)] = b
	return nil
}
