package leads

import (
	"context"
	"sort"
	"sync"
)

// MemoryDirectory is an in-memory Directory for tests and local runs.
// FailSetDNC lets tests exercise the retry path in the DNC marker.
type MemoryDirectory struct {
	mu    sync.Mutex
	leads map[string]Lead

	FailSetDNC error
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{leads: map[string]Lead{}}
}

func (d *MemoryDirectory) Get(ctx context.Context, workspaceID, leadID string) (Lead, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.leads[leadID]
	if !ok || l.WorkspaceID != workspaceID {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (d *MemoryDirectory) Upsert(ctx context.Context, l Lead) error {
	if l.ID == "" || l.WorkspaceID == "" {
		return ErrInvalidInput
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leads[l.ID] = l
	return nil
}

func (d *MemoryDirectory) SetDNC(ctx context.Context, workspaceID, leadID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailSetDNC != nil {
		return d.FailSetDNC
	}
	l, ok := d.leads[leadID]
	if !ok || l.WorkspaceID != workspaceID {
		return ErrNotFound
	}
	l.DNC = true
	d.leads[leadID] = l
	return nil
}

func (d *MemoryDirectory) ListCallable(ctx context.Context, workspaceID string) ([]Lead, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Lead
	for _, l := range d.leads {
		if l.WorkspaceID == workspaceID && !l.DNC {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
