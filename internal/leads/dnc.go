package leads

import (
	"context"
	"log/slog"
	"sync"
)

// DNCMarker flags leads do-not-call. A directory write failure must not
// lose the request (the caller just pressed the opt-out digit), so
// failed marks queue in memory and Flush retries them.
type DNCMarker struct {
	dir Directory
	log *slog.Logger

	mu      sync.Mutex
	pending []pendingMark
}

type pendingMark struct {
	WorkspaceID string
	LeadID      string
}

func NewDNCMarker(dir Directory, log *slog.Logger) *DNCMarker {
	return &DNCMarker{dir: dir, log: log}
}

// Mark flags the lead, queueing the request on failure. The error is
// reported but the mark is never dropped.
func (m *DNCMarker) Mark(ctx context.Context, workspaceID, leadID string) error {
	err := m.dir.SetDNC(ctx, workspaceID, leadID)
	if err == nil {
		return nil
	}
	m.mu.Lock()
	m.pending = append(m.pending, pendingMark{WorkspaceID: workspaceID, LeadID: leadID})
	m.mu.Unlock()
	m.log.Warn("dnc mark queued for retry",
		slog.String("workspace_id", workspaceID),
		slog.String("lead_id", leadID),
		slog.String("error", err.Error()))
	return err
}

// Flush retries queued marks and returns how many remain queued.
func (m *DNCMarker) Flush(ctx context.Context) int {
	m.mu.Lock()
	work := m.pending
	m.pending = nil
	m.mu.Unlock()

	var still []pendingMark
	for _, p := range work {
		if err := m.dir.SetDNC(ctx, p.WorkspaceID, p.LeadID); err != nil {
			still = append(still, p)
		}
	}
	if len(still) > 0 {
		m.mu.Lock()
		m.pending = append(still, m.pending...)
		m.mu.Unlock()
	}
	return m.PendingCount()
}

func (m *DNCMarker) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
