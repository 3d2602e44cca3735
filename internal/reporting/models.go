package reporting

import (
	"time"

	"dialer-platform/internal/broadcast"
)

// BroadcastSummary aggregates queue progress and outcome counters for
// one broadcast. Workspace isolation: every query is workspace scoped.

type BroadcastSummary struct {
	WorkspaceID string           `json:"workspace_id"`
	BroadcastID string           `json:"broadcast_id"`
	Name        string           `json:"name"`
	Status      broadcast.Status `json:"status"`

	TotalItems  int `json:"total_items"`
	Pending     int `json:"pending"`
	Calling     int `json:"calling"`
	Answered    int `json:"answered"`
	Transferred int `json:"transferred"`
	Callbacks   int `json:"callbacks"`
	DNC         int `json:"dnc"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	Cancelled   int `json:"cancelled"`

	// Dialed counts items with at least one placed call.
	Dialed        int `json:"dialed"`
	TotalAttempts int `json:"total_attempts"`

	// AverageAttempts is attempts per dialed item.
	AverageAttempts float64 `json:"average_attempts"`

	// CompletionRatio is terminal items over total items, 0..1.
	CompletionRatio float64 `json:"completion_ratio"`

	Counters broadcast.Counters `json:"counters"`

	GeneratedAt time.Time `json:"generated_at"`
}

// BroadcastProgress is one row of the workspace dashboard list.
type BroadcastProgress struct {
	BroadcastID     string           `json:"broadcast_id"`
	Name            string           `json:"name"`
	Status          broadcast.Status `json:"status"`
	TotalItems      int              `json:"total_items"`
	TerminalItems   int              `json:"terminal_items"`
	CompletionRatio float64          `json:"completion_ratio"`
}

// WorkspaceOverview lists progress for every broadcast in a workspace.
type WorkspaceOverview struct {
	WorkspaceID string              `json:"workspace_id"`
	Broadcasts  []BroadcastProgress `json:"broadcasts"`
	GeneratedAt time.Time           `json:"generated_at"`
}
