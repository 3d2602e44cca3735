// Package leads holds the contact directory the dialer reads targets
// from, including do-not-call bookkeeping.
package leads

import (
	"context"
	"errors"
	"time"
)

type Lead struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Phone       string    `json:"phone"`
	Name        string    `json:"name,omitempty"`
	DNC         bool      `json:"dnc"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Directory interface {
	Get(ctx context.Context, workspaceID, leadID string) (Lead, error)
	Upsert(ctx context.Context, l Lead) error

	// SetDNC flags the lead so no future broadcast enqueues it.
	SetDNC(ctx context.Context, workspaceID, leadID string) error

	// ListCallable returns non-DNC leads for enqueueing.
	ListCallable(ctx context.Context, workspaceID string) ([]Lead, error)
}

var (
	ErrNotFound     = errors.New("leads: not found")
	ErrInvalidInput = errors.New("leads: invalid input")
)
