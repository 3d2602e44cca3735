package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.WorkspaceID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogControlAction records an operator action against a broadcast.
func (s *Service) LogControlAction(ctx context.Context, workspaceID, broadcastID, actorUserID, actorRole, action, metadata string) error {
	return s.Append(ctx, Event{
		WorkspaceID: workspaceID,
		Type:        EventTypeControlAction,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		BroadcastID: broadcastID,
		Message:     action,
		Metadata:    metadata,
	})
}

// LogRouteFallback satisfies the route engine's fallback hook. It never
// returns an error: a failed audit write must not block a dial.
func (s *Service) LogRouteFallback(ctx context.Context, workspaceID, broadcastID, trunkURI, reason string) {
	err := s.Append(ctx, Event{
		WorkspaceID: workspaceID,
		Type:        EventTypeRouteFallback,
		BroadcastID: broadcastID,
		Message:     "trunk route fell back to direct: " + reason,
		Metadata:    `{"trunk_uri":"` + trunkURI + `"}`,
	})
	if err != nil && s.log != nil {
		s.log.Warn("audit append failed",
			slog.String("workspace_id", workspaceID),
			slog.String("error", err.Error()))
	}
}
