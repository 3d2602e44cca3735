// Package reporting aggregates queue items and broadcast counters into
// the summaries the dashboard polls.
package reporting

import (
	"context"
	"errors"
	"time"

	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/queue"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts the reads reporting needs. Implementations must
// enforce workspace filtering.
type Repository interface {
	GetBroadcast(ctx context.Context, workspaceID, broadcastID string) (broadcast.Broadcast, error)
	ListBroadcasts(ctx context.Context, workspaceID string) ([]broadcast.Broadcast, error)
	ListItems(ctx context.Context, workspaceID, broadcastID string) ([]queue.QueueItem, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) BroadcastSummary(ctx context.Context, workspaceID, broadcastID string) (BroadcastSummary, error) {
	if workspaceID == "" || broadcastID == "" {
		return BroadcastSummary{}, ErrInvalidRequest
	}
	b, err := s.repo.GetBroadcast(ctx, workspaceID, broadcastID)
	if err != nil {
		return BroadcastSummary{}, err
	}
	items, err := s.repo.ListItems(ctx, workspaceID, broadcastID)
	if err != nil {
		return BroadcastSummary{}, err
	}

	out := BroadcastSummary{
		WorkspaceID: workspaceID,
		BroadcastID: broadcastID,
		Name:        b.Name,
		Status:      b.Status,
		Counters:    b.Counters,
		GeneratedAt: s.clock().UTC(),
	}
	terminal := 0
	for _, item := range items {
		out.TotalItems++
		out.TotalAttempts += item.Attempts
		if item.Attempts > 0 {
			out.Dialed++
		}
		if item.Status.Terminal() {
			terminal++
		}
		switch item.Status {
		case queue.StatusPending:
			out.Pending++
		case queue.StatusCalling:
			out.Calling++
		case queue.StatusAnswered:
			out.Answered++
		case queue.StatusTransferred:
			out.Transferred++
		case queue.StatusCallback:
			out.Callbacks++
		case queue.StatusDNC:
			out.DNC++
		case queue.StatusCompleted:
			out.Completed++
		case queue.StatusFailed:
			out.Failed++
		case queue.StatusCancelled:
			out.Cancelled++
		}
	}
	if out.Dialed > 0 {
		out.AverageAttempts = float64(out.TotalAttempts) / float64(out.Dialed)
	}
	if out.TotalItems > 0 {
		out.CompletionRatio = float64(terminal) / float64(out.TotalItems)
	}
	return out, nil
}

func (s *Service) Overview(ctx context.Context, workspaceID string) (WorkspaceOverview, error) {
	if workspaceID == "" {
		return WorkspaceOverview{}, ErrInvalidRequest
	}
	bs, err := s.repo.ListBroadcasts(ctx, workspaceID)
	if err != nil {
		return WorkspaceOverview{}, err
	}

	out := WorkspaceOverview{WorkspaceID: workspaceID, GeneratedAt: s.clock().UTC()}
	for _, b := range bs {
		items, err := s.repo.ListItems(ctx, workspaceID, b.ID)
		if err != nil {
			return WorkspaceOverview{}, err
		}
		row := BroadcastProgress{BroadcastID: b.ID, Name: b.Name, Status: b.Status}
		for _, item := range items {
			row.TotalItems++
			if item.Status.Terminal() {
				row.TerminalItems++
			}
		}
		if row.TotalItems > 0 {
			row.CompletionRatio = float64(row.TerminalItems) / float64(row.TotalItems)
		}
		out.Broadcasts = append(out.Broadcasts, row)
	}
	return out, nil
}

// SetClock overrides the clock for deterministic tests.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// serviceRepo adapts the broadcast and queue services to Repository so
// the HTTP layer does not need a dedicated reporting store.
type serviceRepo struct {
	broadcasts *broadcast.Service
	queue      *queue.Service
}

// NewServiceRepo exposes live service data as a reporting Repository.
func NewServiceRepo(b *broadcast.Service, q *queue.Service) Repository {
	return &serviceRepo{broadcasts: b, queue: q}
}

func (r *serviceRepo) GetBroadcast(ctx context.Context, workspaceID, broadcastID string) (broadcast.Broadcast, error) {
	return r.broadcasts.Get(ctx, workspaceID, broadcastID)
}

func (r *serviceRepo) ListBroadcasts(ctx context.Context, workspaceID string) ([]broadcast.Broadcast, error) {
	return r.broadcasts.List(ctx, workspaceID)
}

func (r *serviceRepo) ListItems(ctx context.Context, workspaceID, broadcastID string) ([]queue.QueueItem, error) {
	var out []queue.QueueItem
	for _, status := range queue.AllStatuses {
		items, err := r.queue.ListByStatus(ctx, workspaceID, broadcastID, status)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}
