package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract for queue items.
//
// Implementations must make ClaimBatch safe under concurrent callers
// (at-most-once claim per item) and must reject updates whose expected
// version is stale with ErrVersionConflict.
type Store interface {
	InsertBatch(ctx context.Context, items []QueueItem) (int, error)
	Get(ctx context.Context, workspaceID, itemID string) (QueueItem, error)
	GetByProviderCallID(ctx context.Context, providerCallID string) (QueueItem, error)

	// ClaimBatch atomically moves up to n pending items to calling and
	// returns them. Provider call ids are left unset; the dialer assigns
	// them via Update after dispatch.
	ClaimBatch(ctx context.Context, workspaceID, broadcastID string, n int, now time.Time) ([]QueueItem, error)

	// Update persists item if the stored version equals expectVersion,
	// bumping the version. ErrVersionConflict otherwise.
	Update(ctx context.Context, item QueueItem, expectVersion int64) error

	Reset(ctx context.Context, workspaceID, broadcastID string, now time.Time) (int, error)
	CancelPending(ctx context.Context, workspaceID, broadcastID string, now time.Time) (int, error)
	RetryFailed(ctx context.Context, workspaceID, broadcastID string, maxAttempts int, now time.Time) (int, error)

	Stats(ctx context.Context, workspaceID, broadcastID string) (Stats, error)
	ListByStatus(ctx context.Context, workspaceID, broadcastID string, status Status) ([]QueueItem, error)

	// ListStuck returns in-flight items not updated since before.
	ListStuck(ctx context.Context, workspaceID, broadcastID string, before time.Time) ([]QueueItem, error)
}

// Service is the authoritative state-transition gate for queue items.
// All status changes flow through here so the transition rules live in
// exactly one place.
type Service struct {
	store Store
	clock func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, clock: time.Now}
}

// Enqueue inserts pending items for the given leads, de-duplicating by
// phone number within the broadcast. Empty input is rejected.
func (s *Service) Enqueue(ctx context.Context, workspaceID, broadcastID string, leads []LeadRef) (int, error) {
	if workspaceID == "" || broadcastID == "" {
		return 0, ErrInvalidInput
	}
	if len(leads) == 0 {
		return 0, fmt.Errorf("%w: empty lead list", ErrInvalidInput)
	}

	now := s.clock().UTC()
	seen := map[string]bool{}
	items := make([]QueueItem, 0, len(leads))
	for _, l := range leads {
		if l.Phone == "" {
			return 0, fmt.Errorf("%w: lead %q has no phone", ErrInvalidInput, l.LeadID)
		}
		if seen[l.Phone] {
			continue
		}
		seen[l.Phone] = true
		items = append(items, QueueItem{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			BroadcastID: broadcastID,
			LeadID:      l.LeadID,
			Phone:       l.Phone,
			Status:      StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return s.store.InsertBatch(ctx, items)
}

// ClaimBatch transitions up to n pending items to calling.
func (s *Service) ClaimBatch(ctx context.Context, workspaceID, broadcastID string, n int) ([]QueueItem, error) {
	if workspaceID == "" || broadcastID == "" {
		return nil, ErrInvalidInput
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: batch size must be > 0", ErrInvalidInput)
	}
	return s.store.ClaimBatch(ctx, workspaceID, broadcastID, n, s.clock().UTC())
}

// MarkDispatched records the provider call id on a freshly claimed item
// and counts the attempt.
func (s *Service) MarkDispatched(ctx context.Context, item QueueItem, providerCallID string) (QueueItem, error) {
	if providerCallID == "" {
		return QueueItem{}, fmt.Errorf("%w: provider call id required", ErrInvalidInput)
	}
	if item.Status != StatusCalling {
		return QueueItem{}, ErrNotCalling
	}
	expect := item.Version
	item.ProviderCallID = providerCallID
	item.Attempts++
	item.LastError = ""
	item.UpdatedAt = s.clock().UTC()
	item.Version++
	if err := s.store.Update(ctx, item, expect); err != nil {
		return QueueItem{}, err
	}
	return item, nil
}

// Unclaim returns a claimed item to pending without counting an
// attempt. The pacer uses it for items it claimed but never dialed,
// such as the tail of a batch cut short by an operator stop.
func (s *Service) Unclaim(ctx context.Context, item QueueItem) (QueueItem, error) {
	if item.Status != StatusCalling {
		return QueueItem{}, ErrNotCalling
	}
	expect := item.Version
	item.Status = StatusPending
	item.ProviderCallID = ""
	item.UpdatedAt = s.clock().UTC()
	item.Version++
	if err := s.store.Update(ctx, item, expect); err != nil {
		return QueueItem{}, err
	}
	return item, nil
}

// ReleaseClaim rolls a claimed-but-undialed item back to pending after a
// dispatch failure, counting the attempt. An item must never be left
// stuck in calling by its claimer.
func (s *Service) ReleaseClaim(ctx context.Context, item QueueItem, cause string, maxAttempts int) (QueueItem, error) {
	if item.Status != StatusCalling {
		return QueueItem{}, ErrNotCalling
	}
	expect := item.Version
	item.Attempts++
	item.LastError = cause
	item.ProviderCallID = ""
	if maxAttempts > 0 && item.Attempts >= maxAttempts {
		item.Status = StatusFailed
	} else {
		item.Status = StatusPending
	}
	item.UpdatedAt = s.clock().UTC()
	item.Version++
	if err := s.store.Update(ctx, item, expect); err != nil {
		return QueueItem{}, err
	}
	return item, nil
}

// ApplyOutcome moves an in-flight item to its next status based on a
// provider callback (or internal recovery). Outcomes on already-terminal
// items return ErrAlreadyTerminal, which callers treat as a duplicate
// delivery.
func (s *Service) ApplyOutcome(ctx context.Context, workspaceID, itemID string, out Outcome) (QueueItem, error) {
	if workspaceID == "" || itemID == "" {
		return QueueItem{}, ErrInvalidInput
	}
	item, err := s.store.Get(ctx, workspaceID, itemID)
	if err != nil {
		return QueueItem{}, err
	}
	return s.applyOutcome(ctx, item, out)
}

// ApplyOutcomeByProviderCallID is the webhook path: callbacks are keyed
// by the provider's call id.
func (s *Service) ApplyOutcomeByProviderCallID(ctx context.Context, providerCallID string, out Outcome) (QueueItem, error) {
	if providerCallID == "" {
		return QueueItem{}, ErrInvalidInput
	}
	item, err := s.store.GetByProviderCallID(ctx, providerCallID)
	if err != nil {
		return QueueItem{}, err
	}
	return s.applyOutcome(ctx, item, out)
}

func (s *Service) applyOutcome(ctx context.Context, item QueueItem, out Outcome) (QueueItem, error) {
	if item.Status.Terminal() {
		return item, ErrAlreadyTerminal
	}
	if item.Status == StatusPending {
		return QueueItem{}, ErrNotCalling
	}

	expect := item.Version
	if out.Error != "" {
		item.LastError = out.Error
	}
	if out.Digit != "" {
		item.Digit = out.Digit
	}

	switch out.Kind {
	case OutcomeAnswered:
		if item.Status != StatusCalling {
			return QueueItem{}, fmt.Errorf("%w: answered from %s", ErrNotCalling, item.Status)
		}
		item.Status = StatusAnswered

	case OutcomeNoAnswer, OutcomeBusy, OutcomeFailed:
		// Recoverable: back to pending while attempts remain.
		if out.MaxAttempts > 0 && item.Attempts < out.MaxAttempts {
			item.Status = StatusPending
			item.ProviderCallID = ""
		} else {
			item.Status = StatusFailed
		}
		if item.LastError == "" {
			item.LastError = string(out.Kind)
		}

	case OutcomeVoicemail, OutcomeCompleted:
		item.Status = StatusCompleted

	case OutcomeTransferred:
		item.Status = StatusTransferred

	case OutcomeCallback:
		if out.CallbackAt == nil {
			return QueueItem{}, fmt.Errorf("%w: callback outcome requires callback_at", ErrInvalidInput)
		}
		item.Status = StatusCallback
		item.CallbackAt = out.CallbackAt

	case OutcomeDNC:
		item.Status = StatusDNC

	default:
		return QueueItem{}, fmt.Errorf("%w: unknown outcome %q", ErrInvalidInput, out.Kind)
	}

	item.UpdatedAt = s.clock().UTC()
	item.Version++
	if err := s.store.Update(ctx, item, expect); err != nil {
		return QueueItem{}, err
	}
	return item, nil
}

// Reset returns all non-pending items to pending with attempts cleared.
// Backs "Reset & Run Again"; idempotent.
func (s *Service) Reset(ctx context.Context, workspaceID, broadcastID string) (int, error) {
	if workspaceID == "" || broadcastID == "" {
		return 0, ErrInvalidInput
	}
	return s.store.Reset(ctx, workspaceID, broadcastID, s.clock().UTC())
}

// CancelPending moves all pending items to cancelled. Calling items are
// left for the provider-side stop. Idempotent.
func (s *Service) CancelPending(ctx context.Context, workspaceID, broadcastID string) (int, error) {
	if workspaceID == "" || broadcastID == "" {
		return 0, ErrInvalidInput
	}
	return s.store.CancelPending(ctx, workspaceID, broadcastID, s.clock().UTC())
}

// RetryFailed returns failed items with attempts remaining to pending.
func (s *Service) RetryFailed(ctx context.Context, workspaceID, broadcastID string, maxAttempts int) (int, error) {
	if workspaceID == "" || broadcastID == "" {
		return 0, ErrInvalidInput
	}
	if maxAttempts <= 0 {
		return 0, fmt.Errorf("%w: max attempts must be > 0", ErrInvalidInput)
	}
	return s.store.RetryFailed(ctx, workspaceID, broadcastID, maxAttempts, s.clock().UTC())
}

func (s *Service) Stats(ctx context.Context, workspaceID, broadcastID string) (Stats, error) {
	if workspaceID == "" || broadcastID == "" {
		return Stats{}, ErrInvalidInput
	}
	return s.store.Stats(ctx, workspaceID, broadcastID)
}

func (s *Service) ListByStatus(ctx context.Context, workspaceID, broadcastID string, status Status) ([]QueueItem, error) {
	if workspaceID == "" || broadcastID == "" {
		return nil, ErrInvalidInput
	}
	return s.store.ListByStatus(ctx, workspaceID, broadcastID, status)
}

// StuckItems lists in-flight items whose last update is older than
// threshold, i.e. calls whose status callback likely never arrived.
func (s *Service) StuckItems(ctx context.Context, workspaceID, broadcastID string, threshold time.Duration) ([]QueueItem, error) {
	if workspaceID == "" || broadcastID == "" {
		return nil, ErrInvalidInput
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("%w: threshold must be > 0", ErrInvalidInput)
	}
	before := s.clock().UTC().Add(-threshold)
	return s.store.ListStuck(ctx, workspaceID, broadcastID, before)
}

func (s *Service) Get(ctx context.Context, workspaceID, itemID string) (QueueItem, error) {
	if workspaceID == "" || itemID == "" {
		return QueueItem{}, ErrInvalidInput
	}
	return s.store.Get(ctx, workspaceID, itemID)
}

func (s *Service) GetByProviderCallID(ctx context.Context, providerCallID string) (QueueItem, error) {
	if providerCallID == "" {
		return QueueItem{}, ErrInvalidInput
	}
	return s.store.GetByProviderCallID(ctx, providerCallID)
}

// TouchByProviderCallID bumps updated_at on an in-flight item so
// progress callbacks (ringing, in progress) keep it out of the stuck
// scan. No-op for terminal items.
func (s *Service) TouchByProviderCallID(ctx context.Context, providerCallID string) error {
	if providerCallID == "" {
		return ErrInvalidInput
	}
	item, err := s.store.GetByProviderCallID(ctx, providerCallID)
	if err != nil {
		return err
	}
	if item.Status.Terminal() {
		return nil
	}
	expect := item.Version
	item.UpdatedAt = s.clock().UTC()
	item.Version++
	return s.store.Update(ctx, item, expect)
}

// ReleaseDueCallbacks returns callback items whose scheduled time has
// passed to pending so the pacer redials them. Only used for broadcasts
// whose callback action is automatic.
func (s *Service) ReleaseDueCallbacks(ctx context.Context, workspaceID, broadcastID string) (int, error) {
	if workspaceID == "" || broadcastID == "" {
		return 0, ErrInvalidInput
	}
	now := s.clock().UTC()
	items, err := s.store.ListByStatus(ctx, workspaceID, broadcastID, StatusCallback)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, item := range items {
		if item.CallbackAt == nil || item.CallbackAt.After(now) {
			continue
		}
		expect := item.Version
		item.Status = StatusPending
		item.CallbackAt = nil
		item.ProviderCallID = ""
		item.UpdatedAt = now
		item.Version++
		if err := s.store.Update(ctx, item, expect); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return released, err
		}
		released++
	}
	return released, nil
}

// SetClock overrides the clock for deterministic tests.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }
