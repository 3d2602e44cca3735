package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	svc := NewService(store)
	svc.SetClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	return svc, store
}

func createRequest() CreateRequest {
	return CreateRequest{
		WorkspaceID:    "ws1",
		Name:           "Spring promo",
		MessageText:    "Hi, press 1 to talk to an agent.",
		IVRMode:        IVRModeDTMF,
		DTMFActions:    []DTMFAction{{Digit: "1", Type: ActionTransfer, TransferTo: "+15551234567"}},
		CallsPerMinute: 60,
		MaxAttempts:    3,
		CallingHours:   CallingHours{Timezone: "America/Chicago", StartMinute: 9 * 60, EndMinute: 17 * 60},
		CallerID:       CallerIDPolicy{Mode: CallerIDAuto},
		Route:          RoutePolicy{Via: RouteDirect},
	}
}

func TestCreate_StartsInDraft(t *testing.T) {
	svc, _ := newTestService()

	b, err := svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != StatusDraft {
		t.Fatalf("expected draft, got %s", b.Status)
	}
	if b.ID == "" {
		t.Fatalf("expected generated id")
	}
}

func TestCreate_RejectsInvalidConfigBeforeAnyStateChange(t *testing.T) {
	svc, store := newTestService()

	req := createRequest()
	req.CallsPerMinute = -5
	_, err := svc.Create(context.Background(), req)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	all, _ := store.List(context.Background(), "ws1")
	if len(all) != 0 {
		t.Fatalf("expected nothing persisted, got %d", len(all))
	}
}

func TestSetStatus_EnforcesLifecycle(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	b, err := svc.Create(ctx, createRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.SetStatus(ctx, "ws1", b.ID, StatusCompleted); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("expected ErrBadTransition for draft->completed, got %v", err)
	}

	if _, err := svc.SetStatus(ctx, "ws1", b.ID, StatusActive); err != nil {
		t.Fatalf("draft->active failed: %v", err)
	}
	if _, err := svc.SetStatus(ctx, "ws1", b.ID, StatusPaused); err != nil {
		t.Fatalf("active->paused failed: %v", err)
	}
	// Idempotent pause.
	if _, err := svc.SetStatus(ctx, "ws1", b.ID, StatusPaused); err != nil {
		t.Fatalf("paused->paused should be a no-op, got %v", err)
	}
	got, err := svc.SetStatus(ctx, "ws1", b.ID, StatusActive)
	if err != nil {
		t.Fatalf("paused->active failed: %v", err)
	}
	if got.Status != StatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
}

func TestApplyCounterDelta(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	b, _ := svc.Create(ctx, createRequest())
	if err := svc.ApplyCounterDelta(ctx, "ws1", b.ID, CounterDelta{CallsPlaced: 1, Transferred: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.ApplyCounterDelta(ctx, "ws1", b.ID, CounterDelta{CallsPlaced: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := svc.Get(ctx, "ws1", b.ID)
	if got.Counters.CallsPlaced != 2 || got.Counters.Transferred != 1 {
		t.Fatalf("unexpected counters: %+v", got.Counters)
	}
}

func TestSoftDelete_RefusesActiveBroadcast(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	b, _ := svc.Create(ctx, createRequest())
	if _, err := svc.SetStatus(ctx, "ws1", b.ID, StatusActive); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.SoftDelete(ctx, "ws1", b.ID); err == nil {
		t.Fatalf("expected error deleting active broadcast")
	}

	if _, err := svc.SetStatus(ctx, "ws1", b.ID, StatusPaused); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.SoftDelete(ctx, "ws1", b.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Get(ctx, "ws1", b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after soft delete, got %v", err)
	}
}

func TestWorkspaceIsolation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	b, _ := svc.Create(ctx, createRequest())
	if _, err := svc.Get(ctx, "ws2", b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cross-workspace read to miss, got %v", err)
	}
}
