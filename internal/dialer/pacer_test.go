package dialer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/callerid"
	"dialer-platform/internal/config"
	"dialer-platform/internal/queue"
	"dialer-platform/internal/routing"
	"dialer-platform/internal/telephony"
)

// noonUTC is inside the test broadcast's bypassed window anyway.
var noonUTC = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

type fixture struct {
	pacer      *Pacer
	broadcasts *broadcast.Service
	queue      *queue.Service
	adapter    *telephony.MemoryAdapter
	bucket     *MemoryTokenBucket
	b          broadcast.Broadcast
}

func newFixture(t *testing.T, mutate func(*broadcast.Broadcast)) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := func() time.Time { return noonUTC }

	bsvc := broadcast.NewService(broadcast.NewMemoryStore())
	bsvc.SetClock(clock)
	qsvc := queue.NewService(queue.NewMemoryStore())
	qsvc.SetClock(clock)

	dir := callerid.NewMemoryDirectory()
	if err := dir.Upsert(ctx, callerid.PoolEntry{ID: "n1", WorkspaceID: "ws1", Number: "+12125550001", Healthy: true, RotationEligible: true}); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	sel := callerid.NewSelector(dir, callerid.NewMemoryUsageCounter())
	sel.SetClock(clock)

	adapter := telephony.NewMemoryAdapter()
	bucket := NewMemoryTokenBucket()
	bucket.SetClock(clock)

	cfg := config.DialerConfig{
		TickInterval:    10 * time.Millisecond,
		DispatchTimeout: time.Second,
		TestBatchSize:   10,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := NewPacer(bsvc, qsvc, sel, routing.NewEngine(routing.NewMemoryTrunkHealth(), nil), adapter, bucket, cfg, log)
	p.SetClock(clock)

	b, err := bsvc.Create(ctx, broadcast.CreateRequest{
		WorkspaceID:    "ws1",
		Name:           "summer promo",
		MessageText:    "hello",
		CallsPerMinute: 3,
		MaxAttempts:    2,
		CallingHours:   broadcast.CallingHours{Bypass: true},
	})
	if err != nil {
		t.Fatalf("create broadcast: %v", err)
	}
	b, err = bsvc.SetAudio(ctx, "ws1", b.ID, "https://cdn.example.com/a.mp3")
	if err != nil {
		t.Fatalf("set audio: %v", err)
	}
	if mutate != nil {
		mutate(&b)
		b, err = bsvc.UpdateSettings(ctx, "ws1", b.ID, broadcast.CreateRequest{
			WorkspaceID:    b.WorkspaceID,
			Name:           b.Name,
			MessageText:    b.MessageText,
			IVRMode:        b.IVRMode,
			DTMFActions:    b.DTMFActions,
			CallsPerMinute: b.CallsPerMinute,
			MaxAttempts:    b.MaxAttempts,
			CallingHours:   b.CallingHours,
			CallerID:       b.CallerID,
			AMD:            b.AMD,
			Route:          b.Route,
			Transfer:       b.Transfer,
		})
		if err != nil {
			t.Fatalf("update settings: %v", err)
		}
	}
	if _, err := bsvc.SetStatus(ctx, "ws1", b.ID, broadcast.StatusActive); err != nil {
		t.Fatalf("activate: %v", err)
	}
	b, _ = bsvc.Get(ctx, "ws1", b.ID)

	return &fixture{pacer: p, broadcasts: bsvc, queue: qsvc, adapter: adapter, bucket: bucket, b: b}
}

func (f *fixture) enqueue(t *testing.T, n int) {
	t.Helper()
	leads := make([]queue.LeadRef, 0, n)
	for i := 0; i < n; i++ {
		leads = append(leads, queue.LeadRef{
			LeadID: "lead-" + string(rune('a'+i)),
			Phone:  "+1415555" + string(rune('0'+i)) + "100",
		})
	}
	if _, err := f.queue.Enqueue(context.Background(), "ws1", f.b.ID, leads); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestRunOnceRespectsRateLimit(t *testing.T) {
	f := newFixture(t, nil) // 3 calls per minute
	f.enqueue(t, 10)
	ctx := context.Background()

	res, err := f.pacer.RunOnce(ctx, "ws1", f.b.ID)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Dispatched != 3 {
		t.Fatalf("dispatched = %d, want 3", res.Dispatched)
	}
	if f.adapter.PlacedCount() != 3 {
		t.Fatalf("provider saw %d calls, want 3", f.adapter.PlacedCount())
	}

	// Budget is spent for the rest of the minute.
	res, err = f.pacer.RunOnce(ctx, "ws1", f.b.ID)
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if res.Dispatched != 0 || res.Skipped == "" {
		t.Fatalf("second tick = %+v, want skip", res)
	}

	st, _ := f.queue.Stats(ctx, "ws1", f.b.ID)
	if st.Counts[queue.StatusCalling] != 3 || st.Counts[queue.StatusPending] != 7 {
		t.Fatalf("counts = %+v", st.Counts)
	}
}

func TestRunOnceSkipsWhenPaused(t *testing.T) {
	f := newFixture(t, nil)
	f.enqueue(t, 2)
	ctx := context.Background()

	if _, err := f.broadcasts.SetStatus(ctx, "ws1", f.b.ID, broadcast.StatusPaused); err != nil {
		t.Fatalf("pause: %v", err)
	}
	res, err := f.pacer.RunOnce(ctx, "ws1", f.b.ID)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Skipped != skipNotActive {
		t.Fatalf("skipped = %q", res.Skipped)
	}
	if f.adapter.PlacedCount() != 0 {
		t.Fatal("paused broadcast dialed")
	}
}

func TestRunOnceSkipsOutsideCallingHours(t *testing.T) {
	f := newFixture(t, func(b *broadcast.Broadcast) {
		// 09:00-17:00 Chicago; noon UTC is 07:00 CDT, before open.
		b.CallingHours = broadcast.CallingHours{
			Timezone:    "America/Chicago",
			StartMinute: 9 * 60,
			EndMinute:   17 * 60,
		}
	})
	f.enqueue(t, 2)

	res, err := f.pacer.RunOnce(context.Background(), "ws1", f.b.ID)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Skipped != skipWindowClosed {
		t.Fatalf("skipped = %q, want window closed", res.Skipped)
	}
	if f.adapter.PlacedCount() != 0 {
		t.Fatal("dialed outside the window")
	}
}

func TestRunOnceAutoCompletesDrainedBroadcast(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// No pending and no in-flight items.
	res, err := f.pacer.RunOnce(ctx, "ws1", f.b.ID)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !res.Completed {
		t.Fatalf("result = %+v, want completed", res)
	}
	b, _ := f.broadcasts.Get(ctx, "ws1", f.b.ID)
	if b.Status != broadcast.StatusCompleted {
		t.Fatalf("status = %s, want completed", b.Status)
	}
}

func TestRunOnceWaitsOnInFlight(t *testing.T) {
	f := newFixture(t, nil)
	f.enqueue(t, 1)
	ctx := context.Background()

	if _, err := f.pacer.RunOnce(ctx, "ws1", f.b.ID); err != nil {
		t.Fatalf("tick: %v", err)
	}
	// The one item is now calling; the broadcast must not complete yet.
	res, err := f.pacer.RunOnce(ctx, "ws1", f.b.ID)
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if res.Completed {
		t.Fatal("completed with a call still in flight")
	}
	b, _ := f.broadcasts.Get(ctx, "ws1", f.b.ID)
	if b.Status != broadcast.StatusActive {
		t.Fatalf("status = %s, want active", b.Status)
	}
}

func TestDispatchFailureReleasesClaim(t *testing.T) {
	f := newFixture(t, nil)
	f.enqueue(t, 1)
	f.adapter.PlaceErr = errors.New("provider down")
	ctx := context.Background()

	res, err := f.pacer.RunOnce(ctx, "ws1", f.b.ID)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Dispatched != 0 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}

	// Claim released back to pending with the attempt counted.
	st, _ := f.queue.Stats(ctx, "ws1", f.b.ID)
	if st.Counts[queue.StatusPending] != 1 {
		t.Fatalf("counts = %+v, want item back in pending", st.Counts)
	}
	items, _ := f.queue.ListByStatus(ctx, "ws1", f.b.ID, queue.StatusPending)
	if items[0].Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", items[0].Attempts)
	}
}

func TestDispatchSetsProviderCallID(t *testing.T) {
	f := newFixture(t, nil)
	f.enqueue(t, 1)
	ctx := context.Background()

	if _, err := f.pacer.RunOnce(ctx, "ws1", f.b.ID); err != nil {
		t.Fatalf("tick: %v", err)
	}
	items, _ := f.queue.ListByStatus(ctx, "ws1", f.b.ID, queue.StatusCalling)
	if len(items) != 1 {
		t.Fatalf("calling items = %d", len(items))
	}
	if items[0].ProviderCallID == "" {
		t.Fatal("provider call id not recorded")
	}
	if items[0].Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", items[0].Attempts)
	}

	b, _ := f.broadcasts.Get(ctx, "ws1", f.b.ID)
	if b.Counters.CallsPlaced != 1 {
		t.Fatalf("calls placed counter = %d", b.Counters.CallsPlaced)
	}
}

func TestDispatchUsesTrunkRoute(t *testing.T) {
	f := newFixture(t, func(b *broadcast.Broadcast) {
		b.Route = broadcast.RoutePolicy{Via: broadcast.RouteTrunk, TrunkURI: "pbx.example.com"}
	})
	f.enqueue(t, 1)

	if _, err := f.pacer.RunOnce(context.Background(), "ws1", f.b.ID); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if f.adapter.PlacedCount() != 1 {
		t.Fatal("no call placed")
	}
	if f.adapter.Placed[0].TrunkURI != "pbx.example.com" {
		t.Fatalf("trunk uri = %q", f.adapter.Placed[0].TrunkURI)
	}
}

func TestDispatchStopsWhenPausedMidBatch(t *testing.T) {
	f := newFixture(t, nil)
	f.enqueue(t, 3)
	ctx := context.Background()

	// Operator pauses the broadcast while the first call is going out.
	f.adapter.OnPlace = func(telephony.PlaceCallRequest) {
		f.adapter.OnPlace = nil
		if _, err := f.broadcasts.SetStatus(ctx, "ws1", f.b.ID, broadcast.StatusPaused); err != nil {
			t.Errorf("pause: %v", err)
		}
	}

	res, err := f.pacer.RunOnce(ctx, "ws1", f.b.ID)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Dispatched != 1 {
		t.Fatalf("dispatched = %d, want 1", res.Dispatched)
	}
	if f.adapter.PlacedCount() != 1 {
		t.Fatalf("provider saw %d calls after the pause, want 1", f.adapter.PlacedCount())
	}

	// The rest of the batch went back to pending, undialed.
	st, _ := f.queue.Stats(ctx, "ws1", f.b.ID)
	if st.Counts[queue.StatusPending] != 2 || st.Counts[queue.StatusCalling] != 1 {
		t.Fatalf("counts = %+v", st.Counts)
	}
	items, _ := f.queue.ListByStatus(ctx, "ws1", f.b.ID, queue.StatusPending)
	for _, it := range items {
		if it.Attempts != 0 {
			t.Fatalf("undialed item %s has %d attempts, want 0", it.ID, it.Attempts)
		}
	}
}

func TestDispatchBatchBypassesRateLimit(t *testing.T) {
	f := newFixture(t, nil) // 3 per minute
	f.enqueue(t, 5)

	dispatched, failed, err := f.pacer.DispatchBatch(context.Background(), f.b, 5)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if dispatched != 5 || failed != 0 {
		t.Fatalf("dispatched=%d failed=%d", dispatched, failed)
	}
}

func TestMemoryTokenBucketWindow(t *testing.T) {
	b := NewMemoryTokenBucket()
	now := noonUTC
	b.SetClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := b.Take(ctx, "bc1", 2)
		if err != nil || !ok {
			t.Fatalf("take %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := b.Take(ctx, "bc1", 2); ok {
		t.Fatal("third take should be refused")
	}

	// Next minute refills the budget.
	now = now.Add(time.Minute)
	if ok, _ := b.Take(ctx, "bc1", 2); !ok {
		t.Fatal("take after window rollover refused")
	}
}
