package readiness

import (
	"context"
	"testing"
	"time"

	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/queue"
)

type fakePool struct{ usable int }

func (f fakePool) UsableCount(ctx context.Context, workspaceID string) (int, error) {
	return f.usable, nil
}

type fakeStats struct{ counts map[queue.Status]int }

func (f fakeStats) Stats(ctx context.Context, workspaceID, broadcastID string) (queue.Stats, error) {
	return queue.Stats{BroadcastID: broadcastID, Counts: f.counts}, nil
}

func testBroadcast() broadcast.Broadcast {
	return broadcast.Broadcast{
		ID:          "bc1",
		WorkspaceID: "ws1",
		AudioURL:    "https://cdn.example.com/audio/bc1.mp3",
		CallingHours: broadcast.CallingHours{
			Timezone:    "America/Chicago",
			StartMinute: 9 * 60,
			EndMinute:   20 * 60,
		},
	}
}

func checkByID(t *testing.T, r Result, id string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("check %q missing from result", id)
	return Check{}
}

// noon Chicago time in UTC (CDT, -5).
var noonCDT = time.Date(2025, 6, 2, 17, 0, 0, 0, time.UTC)

func TestAllChecksPass(t *testing.T) {
	c := NewChecker(fakePool{usable: 5}, fakeStats{counts: map[queue.Status]int{queue.StatusPending: 100}})
	c.SetClock(func() time.Time { return noonCDT })

	res, err := c.Run(context.Background(), testBroadcast())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.IsReady() {
		t.Fatalf("not ready: %+v", res.Failures())
	}
	for _, check := range res.Checks {
		if check.Status != StatusPass {
			t.Errorf("check %s = %s (%s)", check.ID, check.Status, check.Message)
		}
	}
}

func TestZeroHealthyNumbersBlocks(t *testing.T) {
	c := NewChecker(fakePool{usable: 0}, fakeStats{counts: map[queue.Status]int{queue.StatusPending: 10}})
	c.SetClock(func() time.Time { return noonCDT })

	res, err := c.Run(context.Background(), testBroadcast())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.IsReady() {
		t.Fatal("expected not ready with an empty pool")
	}
	check := checkByID(t, res, "phone_numbers")
	if check.Status != StatusFail {
		t.Fatalf("phone_numbers = %s, want fail", check.Status)
	}
	if check.Remediation == "" {
		t.Fatal("blocking check missing remediation")
	}
}

func TestMissingAudioBlocks(t *testing.T) {
	c := NewChecker(fakePool{usable: 2}, fakeStats{counts: map[queue.Status]int{queue.StatusPending: 10}})
	c.SetClock(func() time.Time { return noonCDT })

	b := testBroadcast()
	b.AudioURL = ""
	res, _ := c.Run(context.Background(), b)
	if res.IsReady() {
		t.Fatal("expected not ready without audio")
	}
	if checkByID(t, res, "audio_ready").Status != StatusFail {
		t.Fatal("audio_ready should fail")
	}
}

func TestEmptyQueueBlocks(t *testing.T) {
	c := NewChecker(fakePool{usable: 2}, fakeStats{counts: map[queue.Status]int{}})
	c.SetClock(func() time.Time { return noonCDT })

	res, _ := c.Run(context.Background(), testBroadcast())
	if res.IsReady() {
		t.Fatal("expected not ready with empty queue")
	}
	if checkByID(t, res, "pending_items").Status != StatusFail {
		t.Fatal("pending_items should fail")
	}
}

func TestPoolRatioWarns(t *testing.T) {
	// 1000 leads on 2 numbers is 500 per number, past the guideline.
	c := NewChecker(fakePool{usable: 2}, fakeStats{counts: map[queue.Status]int{queue.StatusPending: 1000}})
	c.SetClock(func() time.Time { return noonCDT })

	res, _ := c.Run(context.Background(), testBroadcast())
	check := checkByID(t, res, "pool_ratio")
	if check.Status != StatusWarning {
		t.Fatalf("pool_ratio = %s, want warning", check.Status)
	}
	// Warnings never block.
	if !res.IsReady() {
		t.Fatal("warning should not block readiness")
	}
}

func TestCallingWindowWarnings(t *testing.T) {
	stats := fakeStats{counts: map[queue.Status]int{queue.StatusPending: 10}}

	// 19:30 local with a 20:00 close leaves 30 minutes.
	c := NewChecker(fakePool{usable: 2}, stats)
	c.SetClock(func() time.Time { return time.Date(2025, 6, 3, 0, 30, 0, 0, time.UTC) })
	res, _ := c.Run(context.Background(), testBroadcast())
	if checkByID(t, res, "calling_window").Status != StatusWarning {
		t.Fatal("short remaining window should warn")
	}

	// 06:00 local, before the window opens.
	c.SetClock(func() time.Time { return time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC) })
	res, _ = c.Run(context.Background(), testBroadcast())
	check := checkByID(t, res, "calling_window")
	if check.Status != StatusWarning {
		t.Fatalf("calling_window = %s, want warning outside hours", check.Status)
	}
	if !res.IsReady() {
		t.Fatal("closed window should warn, not block")
	}

	// Bypass silences the window check entirely.
	b := testBroadcast()
	b.CallingHours.Bypass = true
	res, _ = c.Run(context.Background(), b)
	if checkByID(t, res, "calling_window").Status != StatusPass {
		t.Fatal("bypassed window should pass")
	}
}
