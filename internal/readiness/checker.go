// Package readiness runs pre-flight checks before a broadcast starts
// dialing. Blocking failures stop the launch; warnings surface to the
// operator but do not.
package readiness

import (
	"context"
	"fmt"
	"time"

	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/queue"
)

type CheckStatus string

const (
	StatusPass    CheckStatus = "pass"
	StatusWarning CheckStatus = "warning"
	StatusFail    CheckStatus = "fail"
)

// Check is one pre-flight verdict with a remediation hint for the UI.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
}

// Result aggregates all checks for one broadcast.
type Result struct {
	BroadcastID string    `json:"broadcast_id"`
	Checks      []Check   `json:"checks"`
	CheckedAt   time.Time `json:"checked_at"`
}

// IsReady reports whether no blocking check failed. Warnings do not
// block.
func (r Result) IsReady() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return false
		}
	}
	return true
}

// Failures returns the blocking checks only.
func (r Result) Failures() []Check {
	var out []Check
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			out = append(out, c)
		}
	}
	return out
}

// NumberPool is the slice of the caller-id pool readiness needs.
type NumberPool interface {
	UsableCount(ctx context.Context, workspaceID string) (int, error)
}

// QueueStats is the slice of the queue readiness needs.
type QueueStats interface {
	Stats(ctx context.Context, workspaceID, broadcastID string) (queue.Stats, error)
}

// leadsPerNumber is the pool-size guideline: one outbound number per
// this many queued leads keeps spam-flagging risk down.
const leadsPerNumber = 200

// minWindowRemaining is the shortest useful calling window left in the
// day before we warn the operator.
const minWindowRemaining = 2 * time.Hour

type Checker struct {
	pool  NumberPool
	stats QueueStats
	clock func() time.Time
}

func NewChecker(pool NumberPool, stats QueueStats) *Checker {
	return &Checker{pool: pool, stats: stats, clock: time.Now}
}

// Run evaluates every check for the broadcast. Checks that cannot be
// evaluated (store errors) fail closed.
func (c *Checker) Run(ctx context.Context, b broadcast.Broadcast) (Result, error) {
	now := c.clock().UTC()
	res := Result{BroadcastID: b.ID, CheckedAt: now}

	st, err := c.stats.Stats(ctx, b.WorkspaceID, b.ID)
	if err != nil {
		return Result{}, fmt.Errorf("queue stats: %w", err)
	}
	usable, err := c.pool.UsableCount(ctx, b.WorkspaceID)
	if err != nil {
		return Result{}, fmt.Errorf("caller id pool: %w", err)
	}

	res.Checks = append(res.Checks,
		c.checkAudio(b),
		c.checkPendingItems(st),
		c.checkPhoneNumbers(usable),
		c.checkPoolRatio(st, usable),
		c.checkCallingWindow(b, now),
	)
	return res, nil
}

func (c *Checker) checkAudio(b broadcast.Broadcast) Check {
	if b.AudioURL == "" {
		return Check{
			ID:          "audio_ready",
			Status:      StatusFail,
			Message:     "broadcast has no audio",
			Remediation: "generate or upload the broadcast message audio",
		}
	}
	return Check{ID: "audio_ready", Status: StatusPass, Message: "audio is ready"}
}

func (c *Checker) checkPendingItems(st queue.Stats) Check {
	pending := st.Counts[queue.StatusPending]
	if pending == 0 {
		return Check{
			ID:          "pending_items",
			Status:      StatusFail,
			Message:     "queue has no pending items",
			Remediation: "enqueue leads, or reset the queue to dial everyone again",
		}
	}
	return Check{
		ID:      "pending_items",
		Status:  StatusPass,
		Message: fmt.Sprintf("%d items pending", pending),
	}
}

func (c *Checker) checkPhoneNumbers(usable int) Check {
	if usable == 0 {
		return Check{
			ID:          "phone_numbers",
			Status:      StatusFail,
			Message:     "no healthy outbound numbers available",
			Remediation: "add numbers to the caller id pool or restore their health",
		}
	}
	return Check{
		ID:      "phone_numbers",
		Status:  StatusPass,
		Message: fmt.Sprintf("%d usable numbers", usable),
	}
}

func (c *Checker) checkPoolRatio(st queue.Stats, usable int) Check {
	pending := st.Counts[queue.StatusPending]
	if usable > 0 && pending > usable*leadsPerNumber {
		return Check{
			ID:     "pool_ratio",
			Status: StatusWarning,
			Message: fmt.Sprintf("%d pending leads across %d numbers exceeds %d leads per number",
				pending, usable, leadsPerNumber),
			Remediation: "add more numbers to reduce per-number dial volume",
		}
	}
	return Check{ID: "pool_ratio", Status: StatusPass, Message: "pool size fits lead volume"}
}

func (c *Checker) checkCallingWindow(b broadcast.Broadcast, now time.Time) Check {
	open, err := b.CallingHours.Open(now)
	if err != nil {
		return Check{
			ID:          "calling_window",
			Status:      StatusFail,
			Message:     "calling hours misconfigured: " + err.Error(),
			Remediation: "fix the broadcast timezone",
		}
	}
	if !open {
		return Check{
			ID:          "calling_window",
			Status:      StatusWarning,
			Message:     "outside calling hours; dialing will wait for the window to open",
			Remediation: "start later, widen the window, or bypass calling hours",
		}
	}
	remaining, _ := b.CallingHours.RemainingToday(now)
	if remaining < minWindowRemaining {
		return Check{
			ID:     "calling_window",
			Status: StatusWarning,
			Message: fmt.Sprintf("only %s left in today's calling window",
				remaining.Round(time.Minute)),
			Remediation: "large queues may not finish today",
		}
	}
	return Check{ID: "calling_window", Status: StatusPass, Message: "calling window open"}
}

// UsableNumbers reports the usable caller id pool size, for callers
// that need the raw count outside a full check run.
func (c *Checker) UsableNumbers(ctx context.Context, workspaceID string) (int, error) {
	return c.pool.UsableCount(ctx, workspaceID)
}

// SetClock overrides the clock for deterministic tests.
func (c *Checker) SetClock(clock func() time.Time) { c.clock = clock }
