// Package monitor recovers queue items whose provider callbacks never
// arrived and reconciles engine state against the provider's.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/config"
	"dialer-platform/internal/queue"
	"dialer-platform/internal/telephony"
)

// Mismatch is one reconciliation row comparing our view of a call with
// the provider's.
type Mismatch struct {
	ItemID         string              `json:"item_id"`
	ProviderCallID string              `json:"provider_call_id"`
	OurStatus      queue.Status        `json:"our_status"`
	ProviderStatus telephony.CallState `json:"provider_status"`
	Agree          bool                `json:"agree"`
}

// RetryFlusher drains deferred writes that failed their first attempt.
// Flush reports how many remain queued. The dnc marker implements it.
type RetryFlusher interface {
	Flush(ctx context.Context) int
}

type Monitor struct {
	broadcasts *broadcast.Service
	queue      *queue.Service
	adapter    telephony.Adapter
	retry      RetryFlusher
	cfg        config.DialerConfig
	log        *slog.Logger
	clock      func() time.Time
}

func New(
	broadcasts *broadcast.Service,
	q *queue.Service,
	adapter telephony.Adapter,
	retry RetryFlusher,
	cfg config.DialerConfig,
	log *slog.Logger,
) *Monitor {
	return &Monitor{
		broadcasts: broadcasts,
		queue:      q,
		adapter:    adapter,
		retry:      retry,
		cfg:        cfg,
		log:        log,
		clock:      time.Now,
	}
}

// Cleanup fails every stuck in-flight item (no update within the stuck
// threshold). The dispatch attempt was already counted, so items with
// attempts remaining go back to pending and exhausted ones stay failed.
func (m *Monitor) Cleanup(ctx context.Context, workspaceID, broadcastID string) (int, error) {
	b, err := m.broadcasts.Get(ctx, workspaceID, broadcastID)
	if err != nil {
		return 0, err
	}
	stuck, err := m.queue.StuckItems(ctx, workspaceID, broadcastID, m.cfg.StuckThreshold)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, item := range stuck {
		_, err := m.queue.ApplyOutcome(ctx, workspaceID, item.ID, queue.Outcome{
			Kind:        queue.OutcomeFailed,
			MaxAttempts: b.MaxAttempts,
			Error:       "status callback not received",
		})
		if err != nil {
			// Lost the race with a real callback. That is the outcome
			// we wanted anyway.
			if errors.Is(err, queue.ErrAlreadyTerminal) || errors.Is(err, queue.ErrVersionConflict) {
				continue
			}
			return cleaned, err
		}
		cleaned++
		m.log.Info("stuck item recovered",
			slog.String("broadcast_id", broadcastID),
			slog.String("item_id", item.ID),
			slog.Int("attempts", item.Attempts))
	}
	return cleaned, nil
}

// Inspect compares every stuck item's status with the provider's
// current view. It is read-only: mismatches are reported, not fixed,
// so an operator decides before any bulk correction.
func (m *Monitor) Inspect(ctx context.Context, workspaceID, broadcastID string) ([]Mismatch, error) {
	stuck, err := m.queue.StuckItems(ctx, workspaceID, broadcastID, m.cfg.StuckThreshold)
	if err != nil {
		return nil, err
	}

	out := make([]Mismatch, 0, len(stuck))
	for _, item := range stuck {
		row := Mismatch{
			ItemID:         item.ID,
			ProviderCallID: item.ProviderCallID,
			OurStatus:      item.Status,
			ProviderStatus: telephony.CallStateUnknown,
		}
		if item.ProviderCallID != "" {
			state, err := m.adapter.GetCallStatus(ctx, item.ProviderCallID)
			if err != nil {
				m.log.Warn("provider status lookup failed",
					slog.String("provider_call_id", item.ProviderCallID),
					slog.String("error", err.Error()))
			} else {
				row.ProviderStatus = state
			}
		}
		row.Agree = statusesAgree(row.OurStatus, row.ProviderStatus)
		out = append(out, row)
	}
	return out, nil
}

// statusesAgree maps in-flight queue statuses onto the provider states
// they are consistent with.
func statusesAgree(ours queue.Status, theirs telephony.CallState) bool {
	switch ours {
	case queue.StatusCalling:
		return theirs == telephony.CallStateQueued ||
			theirs == telephony.CallStateRinging ||
			theirs == telephony.CallStateInProgress
	case queue.StatusAnswered:
		return theirs == telephony.CallStateInProgress
	default:
		return false
	}
}

// Run sweeps the broadcast on the monitor interval until ctx ends:
// stuck cleanup plus releasing due callbacks when the broadcast
// auto-redials them.
func (m *Monitor) Run(ctx context.Context, workspaceID, broadcastID string) error {
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if _, err := m.Cleanup(ctx, workspaceID, broadcastID); err != nil {
			if errors.Is(err, broadcast.ErrNotFound) {
				return err
			}
			m.log.Error("stuck cleanup failed",
				slog.String("broadcast_id", broadcastID),
				slog.String("error", err.Error()))
			continue
		}

		if m.retry != nil {
			if n := m.retry.Flush(ctx); n > 0 {
				m.log.Warn("deferred dnc marks still queued", slog.Int("remaining", n))
			}
		}

		b, err := m.broadcasts.Get(ctx, workspaceID, broadcastID)
		if err != nil {
			return err
		}
		if hasAutoCallback(b) {
			if n, err := m.queue.ReleaseDueCallbacks(ctx, workspaceID, broadcastID); err != nil {
				m.log.Error("callback release failed",
					slog.String("broadcast_id", broadcastID),
					slog.String("error", err.Error()))
			} else if n > 0 {
				m.log.Info("callbacks released for redial",
					slog.String("broadcast_id", broadcastID),
					slog.Int("count", n))
			}
		}
	}
}

func hasAutoCallback(b broadcast.Broadcast) bool {
	for _, a := range b.DTMFActions {
		if a.Type == broadcast.ActionCallback && a.AutoCallback {
			return true
		}
	}
	return false
}

// SetClock overrides the clock for deterministic tests.
func (m *Monitor) SetClock(clock func() time.Time) { m.clock = clock }
