// Package dialer drives outbound calls for active broadcasts: it claims
// pending queue items under the rate limit and hands them to the
// provider adapter.
package dialer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/callerid"
	"dialer-platform/internal/config"
	"dialer-platform/internal/queue"
	"dialer-platform/internal/routing"
	"dialer-platform/internal/telephony"
)

// TickResult summarizes one pacer pass over a broadcast.
type TickResult struct {
	Dispatched int
	Failed     int
	// Skipped explains why nothing was dialed, empty when dialing ran.
	Skipped string
	// Completed is set when the pass drained the queue and closed the
	// broadcast.
	Completed bool
}

const (
	skipNotActive    = "broadcast not active"
	skipWindowClosed = "outside calling hours"
)

// Pacer is the dial loop for one workspace's broadcasts. All state
// lives in the stores, so multiple pacer replicas can run concurrently
// against the same broadcast.
type Pacer struct {
	broadcasts *broadcast.Service
	queue      *queue.Service
	selector   *callerid.Selector
	router     *routing.Engine
	adapter    telephony.Adapter
	bucket     TokenBucket
	cfg        config.DialerConfig
	log        *slog.Logger
	clock      func() time.Time
}

func NewPacer(
	broadcasts *broadcast.Service,
	q *queue.Service,
	selector *callerid.Selector,
	router *routing.Engine,
	adapter telephony.Adapter,
	bucket TokenBucket,
	cfg config.DialerConfig,
	log *slog.Logger,
) *Pacer {
	return &Pacer{
		broadcasts: broadcasts,
		queue:      q,
		selector:   selector,
		router:     router,
		adapter:    adapter,
		bucket:     bucket,
		cfg:        cfg,
		log:        log,
		clock:      time.Now,
	}
}

// RunOnce performs a single pacing pass: it re-checks broadcast status
// and calling hours, auto-completes a drained broadcast, and otherwise
// dispatches as many pending items as the rate budget allows.
func (p *Pacer) RunOnce(ctx context.Context, workspaceID, broadcastID string) (TickResult, error) {
	b, err := p.broadcasts.Get(ctx, workspaceID, broadcastID)
	if err != nil {
		return TickResult{}, err
	}
	if b.Status != broadcast.StatusActive {
		return TickResult{Skipped: skipNotActive}, nil
	}

	open, err := b.CallingHours.Open(p.clock())
	if err != nil {
		return TickResult{}, err
	}
	if !open {
		return TickResult{Skipped: skipWindowClosed}, nil
	}

	st, err := p.queue.Stats(ctx, workspaceID, broadcastID)
	if err != nil {
		return TickResult{}, err
	}
	if st.Counts[queue.StatusPending] == 0 {
		if st.InFlight() == 0 {
			// Queue drained. The pacer owns active -> completed.
			if _, err := p.broadcasts.SetStatus(ctx, workspaceID, broadcastID, broadcast.StatusCompleted); err != nil {
				if !errors.Is(err, broadcast.ErrBadTransition) {
					return TickResult{}, err
				}
			}
			p.log.Info("broadcast drained",
				slog.String("workspace_id", workspaceID),
				slog.String("broadcast_id", broadcastID))
			return TickResult{Completed: true}, nil
		}
		return TickResult{Skipped: "waiting on in-flight calls"}, nil
	}

	// Convert the remaining minute budget into a claim size. Tokens are
	// taken before claiming so concurrent pacers share one budget.
	want := st.Counts[queue.StatusPending]
	if want > b.CallsPerMinute {
		want = b.CallsPerMinute
	}
	allowed := 0
	for allowed < want {
		ok, err := p.bucket.Take(ctx, broadcastID, b.CallsPerMinute)
		if err != nil {
			return TickResult{}, err
		}
		if !ok {
			break
		}
		allowed++
	}
	if allowed == 0 {
		return TickResult{Skipped: "rate budget spent"}, nil
	}

	dispatched, failed, err := p.DispatchBatch(ctx, b, allowed)
	return TickResult{Dispatched: dispatched, Failed: failed}, err
}

// DispatchBatch claims up to n pending items and dials them, bypassing
// the rate budget. The control surface uses it directly for test
// batches. Broadcast status is re-checked before every dial so an
// operator stop landing mid-batch cuts it short.
func (p *Pacer) DispatchBatch(ctx context.Context, b broadcast.Broadcast, n int) (dispatched, failed int, err error) {
	items, err := p.queue.ClaimBatch(ctx, b.WorkspaceID, b.ID, n)
	if err != nil {
		return 0, 0, err
	}
	for i, item := range items {
		cur, gerr := p.broadcasts.Get(ctx, b.WorkspaceID, b.ID)
		if gerr != nil {
			p.unclaim(ctx, items[i:])
			return dispatched, failed, gerr
		}
		if cur.Status != b.Status {
			// Stop or pause arrived between the claim and this dial.
			// Undialed items go back to pending, not out the door.
			p.unclaim(ctx, items[i:])
			p.log.Info("batch cut short by status change",
				slog.String("broadcast_id", b.ID),
				slog.String("status", string(cur.Status)),
				slog.Int("returned", len(items)-i))
			break
		}
		if err := p.dispatchOne(ctx, b, item); err != nil {
			failed++
			p.log.Warn("dispatch failed",
				slog.String("broadcast_id", b.ID),
				slog.String("item_id", item.ID),
				slog.String("error", err.Error()))
			continue
		}
		dispatched++
	}
	if dispatched > 0 {
		if cerr := p.broadcasts.ApplyCounterDelta(ctx, b.WorkspaceID, b.ID, broadcast.CounterDelta{CallsPlaced: dispatched}); cerr != nil {
			p.log.Warn("counter update failed", slog.String("broadcast_id", b.ID), slog.String("error", cerr.Error()))
		}
	}
	return dispatched, failed, nil
}

// dispatchOne places one call. Whatever goes wrong, the claimed item is
// always either dispatched or released; it must not stay in calling
// without a provider call id.
func (p *Pacer) dispatchOne(ctx context.Context, b broadcast.Broadcast, item queue.QueueItem) error {
	decision, err := p.router.Route(ctx, b.WorkspaceID, b.ID, b.Route)
	if err != nil {
		return p.release(ctx, item, "routing: "+err.Error(), b.MaxAttempts, err)
	}

	fixed := ""
	if b.CallerID.Mode == broadcast.CallerIDFixed {
		fixed = b.CallerID.FixedNumber
	}
	from, err := p.selector.Select(ctx, b.WorkspaceID, item.Phone, fixed, decision.TrunkURI != "")
	if err != nil {
		return p.release(ctx, item, "caller id selection: "+err.Error(), b.MaxAttempts, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.DispatchTimeout)
	defer cancel()

	result, err := p.adapter.PlaceCall(callCtx, telephony.PlaceCallRequest{
		WorkspaceID:  b.WorkspaceID,
		BroadcastID:  b.ID,
		ItemID:       item.ID,
		From:         from,
		To:           item.Phone,
		AudioURL:     b.AudioURL,
		GatherDigits: b.IVRMode == broadcast.IVRModeDTMF,
		AMD:          telephony.AMDConfig{Enabled: b.AMD.Enabled},
		TrunkURI:     decision.TrunkURI,
	})
	if err != nil {
		return p.release(ctx, item, "place call: "+err.Error(), b.MaxAttempts, err)
	}

	if _, err := p.queue.MarkDispatched(ctx, item, result.ProviderCallID); err != nil {
		// The call is already out; hang it up rather than leaving an
		// untracked live call.
		if herr := p.adapter.Hangup(ctx, result.ProviderCallID); herr != nil {
			p.log.Error("orphaned call hangup failed",
				slog.String("provider_call_id", result.ProviderCallID),
				slog.String("error", herr.Error()))
		}
		return err
	}
	return nil
}

// unclaim hands claimed-but-undialed items back to pending. No attempt
// is counted, nothing was dialed.
func (p *Pacer) unclaim(ctx context.Context, items []queue.QueueItem) {
	for _, item := range items {
		if _, err := p.queue.Unclaim(ctx, item); err != nil {
			p.log.Error("unclaim failed",
				slog.String("item_id", item.ID),
				slog.String("error", err.Error()))
		}
	}
}

func (p *Pacer) release(ctx context.Context, item queue.QueueItem, cause string, maxAttempts int, dispatchErr error) error {
	if _, rerr := p.queue.ReleaseClaim(ctx, item, cause, maxAttempts); rerr != nil {
		return errors.Join(dispatchErr, rerr)
	}
	return dispatchErr
}

// Run ticks the pacer until ctx is cancelled or the broadcast leaves
// the active status.
func (p *Pacer) Run(ctx context.Context, workspaceID, broadcastID string) error {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	for {
		res, err := p.RunOnce(ctx, workspaceID, broadcastID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, broadcast.ErrNotFound) {
				return err
			}
			p.log.Error("pacer tick failed",
				slog.String("broadcast_id", broadcastID),
				slog.String("error", err.Error()))
		}
		if res.Completed || res.Skipped == skipNotActive {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SetClock overrides the clock for deterministic tests.
func (p *Pacer) SetClock(clock func() time.Time) { p.clock = clock }
