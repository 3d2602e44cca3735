// Package ivr turns provider call events into queue outcomes. It is
// the CallbackSink behind the webhook endpoints: answers, digit
// presses, and status changes all land here and leave as queue item
// transitions, broadcast counters, and dashboard events.
package ivr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/calendarx"
	"dialer-platform/internal/events"
	"dialer-platform/internal/leads"
	"dialer-platform/internal/queue"
	"dialer-platform/internal/telephony"
)

// Handler implements telephony.CallbackSink.
type Handler struct {
	broadcasts *broadcast.Service
	queue      *queue.Service
	dnc        *leads.DNCMarker
	scheduler  calendarx.Scheduler
	bus        *events.Bus
	dedup      Deduper
	gate       TransferGate
	log        *slog.Logger
	clock      func() time.Time

	// gatherActionURL is where the provider posts captured digits.
	gatherActionURL string
}

func NewHandler(
	broadcasts *broadcast.Service,
	q *queue.Service,
	dnc *leads.DNCMarker,
	scheduler calendarx.Scheduler,
	bus *events.Bus,
	dedup Deduper,
	gate TransferGate,
	gatherActionURL string,
	log *slog.Logger,
) *Handler {
	return &Handler{
		broadcasts:      broadcasts,
		queue:           q,
		dnc:             dnc,
		scheduler:       scheduler,
		bus:             bus,
		dedup:           dedup,
		gate:            gate,
		gatherActionURL: gatherActionURL,
		log:             log,
		clock:           time.Now,
	}
}

var hangupReply = telephony.Reply{Hangup: true}

// HandleAnswer decides what the callee hears when the call connects.
// Machine detection applies the broadcast's AMD policy; humans hear the
// message, with a digit gather in dtmf mode.
func (h *Handler) HandleAnswer(ctx context.Context, cb telephony.AnswerCallback) (telephony.Reply, error) {
	item, err := h.queue.GetByProviderCallID(ctx, cb.ProviderCallID)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			// Unknown call (stale webhook, reset queue). End it politely.
			return hangupReply, nil
		}
		return telephony.Reply{}, err
	}
	b, err := h.broadcasts.Get(ctx, item.WorkspaceID, item.BroadcastID)
	if err != nil {
		return telephony.Reply{}, err
	}

	first, err := h.dedup.First(ctx, cb.ProviderCallID+":answer")
	if err != nil {
		return telephony.Reply{}, err
	}

	if cb.AnsweredBy == telephony.AnsweredByMachine && b.AMD.Enabled {
		return h.handleMachine(ctx, b, item, first)
	}

	if first {
		if _, err := h.queue.ApplyOutcome(ctx, item.WorkspaceID, item.ID, queue.Outcome{Kind: queue.OutcomeAnswered}); err != nil {
			if !errors.Is(err, queue.ErrAlreadyTerminal) {
				return telephony.Reply{}, err
			}
		} else {
			h.bumpCounter(ctx, b, broadcast.CounterDelta{Answered: 1})
			h.publish(events.TypeCallAnswered, b, item, map[string]any{"answered_by": cb.AnsweredBy})
		}
	}

	reply := telephony.Reply{PlayURL: b.AudioURL}
	if b.IVRMode == broadcast.IVRModeDTMF && len(b.DTMFActions) > 0 {
		reply.Gather = true
		reply.GatherActionURL = h.gatherActionURL
	} else {
		reply.Hangup = true
	}
	return reply, nil
}

func (h *Handler) handleMachine(ctx context.Context, b broadcast.Broadcast, item queue.QueueItem, first bool) (telephony.Reply, error) {
	switch b.AMD.OnDetect {
	case broadcast.AMDLeaveMessage:
		if first {
			if _, err := h.queue.ApplyOutcome(ctx, item.WorkspaceID, item.ID, queue.Outcome{Kind: queue.OutcomeVoicemail}); err != nil && !errors.Is(err, queue.ErrAlreadyTerminal) {
				return telephony.Reply{}, err
			}
			h.publish(events.TypeCallCompleted, b, item, map[string]any{"voicemail": true})
		}
		return telephony.Reply{PlayURL: b.VoicemailAudio(), Hangup: true}, nil

	default: // hangup
		if first {
			if _, err := h.queue.ApplyOutcome(ctx, item.WorkspaceID, item.ID, queue.Outcome{Kind: queue.OutcomeCompleted, Error: "machine detected"}); err != nil && !errors.Is(err, queue.ErrAlreadyTerminal) {
				return telephony.Reply{}, err
			}
			h.publish(events.TypeCallCompleted, b, item, map[string]any{"machine": true})
		}
		return hangupReply, nil
	}
}

// HandleGather routes a pressed digit through the broadcast's action
// table. An unmapped digit replays the message once, then ends the
// call.
func (h *Handler) HandleGather(ctx context.Context, cb telephony.GatherCallback) (telephony.Reply, error) {
	item, err := h.queue.GetByProviderCallID(ctx, cb.ProviderCallID)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return hangupReply, nil
		}
		return telephony.Reply{}, err
	}
	if item.Status.Terminal() {
		// Redelivered gather after the outcome already landed.
		return hangupReply, nil
	}
	b, err := h.broadcasts.Get(ctx, item.WorkspaceID, item.BroadcastID)
	if err != nil {
		return telephony.Reply{}, err
	}

	digit := cb.Digits
	if len(digit) > 1 {
		digit = digit[:1]
	}
	h.publish(events.TypeDigitPressed, b, item, map[string]any{"digit": digit})

	action, ok := b.ActionForDigit(digit)
	if !ok {
		return h.handleUnmappedDigit(ctx, b, item, digit)
	}

	switch action.Type {
	case broadcast.ActionTransfer:
		return h.handleTransfer(ctx, b, item, digit, action)
	case broadcast.ActionCallback:
		return h.handleCallback(ctx, b, item, digit, action)
	case broadcast.ActionDNC:
		return h.handleDNC(ctx, b, item, digit)
	case broadcast.ActionReplay:
		return telephony.Reply{PlayURL: b.AudioURL, Gather: true, GatherActionURL: h.gatherActionURL}, nil
	default:
		return telephony.Reply{}, fmt.Errorf("ivr: unknown dtmf action %q for digit %q", action.Type, digit)
	}
}

// handleUnmappedDigit replays the message on the first bad press and
// completes the call on the second.
func (h *Handler) handleUnmappedDigit(ctx context.Context, b broadcast.Broadcast, item queue.QueueItem, digit string) (telephony.Reply, error) {
	first, err := h.dedup.First(ctx, item.ProviderCallID+":replayed")
	if err != nil {
		return telephony.Reply{}, err
	}
	if first {
		return telephony.Reply{PlayURL: b.AudioURL, Gather: true, GatherActionURL: h.gatherActionURL}, nil
	}
	if _, err := h.queue.ApplyOutcome(ctx, item.WorkspaceID, item.ID, queue.Outcome{Kind: queue.OutcomeCompleted, Digit: digit}); err != nil && !errors.Is(err, queue.ErrAlreadyTerminal) {
		return telephony.Reply{}, err
	}
	return hangupReply, nil
}

func (h *Handler) handleTransfer(ctx context.Context, b broadcast.Broadcast, item queue.QueueItem, digit string, action broadcast.DTMFAction) (telephony.Reply, error) {
	dest := action.TransferTo
	if dest == "" {
		dest = b.Transfer.Destination
	}
	if dest == "" {
		return telephony.Reply{}, fmt.Errorf("ivr: broadcast %s transfer action has no destination", b.ID)
	}

	if b.Transfer.MaxConcurrent > 0 {
		ok, err := h.gate.TryAcquire(ctx, b.ID, b.Transfer.MaxConcurrent)
		if err != nil {
			return telephony.Reply{}, err
		}
		if !ok {
			// Agent is saturated. Replay the menu so the caller can try
			// again or choose another option.
			h.log.Info("transfer capacity reached",
				slog.String("broadcast_id", b.ID),
				slog.String("item_id", item.ID))
			return telephony.Reply{PlayURL: b.AudioURL, Gather: true, GatherActionURL: h.gatherActionURL}, nil
		}
	}

	if _, err := h.queue.ApplyOutcome(ctx, item.WorkspaceID, item.ID, queue.Outcome{Kind: queue.OutcomeTransferred, Digit: digit}); err != nil {
		if b.Transfer.MaxConcurrent > 0 {
			if rerr := h.gate.Release(ctx, b.ID); rerr != nil {
				h.log.Warn("transfer slot release failed", slog.String("broadcast_id", b.ID), slog.String("error", rerr.Error()))
			}
		}
		if errors.Is(err, queue.ErrAlreadyTerminal) {
			return hangupReply, nil
		}
		return telephony.Reply{}, err
	}
	h.bumpCounter(ctx, b, broadcast.CounterDelta{Transferred: 1})
	h.publish(events.TypeCallTransferred, b, item, map[string]any{"to": dest})
	return telephony.Reply{TransferTo: dest}, nil
}

func (h *Handler) handleCallback(ctx context.Context, b broadcast.Broadcast, item queue.QueueItem, digit string, action broadcast.DTMFAction) (telephony.Reply, error) {
	delay := time.Duration(action.DelayHours) * time.Hour
	if delay <= 0 {
		delay = 24 * time.Hour
	}
	at := h.clock().UTC().Add(delay)

	if _, err := h.queue.ApplyOutcome(ctx, item.WorkspaceID, item.ID, queue.Outcome{Kind: queue.OutcomeCallback, Digit: digit, CallbackAt: &at}); err != nil {
		if errors.Is(err, queue.ErrAlreadyTerminal) {
			return hangupReply, nil
		}
		return telephony.Reply{}, err
	}
	h.bumpCounter(ctx, b, broadcast.CounterDelta{Callbacks: 1})
	h.publish(events.TypeCallbackSet, b, item, map[string]any{"callback_at": at})

	// Followups are best effort: a scheduling hiccup must not fail the
	// webhook, the callback itself is already recorded on the item.
	if action.CreateCalendarEvent {
		if err := h.scheduler.CreateEvent(ctx, calendarx.Event{
			WorkspaceID: b.WorkspaceID,
			BroadcastID: b.ID,
			LeadID:      item.LeadID,
			Phone:       item.Phone,
			Title:       "Callback: " + b.Name,
			At:          at,
		}); err != nil {
			h.log.Warn("calendar event failed", slog.String("item_id", item.ID), slog.String("error", err.Error()))
		}
	}
	if action.SendSMSReminder {
		if err := h.scheduler.ScheduleReminder(ctx, calendarx.Reminder{
			WorkspaceID: b.WorkspaceID,
			Phone:       item.Phone,
			Body:        fmt.Sprintf("We'll call you back around %s.", at.Format("Mon 3:04 PM MST")),
			SendAt:      at.Add(-15 * time.Minute),
		}); err != nil {
			h.log.Warn("sms reminder failed", slog.String("item_id", item.ID), slog.String("error", err.Error()))
		}
	}
	return hangupReply, nil
}

func (h *Handler) handleDNC(ctx context.Context, b broadcast.Broadcast, item queue.QueueItem, digit string) (telephony.Reply, error) {
	if _, err := h.queue.ApplyOutcome(ctx, item.WorkspaceID, item.ID, queue.Outcome{Kind: queue.OutcomeDNC, Digit: digit}); err != nil {
		if errors.Is(err, queue.ErrAlreadyTerminal) {
			return hangupReply, nil
		}
		return telephony.Reply{}, err
	}
	h.bumpCounter(ctx, b, broadcast.CounterDelta{DNC: 1})
	h.publish(events.TypeDNCSet, b, item, nil)

	// The lead-level flag is retried by the marker if it fails; the
	// item itself is already terminally dnc.
	if err := h.dnc.Mark(ctx, item.WorkspaceID, item.LeadID); err != nil {
		h.log.Warn("lead dnc flag deferred", slog.String("lead_id", item.LeadID), slog.String("error", err.Error()))
	}
	return hangupReply, nil
}

// HandleStatus applies provider lifecycle callbacks. Duplicate and
// late deliveries are ignored; genuine store failures return an error
// so the provider retries.
func (h *Handler) HandleStatus(ctx context.Context, cb telephony.StatusCallback) error {
	if !cb.Status.Terminal() {
		// Progress callback. Keep the stuck scan honest.
		if err := h.queue.TouchByProviderCallID(ctx, cb.ProviderCallID); err != nil && !errors.Is(err, queue.ErrNotFound) && !errors.Is(err, queue.ErrVersionConflict) {
			return err
		}
		return nil
	}

	first, err := h.dedup.First(ctx, cb.ProviderCallID+":status:"+string(cb.Status))
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	item, err := h.queue.GetByProviderCallID(ctx, cb.ProviderCallID)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return nil
		}
		return err
	}
	b, err := h.broadcasts.Get(ctx, item.WorkspaceID, item.BroadcastID)
	if err != nil {
		return err
	}

	if item.Status == queue.StatusTransferred {
		// The transferred leg ended; free the agent slot.
		if b.Transfer.MaxConcurrent > 0 {
			if rerr := h.gate.Release(ctx, b.ID); rerr != nil {
				h.log.Warn("transfer slot release failed", slog.String("broadcast_id", b.ID), slog.String("error", rerr.Error()))
			}
		}
		return nil
	}

	out, ok := outcomeForState(cb.Status, b.MaxAttempts)
	if !ok {
		return nil
	}
	updated, err := h.queue.ApplyOutcome(ctx, item.WorkspaceID, item.ID, out)
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyTerminal) || errors.Is(err, queue.ErrNotCalling) {
			return nil
		}
		return err
	}

	switch updated.Status {
	case queue.StatusCompleted:
		h.publish(events.TypeCallCompleted, b, updated, nil)
	case queue.StatusFailed:
		h.publish(events.TypeCallFailed, b, updated, map[string]any{"error": updated.LastError})
	}
	return nil
}

// Outcome values the conversational voice agent may signal.
const (
	AgentOutcomeCompleted   = "completed"
	AgentOutcomeTransferred = "transferred"
	AgentOutcomeCallback    = "callback"
	AgentOutcomeDNC         = "dnc"
	AgentOutcomeFailed      = "failed"
)

// HandleAgentOutcome applies the outcome the conversational voice agent
// signaled for a call it was driving. The agent already spoke with the
// callee, so its outcome is taken as-is rather than derived from
// digits. Duplicate deliveries are ignored.
func (h *Handler) HandleAgentOutcome(ctx context.Context, cb telephony.AgentOutcomeCallback) error {
	item, err := h.queue.GetByProviderCallID(ctx, cb.ProviderCallID)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return nil
		}
		return err
	}
	b, err := h.broadcasts.Get(ctx, item.WorkspaceID, item.BroadcastID)
	if err != nil {
		return err
	}
	if b.IVRMode != broadcast.IVRModeConversational {
		return fmt.Errorf("ivr: broadcast %s is not in conversational mode", b.ID)
	}
	switch cb.Outcome {
	case AgentOutcomeCompleted, AgentOutcomeTransferred, AgentOutcomeCallback, AgentOutcomeDNC, AgentOutcomeFailed:
	default:
		// Rejected before the dedup key is consumed so a corrected
		// redelivery still lands.
		return fmt.Errorf("ivr: unknown agent outcome %q for call %s", cb.Outcome, cb.ProviderCallID)
	}

	first, err := h.dedup.First(ctx, cb.ProviderCallID+":agent")
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	switch cb.Outcome {
	case AgentOutcomeCompleted:
		if ok, err := h.applyAgentOutcome(ctx, item, queue.Outcome{Kind: queue.OutcomeCompleted}); !ok {
			return err
		}
		h.publish(events.TypeCallCompleted, b, item, map[string]any{"agent": true, "notes": cb.Notes})

	case AgentOutcomeTransferred:
		if b.Transfer.MaxConcurrent > 0 {
			// The agent has already handed the callee off; take a slot
			// if one is free so the gate stays honest, never refuse.
			if _, err := h.gate.TryAcquire(ctx, b.ID, b.Transfer.MaxConcurrent); err != nil {
				h.log.Warn("transfer slot acquire failed", slog.String("broadcast_id", b.ID), slog.String("error", err.Error()))
			}
		}
		if ok, err := h.applyAgentOutcome(ctx, item, queue.Outcome{Kind: queue.OutcomeTransferred}); !ok {
			return err
		}
		h.bumpCounter(ctx, b, broadcast.CounterDelta{Transferred: 1})
		h.publish(events.TypeCallTransferred, b, item, map[string]any{"to": cb.TransferTo, "agent": true})

	case AgentOutcomeCallback:
		at := h.clock().UTC().Add(24 * time.Hour)
		if cb.CallbackAt != nil {
			at = cb.CallbackAt.UTC()
		}
		if ok, err := h.applyAgentOutcome(ctx, item, queue.Outcome{Kind: queue.OutcomeCallback, CallbackAt: &at}); !ok {
			return err
		}
		h.bumpCounter(ctx, b, broadcast.CounterDelta{Callbacks: 1})
		h.publish(events.TypeCallbackSet, b, item, map[string]any{"callback_at": at, "agent": true})

	case AgentOutcomeDNC:
		if ok, err := h.applyAgentOutcome(ctx, item, queue.Outcome{Kind: queue.OutcomeDNC}); !ok {
			return err
		}
		h.bumpCounter(ctx, b, broadcast.CounterDelta{DNC: 1})
		h.publish(events.TypeDNCSet, b, item, map[string]any{"agent": true})
		if err := h.dnc.Mark(ctx, item.WorkspaceID, item.LeadID); err != nil {
			h.log.Warn("lead dnc flag deferred", slog.String("lead_id", item.LeadID), slog.String("error", err.Error()))
		}

	case AgentOutcomeFailed:
		cause := cb.Notes
		if cause == "" {
			cause = "agent reported failure"
		}
		out := queue.Outcome{Kind: queue.OutcomeFailed, MaxAttempts: b.MaxAttempts, Error: cause}
		updated, err := h.queue.ApplyOutcome(ctx, item.WorkspaceID, item.ID, out)
		if err != nil {
			if errors.Is(err, queue.ErrAlreadyTerminal) {
				return nil
			}
			return err
		}
		if updated.Status == queue.StatusFailed {
			h.publish(events.TypeCallFailed, b, updated, map[string]any{"error": cause, "agent": true})
		}
	}
	return nil
}

// applyAgentOutcome applies out to the item, reporting ok=false both on
// hard errors and on a lost race with another terminal outcome.
func (h *Handler) applyAgentOutcome(ctx context.Context, item queue.QueueItem, out queue.Outcome) (bool, error) {
	if _, err := h.queue.ApplyOutcome(ctx, item.WorkspaceID, item.ID, out); err != nil {
		if errors.Is(err, queue.ErrAlreadyTerminal) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// outcomeForState maps a terminal provider state to a queue outcome.
func outcomeForState(s telephony.CallState, maxAttempts int) (queue.Outcome, bool) {
	switch s {
	case telephony.CallStateCompleted:
		return queue.Outcome{Kind: queue.OutcomeCompleted}, true
	case telephony.CallStateBusy:
		return queue.Outcome{Kind: queue.OutcomeBusy, MaxAttempts: maxAttempts}, true
	case telephony.CallStateNoAnswer:
		return queue.Outcome{Kind: queue.OutcomeNoAnswer, MaxAttempts: maxAttempts}, true
	case telephony.CallStateFailed:
		return queue.Outcome{Kind: queue.OutcomeFailed, MaxAttempts: maxAttempts, Error: "provider reported failure"}, true
	case telephony.CallStateCanceled:
		// Operator-initiated hangup. Never redial.
		return queue.Outcome{Kind: queue.OutcomeFailed, Error: "canceled by operator"}, true
	default:
		return queue.Outcome{}, false
	}
}

func (h *Handler) bumpCounter(ctx context.Context, b broadcast.Broadcast, d broadcast.CounterDelta) {
	if err := h.broadcasts.ApplyCounterDelta(ctx, b.WorkspaceID, b.ID, d); err != nil {
		h.log.Warn("counter update failed", slog.String("broadcast_id", b.ID), slog.String("error", err.Error()))
	}
}

func (h *Handler) publish(t events.Type, b broadcast.Broadcast, item queue.QueueItem, payload map[string]any) {
	h.bus.Publish(events.Event{
		Type:        t,
		WorkspaceID: b.WorkspaceID,
		BroadcastID: b.ID,
		ItemID:      item.ID,
		Payload:     payload,
		At:          h.clock().UTC(),
	})
}

// SetClock overrides the clock for deterministic tests.
func (h *Handler) SetClock(clock func() time.Time) { h.clock = clock }
