// Package control is the operator surface of the engine: start, stop,
// emergency stop, test batches, retries and resets, wired through
// readiness gates and the audit log.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dialer-platform/internal/audit"
	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/config"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/events"
	"dialer-platform/internal/monitor"
	"dialer-platform/internal/queue"
	"dialer-platform/internal/readiness"
	"dialer-platform/internal/telephony"
)

// Actor identifies who issued a control action, for the audit trail.
type Actor struct {
	UserID string
	Role   string
}

// StopResult summarizes an emergency stop.
type StopResult struct {
	CancelledPending int `json:"cancelled_pending"`
	HangupsRequested int `json:"hangups_requested"`
	HangupsFailed    int `json:"hangups_failed"`
}

// Stats is the combined live view the dashboard polls.
type Stats struct {
	Broadcast broadcast.Broadcast `json:"broadcast"`
	Queue     queue.Stats         `json:"queue"`
}

type Service struct {
	broadcasts *broadcast.Service
	queue      *queue.Service
	checker    *readiness.Checker
	pacer      *dialer.Pacer
	monitor    *monitor.Monitor
	adapter    telephony.Adapter
	audit      *audit.Service
	bus        *events.Bus
	cfg        config.DialerConfig
	log        *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewService(
	broadcasts *broadcast.Service,
	q *queue.Service,
	checker *readiness.Checker,
	pacer *dialer.Pacer,
	mon *monitor.Monitor,
	adapter telephony.Adapter,
	auditSvc *audit.Service,
	bus *events.Bus,
	cfg config.DialerConfig,
	log *slog.Logger,
) *Service {
	return &Service{
		broadcasts: broadcasts,
		queue:      q,
		checker:    checker,
		pacer:      pacer,
		monitor:    mon,
		adapter:    adapter,
		audit:      auditSvc,
		bus:        bus,
		cfg:        cfg,
		log:        log,
		running:    map[string]context.CancelFunc{},
	}
}

func runKey(workspaceID, broadcastID string) string { return workspaceID + "|" + broadcastID }

// Start launches dialing. It first recovers any items a previous run
// left stuck, then gates on readiness, then on the high-volume
// confirmation unless confirmed.
func (s *Service) Start(ctx context.Context, workspaceID, broadcastID string, actor Actor, confirmed bool) error {
	b, err := s.broadcasts.Get(ctx, workspaceID, broadcastID)
	if err != nil {
		return err
	}

	// A crashed run may have left items in calling forever; they would
	// block auto-completion and skew readiness.
	if n, err := s.monitor.Cleanup(ctx, workspaceID, broadcastID); err != nil {
		return fmt.Errorf("stuck cleanup before start: %w", err)
	} else if n > 0 {
		s.log.Info("recovered stuck items before start",
			slog.String("broadcast_id", broadcastID), slog.Int("count", n))
	}

	res, err := s.checker.Run(ctx, b)
	if err != nil {
		return err
	}
	if !res.IsReady() {
		return &NotReadyError{Checks: res.Failures()}
	}

	if !confirmed {
		st, err := s.queue.Stats(ctx, workspaceID, broadcastID)
		if err != nil {
			return err
		}
		usable, err := s.checker.UsableNumbers(ctx, workspaceID)
		if err != nil {
			return err
		}
		pending := st.Counts[queue.StatusPending]
		if pending >= s.cfg.HighVolumeLeadCount && usable <= s.cfg.LowNumberCount {
			return &ConfirmationRequiredError{PendingLeads: pending, UsableNumbers: usable}
		}
	}

	if b.Status != broadcast.StatusActive {
		if _, err := s.broadcasts.SetStatus(ctx, workspaceID, broadcastID, broadcast.StatusActive); err != nil {
			return err
		}
	}
	s.launch(workspaceID, broadcastID)

	s.logAction(ctx, workspaceID, broadcastID, actor, "start")
	s.publishStatus(workspaceID, broadcastID, broadcast.StatusActive)
	return nil
}

// launch starts the pacer and monitor loops for the broadcast unless
// they are already running.
func (s *Service) launch(workspaceID, broadcastID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := runKey(workspaceID, broadcastID)
	if _, ok := s.running[key]; ok {
		return
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.running[key] = cancel

	go func() {
		defer s.stopLoops(workspaceID, broadcastID)
		if err := s.pacer.Run(runCtx, workspaceID, broadcastID); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("pacer exited",
				slog.String("broadcast_id", broadcastID),
				slog.String("error", err.Error()))
		}
	}()
	go func() {
		if err := s.monitor.Run(runCtx, workspaceID, broadcastID); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("monitor exited",
				slog.String("broadcast_id", broadcastID),
				slog.String("error", err.Error()))
		}
	}()
}

func (s *Service) stopLoops(workspaceID, broadcastID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := runKey(workspaceID, broadcastID)
	if cancel, ok := s.running[key]; ok {
		cancel()
		delete(s.running, key)
	}
}

// Stop pauses dialing. Calls already in flight run to completion; their
// callbacks still land.
func (s *Service) Stop(ctx context.Context, workspaceID, broadcastID string, actor Actor) error {
	if _, err := s.broadcasts.SetStatus(ctx, workspaceID, broadcastID, broadcast.StatusPaused); err != nil {
		return err
	}
	s.stopLoops(workspaceID, broadcastID)
	s.logAction(ctx, workspaceID, broadcastID, actor, "stop")
	s.publishStatus(workspaceID, broadcastID, broadcast.StatusPaused)
	return nil
}

// EmergencyStop halts everything now: pending items are cancelled and
// every live call gets a provider-side hangup. Idempotent; hangup
// failures are reported, not retried here.
func (s *Service) EmergencyStop(ctx context.Context, workspaceID, broadcastID string, actor Actor) (StopResult, error) {
	s.stopLoops(workspaceID, broadcastID)

	b, err := s.broadcasts.Get(ctx, workspaceID, broadcastID)
	if err != nil {
		return StopResult{}, err
	}
	if b.Status == broadcast.StatusActive {
		if _, err := s.broadcasts.SetStatus(ctx, workspaceID, broadcastID, broadcast.StatusPaused); err != nil {
			return StopResult{}, err
		}
	}

	var result StopResult
	result.CancelledPending, err = s.queue.CancelPending(ctx, workspaceID, broadcastID)
	if err != nil {
		return result, err
	}

	var problems []string
	for _, status := range []queue.Status{queue.StatusCalling, queue.StatusAnswered} {
		items, err := s.queue.ListByStatus(ctx, workspaceID, broadcastID, status)
		if err != nil {
			return result, err
		}
		for _, item := range items {
			if item.ProviderCallID == "" {
				continue
			}
			result.HangupsRequested++
			if err := s.adapter.Hangup(ctx, item.ProviderCallID); err != nil {
				result.HangupsFailed++
				problems = append(problems, fmt.Sprintf("%s: %v", item.ProviderCallID, err))
			}
		}
	}

	s.logAction(ctx, workspaceID, broadcastID, actor, "emergency_stop")
	s.publishStatus(workspaceID, broadcastID, broadcast.StatusPaused)

	if result.HangupsFailed > 0 {
		return result, &PartialFailureError{
			Op:        "emergency_stop",
			Succeeded: result.HangupsRequested - result.HangupsFailed,
			Failed:    result.HangupsFailed,
			Problems:  problems,
		}
	}
	return result, nil
}

// TestBatch dials a handful of items immediately, outside the pacing
// loop, so an operator can verify audio and call flow before a full
// run.
func (s *Service) TestBatch(ctx context.Context, workspaceID, broadcastID string, actor Actor, n int) (int, error) {
	if n <= 0 {
		n = s.cfg.TestBatchSize
	}
	b, err := s.broadcasts.Get(ctx, workspaceID, broadcastID)
	if err != nil {
		return 0, err
	}
	if b.AudioURL == "" {
		return 0, &NotReadyError{Checks: []readiness.Check{{
			ID:      "audio_ready",
			Status:  readiness.StatusFail,
			Message: "broadcast has no audio",
		}}}
	}

	dispatched, failed, err := s.pacer.DispatchBatch(ctx, b, n)
	if err != nil {
		return dispatched, err
	}
	s.logAction(ctx, workspaceID, broadcastID, actor, fmt.Sprintf("test_batch n=%d", n))
	if failed > 0 {
		return dispatched, &PartialFailureError{Op: "test_batch", Succeeded: dispatched, Failed: failed}
	}
	return dispatched, nil
}

// RetryFailed returns failed items with attempts remaining to pending.
func (s *Service) RetryFailed(ctx context.Context, workspaceID, broadcastID string, actor Actor) (int, error) {
	b, err := s.broadcasts.Get(ctx, workspaceID, broadcastID)
	if err != nil {
		return 0, err
	}
	n, err := s.queue.RetryFailed(ctx, workspaceID, broadcastID, b.MaxAttempts)
	if err != nil {
		return 0, err
	}
	s.logAction(ctx, workspaceID, broadcastID, actor, fmt.Sprintf("retry_failed n=%d", n))
	return n, nil
}

// Reset returns every item to pending with attempts cleared, for a
// fresh run over the same list. Refused while dialing is live.
func (s *Service) Reset(ctx context.Context, workspaceID, broadcastID string, actor Actor) (int, error) {
	b, err := s.broadcasts.Get(ctx, workspaceID, broadcastID)
	if err != nil {
		return 0, err
	}
	if b.Status == broadcast.StatusActive {
		return 0, fmt.Errorf("%w: stop the broadcast before resetting", broadcast.ErrBadTransition)
	}
	n, err := s.queue.Reset(ctx, workspaceID, broadcastID)
	if err != nil {
		return 0, err
	}
	s.logAction(ctx, workspaceID, broadcastID, actor, fmt.Sprintf("reset n=%d", n))
	return n, nil
}

// GetStats returns the broadcast and its live queue counts.
func (s *Service) GetStats(ctx context.Context, workspaceID, broadcastID string) (Stats, error) {
	b, err := s.broadcasts.Get(ctx, workspaceID, broadcastID)
	if err != nil {
		return Stats{}, err
	}
	st, err := s.queue.Stats(ctx, workspaceID, broadcastID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Broadcast: b, Queue: st}, nil
}

// Readiness runs the pre-flight checks without starting anything.
func (s *Service) Readiness(ctx context.Context, workspaceID, broadcastID string) (readiness.Result, error) {
	b, err := s.broadcasts.Get(ctx, workspaceID, broadcastID)
	if err != nil {
		return readiness.Result{}, err
	}
	return s.checker.Run(ctx, b)
}

// Inspect reconciles stuck items against the provider, read-only.
func (s *Service) Inspect(ctx context.Context, workspaceID, broadcastID string) ([]monitor.Mismatch, error) {
	return s.monitor.Inspect(ctx, workspaceID, broadcastID)
}

// Shutdown cancels all running dial loops. In-flight provider calls are
// left to finish; callbacks will still be accepted after restart.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, cancel := range s.running {
		cancel()
		delete(s.running, key)
	}
}

func (s *Service) logAction(ctx context.Context, workspaceID, broadcastID string, actor Actor, action string) {
	if err := s.audit.LogControlAction(ctx, workspaceID, broadcastID, actor.UserID, actor.Role, action, ""); err != nil {
		s.log.Warn("audit append failed",
			slog.String("broadcast_id", broadcastID),
			slog.String("action", action),
			slog.String("error", err.Error()))
	}
}

func (s *Service) publishStatus(workspaceID, broadcastID string, status broadcast.Status) {
	s.bus.Publish(events.Event{
		Type:        events.TypeBroadcastStatus,
		WorkspaceID: workspaceID,
		BroadcastID: broadcastID,
		Payload:     map[string]any{"status": string(status)},
		At:          time.Now().UTC(),
	})
}
