package telephony

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MemoryAdapter is an in-memory telephony adapter for tests and early
// development. It records placed calls and lets tests script per-call
// provider state and failures.

type MemoryAdapter struct {
	mu sync.Mutex

	Placed  []PlaceCallRequest
	Hangups []string

	// States maps provider call id -> scripted provider state.
	States map[string]CallState

	// PlaceErr, when set, fails every PlaceCall.
	PlaceErr error
	// OnPlace, when set, runs before each placement. Tests use it to
	// mutate engine state mid-batch.
	OnPlace func(PlaceCallRequest)
	// HangupErrFor fails Hangup for specific provider call ids.
	HangupErrFor map[string]error

	nextID int
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		States:       map[string]CallState{},
		HangupErrFor: map[string]error{},
	}
}

func (a *MemoryAdapter) Name() string { return "memory" }

func (a *MemoryAdapter) HealthCheck(ctx context.Context) error { return nil }

func (a *MemoryAdapter) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if a.OnPlace != nil {
		a.OnPlace(req)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.PlaceErr != nil {
		return PlaceCallResult{}, &ProviderError{Provider: "memory", Op: "place_call", Err: a.PlaceErr}
	}
	a.nextID++
	id := fmt.Sprintf("mem-call-%d", a.nextID)
	a.Placed = append(a.Placed, req)
	a.States[id] = CallStateQueued
	return PlaceCallResult{ProviderCallID: id}, nil
}

func (a *MemoryAdapter) GetCallStatus(ctx context.Context, providerCallID string) (CallState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.States[providerCallID]
	if !ok {
		return CallStateUnknown, &ProviderError{Provider: "memory", Op: "get_call_status", Err: errors.New("unknown call")}
	}
	return s, nil
}

func (a *MemoryAdapter) Hangup(ctx context.Context, providerCallID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err, ok := a.HangupErrFor[providerCallID]; ok {
		return &ProviderError{Provider: "memory", Op: "hangup", Err: err}
	}
	a.Hangups = append(a.Hangups, providerCallID)
	a.States[providerCallID] = CallStateCanceled
	return nil
}

// SetState scripts the provider-side state for a call.
func (a *MemoryAdapter) SetState(providerCallID string, s CallState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.States[providerCallID] = s
}

// PlacedCount returns how many calls were placed.
func (a *MemoryAdapter) PlacedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Placed)
}
