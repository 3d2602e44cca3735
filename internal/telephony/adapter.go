package telephony

import (
	"context"
	"fmt"
	"time"
)

// Adapter is the provider-agnostic interface the dialer engine uses to
// place and control outbound calls.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Keep request/response types provider-agnostic; store provider raw payloads
//   in Raw fields if needed.
// - Adapters translate boundary events into internal types and delegate all
//   decisions to internal/ivr and internal/queue.
type Adapter interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// PlaceCall starts an outbound call and returns the provider's call id.
	// The provider will deliver answer/gather/status callbacks keyed by it.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)

	// GetCallStatus queries the provider directly for a call's current state.
	// Used by stuck-call reconciliation; must not mutate anything.
	GetCallStatus(ctx context.Context, providerCallID string) (CallState, error)

	// Hangup requests termination of an in-flight call. Best-effort.
	Hangup(ctx context.Context, providerCallID string) error
}

// PlaceCallRequest carries everything an adapter needs to start one
// broadcast call attempt.
type PlaceCallRequest struct {
	WorkspaceID string `json:"workspace_id"`
	BroadcastID string `json:"broadcast_id"`
	ItemID      string `json:"item_id"`

	// From and To are E.164 where possible.
	From string `json:"from"`
	To   string `json:"to"`

	// AudioURL is the synthesized broadcast message audio.
	AudioURL string `json:"audio_url"`

	// GatherDigits enables single-digit DTMF capture after playback.
	GatherDigits bool `json:"gather_digits"`

	// AMD enables provider-side answering machine detection.
	AMD AMDConfig `json:"amd"`

	// TrunkURI, when set, routes the call via a SIP trunk instead of the
	// provider's direct PSTN termination.
	TrunkURI string `json:"trunk_uri,omitempty"`
}

type AMDConfig struct {
	Enabled bool `json:"enabled"`
}

type PlaceCallResult struct {
	ProviderCallID string `json:"provider_call_id"`
}

// CallState is the provider-reported lifecycle state of a call.
type CallState string

const (
	CallStateQueued     CallState = "queued"
	CallStateRinging    CallState = "ringing"
	CallStateInProgress CallState = "in_progress"
	CallStateCompleted  CallState = "completed"
	CallStateBusy       CallState = "busy"
	CallStateNoAnswer   CallState = "no_answer"
	CallStateFailed     CallState = "failed"
	CallStateCanceled   CallState = "canceled"
	CallStateUnknown    CallState = "unknown"
)

// Terminal reports whether the provider considers the call finished.
func (s CallState) Terminal() bool {
	switch s {
	case CallStateCompleted, CallStateBusy, CallStateNoAnswer, CallStateFailed, CallStateCanceled:
		return true
	default:
		return false
	}
}

// AnsweredBy values normalized from provider AMD results.
const (
	AnsweredByHuman   = "human"
	AnsweredByMachine = "machine"
	AnsweredByUnknown = "unknown"
)

// AnswerCallback is the provider's "call was answered, what now" event.
// The reply drives what the callee hears.
type AnswerCallback struct {
	ProviderCallID string    `json:"provider_call_id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	AnsweredBy     string    `json:"answered_by"`
	OccurredAt     time.Time `json:"occurred_at"`

	// Raw is optional JSON for debugging/audit.
	Raw string `json:"raw,omitempty"`
}

// GatherCallback carries a DTMF digit press.
type GatherCallback struct {
	ProviderCallID string    `json:"provider_call_id"`
	Digits         string    `json:"digits"`
	OccurredAt     time.Time `json:"occurred_at"`
	Raw            string    `json:"raw,omitempty"`
}

// AgentOutcomeCallback is posted by the conversational voice agent
// when it has resolved a call it was driving. The engine takes the
// signaled outcome as-is.
type AgentOutcomeCallback struct {
	ProviderCallID string `json:"provider_call_id"`
	// Outcome is one of completed, transferred, callback, dnc, failed.
	Outcome    string     `json:"outcome"`
	TransferTo string     `json:"transfer_to,omitempty"`
	CallbackAt *time.Time `json:"callback_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
	Raw        string     `json:"raw,omitempty"`
}

// StatusCallback is a call lifecycle status event (including terminal ones).
type StatusCallback struct {
	ProviderCallID string    `json:"provider_call_id"`
	Status         CallState `json:"status"`
	AnsweredBy     string    `json:"answered_by,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
	Raw            string    `json:"raw,omitempty"`
}

// Reply tells the adapter boundary what the callee should hear next.
// It is rendered to provider markup (TwiML) by the adapter, never here.
type Reply struct {
	// PlayURL plays an audio resource.
	PlayURL string `json:"play_url,omitempty"`

	// Gather captures one DTMF digit after playback, posting to GatherActionURL.
	Gather          bool   `json:"gather"`
	GatherActionURL string `json:"gather_action_url,omitempty"`

	// TransferTo dials out to an agent/destination after playback.
	TransferTo string `json:"transfer_to,omitempty"`

	// Hangup ends the call after any playback.
	Hangup bool `json:"hangup"`
}

// CallbackSink is implemented by the outcome handler (internal/ivr).
// The adapter layer parses provider forms, calls the sink, and renders
// the returned Reply.
type CallbackSink interface {
	HandleAnswer(ctx context.Context, cb AnswerCallback) (Reply, error)
	HandleGather(ctx context.Context, cb GatherCallback) (Reply, error)
	HandleStatus(ctx context.Context, cb StatusCallback) error
	HandleAgentOutcome(ctx context.Context, cb AgentOutcomeCallback) error
}

// ProviderError wraps failures at the telephony/speech boundary so callers
// can distinguish them from validation or state errors.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
