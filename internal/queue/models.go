package queue

import (
	"errors"
	"time"
)

// QueueItem is one call job: exactly one broadcast, one lead, one phone
// number.
//
// Invariants:
// - At most one non-terminal item per lead per broadcast.
// - calling items carry a provider call id once dispatched.
// - Transition into calling is only permitted from pending.
// - Attempts never exceed the broadcast's max_attempts.
//
// Version supports optimistic concurrency: the pacer claim path and the
// webhook outcome path both mutate items and must never race on the same
// row unnoticed.

type QueueItem struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	BroadcastID string `json:"broadcast_id" db:"broadcast_id"`

	LeadID string `json:"lead_id" db:"lead_id"`
	Phone  string `json:"phone" db:"phone"`

	Status   Status `json:"status" db:"status"`
	Attempts int    `json:"attempts" db:"attempts"`

	// Digit is the DTMF digit captured for this call, if any.
	Digit string `json:"digit,omitempty" db:"digit"`

	// CallbackAt is set when the callee requested a callback.
	CallbackAt *time.Time `json:"callback_at,omitempty" db:"callback_at"`

	// ProviderCallID is assigned once the call is dispatched.
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	LastError string `json:"last_error,omitempty" db:"last_error"`

	Version   int64     `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusPending     Status = "pending"
	StatusCalling     Status = "calling"
	StatusAnswered    Status = "answered"
	StatusTransferred Status = "transferred"
	StatusCallback    Status = "callback"
	StatusDNC         Status = "dnc"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
// pending and calling are the live pipeline; answered is a mid-call state
// waiting on the final IVR outcome.
func (s Status) Terminal() bool {
	switch s {
	case StatusPending, StatusCalling, StatusAnswered:
		return false
	default:
		return true
	}
}

// AllStatuses is used by stats aggregation.
var AllStatuses = []Status{
	StatusPending, StatusCalling, StatusAnswered, StatusTransferred,
	StatusCallback, StatusDNC, StatusCompleted, StatusFailed, StatusCancelled,
}

// OutcomeKind classifies what a provider callback (or internal recovery)
// reported about a calling/answered item.
type OutcomeKind string

const (
	OutcomeAnswered    OutcomeKind = "answered"
	OutcomeNoAnswer    OutcomeKind = "no_answer"
	OutcomeBusy        OutcomeKind = "busy"
	OutcomeVoicemail   OutcomeKind = "voicemail"
	OutcomeCompleted   OutcomeKind = "completed"
	OutcomeTransferred OutcomeKind = "transferred"
	OutcomeCallback    OutcomeKind = "callback"
	OutcomeDNC         OutcomeKind = "dnc"
	OutcomeFailed      OutcomeKind = "failed"
)

// Outcome carries an OutcomeKind plus its details.
type Outcome struct {
	Kind OutcomeKind

	Digit      string
	CallbackAt *time.Time
	Error      string

	// MaxAttempts is the broadcast's cap, consulted for the retry
	// decision on no_answer/busy/failed outcomes.
	MaxAttempts int
}

// LeadRef is the minimal lead projection used for enqueueing.
type LeadRef struct {
	LeadID string `json:"lead_id"`
	Phone  string `json:"phone"`
}

// Stats is the per-status item count for a broadcast.
type Stats struct {
	BroadcastID string         `json:"broadcast_id"`
	Counts      map[Status]int `json:"counts"`
}

// Total sums all statuses.
func (s Stats) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// InFlight returns calling + answered.
func (s Stats) InFlight() int {
	return s.Counts[StatusCalling] + s.Counts[StatusAnswered]
}

var (
	ErrNotFound        = errors.New("queue: not found")
	ErrInvalidInput    = errors.New("queue: invalid input")
	ErrAlreadyTerminal = errors.New("queue: item already in a terminal status")
	ErrNotCalling      = errors.New("queue: item is not in flight")
	ErrVersionConflict = errors.New("queue: concurrent modification")
)
