package broadcast

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Broadcast is a tenant-scoped voice campaign definition.
//
// Multi-tenant invariant: WorkspaceID is required on every row.
//
// Lifecycle: draft -> active <-> paused -> completed. The pacer owns the
// active -> completed transition (queue drained); everything else goes
// through the control surface.

type Broadcast struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	Name        string `json:"name" db:"name"`

	Status Status `json:"status" db:"status"`

	MessageText string `json:"message_text" db:"message_text"`
	// AudioURL references the synthesized broadcast audio. Empty means the
	// message has not been generated yet (a blocking readiness failure).
	AudioURL string `json:"audio_url,omitempty" db:"audio_url"`

	IVRMode IVRMode `json:"ivr_mode" db:"ivr_mode"`

	// DTMFActions maps a single digit to an action. Only consulted in
	// dtmf mode. Validated at save time, not at dispatch time.
	DTMFActions []DTMFAction `json:"dtmf_actions,omitempty" db:"dtmf_actions"`

	CallsPerMinute int `json:"calls_per_minute" db:"calls_per_minute"`
	MaxAttempts    int `json:"max_attempts" db:"max_attempts"`

	CallingHours CallingHours `json:"calling_hours" db:"calling_hours"`

	CallerID CallerIDPolicy `json:"caller_id" db:"caller_id"`
	AMD      AMDPolicy      `json:"amd" db:"amd"`

	// Route selects direct provider termination or a SIP trunk.
	Route RoutePolicy `json:"route" db:"route"`

	// Transfer describes the destination used by transfer actions,
	// including an optional concurrent-call ceiling for a live agent.
	Transfer TransferTarget `json:"transfer" db:"transfer"`

	Counters Counters `json:"counters" db:"counters"`

	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// CanTransition enforces draft -> active <-> paused -> completed.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusDraft:
		return to == StatusActive
	case StatusActive:
		return to == StatusPaused || to == StatusCompleted
	case StatusPaused:
		return to == StatusActive || to == StatusCompleted
	default:
		return false
	}
}

type IVRMode string

const (
	IVRModeDTMF           IVRMode = "dtmf"
	IVRModeConversational IVRMode = "ai_conversational"
)

// ActionType discriminates the DTMFAction union.
type ActionType string

const (
	ActionTransfer ActionType = "transfer"
	ActionCallback ActionType = "callback"
	ActionDNC      ActionType = "dnc"
	ActionReplay   ActionType = "replay"
)

// DTMFAction maps one keypad digit to an action. The per-type parameter
// fields are a tagged union: only the fields for Type are meaningful.
// Unknown digits are an explicit error path at dispatch, never silently
// ignored.
type DTMFAction struct {
	Digit string     `json:"digit"`
	Type  ActionType `json:"type"`

	// transfer
	TransferTo string `json:"transfer_to,omitempty"`

	// callback
	DelayHours          int  `json:"delay_hours,omitempty"`
	CreateCalendarEvent bool `json:"create_calendar_event,omitempty"`
	SendSMSReminder     bool `json:"send_sms_reminder,omitempty"`
	AutoCallback        bool `json:"auto_callback,omitempty"`
}

type CallingHours struct {
	// Timezone is an IANA zone name, e.g. "America/Chicago".
	Timezone string `json:"timezone"`
	// Start/End are minutes from midnight local time.
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
	// Bypass disables the window check entirely.
	Bypass bool `json:"bypass"`
}

// Open reports whether now falls inside the calling window in the
// window's own timezone. Bypassed windows are always open.
func (h CallingHours) Open(now time.Time) (bool, error) {
	if h.Bypass {
		return true, nil
	}
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return false, fmt.Errorf("load timezone %q: %w", h.Timezone, err)
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()
	return minute >= h.StartMinute && minute < h.EndMinute, nil
}

// RemainingToday returns how long the window stays open from now, zero
// when closed. Bypassed windows report a full day.
func (h CallingHours) RemainingToday(now time.Time) (time.Duration, error) {
	if h.Bypass {
		return 24 * time.Hour, nil
	}
	open, err := h.Open(now)
	if err != nil || !open {
		return 0, err
	}
	loc, _ := time.LoadLocation(h.Timezone)
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()
	return time.Duration(h.EndMinute-minute) * time.Minute, nil
}

type CallerIDMode string

const (
	CallerIDAuto  CallerIDMode = "auto"
	CallerIDFixed CallerIDMode = "fixed"
)

type CallerIDPolicy struct {
	Mode        CallerIDMode `json:"mode"`
	FixedNumber string       `json:"fixed_number,omitempty"`
}

type AMDOnDetect string

const (
	AMDHangup       AMDOnDetect = "hangup"
	AMDLeaveMessage AMDOnDetect = "leave_message"
)

type AMDPolicy struct {
	Enabled  bool        `json:"enabled"`
	OnDetect AMDOnDetect `json:"on_detect,omitempty"`
	// VoicemailAudioURL overrides the main broadcast audio when leaving a
	// message. Empty falls back to AudioURL.
	VoicemailAudioURL string `json:"voicemail_audio_url,omitempty"`
}

type RouteVia string

const (
	RouteDirect RouteVia = "direct"
	RouteTrunk  RouteVia = "trunk"
)

type RoutePolicy struct {
	Via      RouteVia `json:"via"`
	TrunkURI string   `json:"trunk_uri,omitempty"`
}

type TransferTarget struct {
	Destination string `json:"destination,omitempty"`
	// MaxConcurrent > 0 caps simultaneous transferred calls to the agent.
	// 0 means unbounded.
	MaxConcurrent int `json:"max_concurrent,omitempty"`
}

// Counters are broadcast-level aggregates, maintained with atomic SQL
// increments as outcomes land.
type Counters struct {
	LeadsTotal  int `json:"leads_total" db:"leads_total"`
	CallsPlaced int `json:"calls_placed" db:"calls_placed"`
	Answered    int `json:"answered" db:"answered"`
	Transferred int `json:"transferred" db:"transferred"`
	Callbacks   int `json:"callbacks" db:"callbacks"`
	DNC         int `json:"dnc" db:"dnc"`
}

// CounterDelta names the counter fields ApplyCounterDelta may bump.
type CounterDelta struct {
	LeadsTotal  int
	CallsPlaced int
	Answered    int
	Transferred int
	Callbacks   int
	DNC         int
}

var (
	ErrNotFound        = errors.New("broadcast: not found")
	ErrInvalidArgument = errors.New("broadcast: invalid argument")
	ErrBadTransition   = errors.New("broadcast: illegal status transition")
)

// ValidationError carries field-level problems found at save time.
// It satisfies the "rejected before any state change" contract.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "broadcast: validation failed: " + strings.Join(e.Problems, "; ")
}

// Validate checks a broadcast definition before it is persisted.
// Dispatch-time code may assume a stored broadcast passed this.
func (b Broadcast) Validate() error {
	var problems []string

	if b.WorkspaceID == "" {
		problems = append(problems, "workspace_id is required")
	}
	if strings.TrimSpace(b.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(b.MessageText) == "" {
		problems = append(problems, "message_text is required")
	}
	if b.CallsPerMinute <= 0 {
		problems = append(problems, "calls_per_minute must be > 0")
	}
	if b.MaxAttempts <= 0 {
		problems = append(problems, "max_attempts must be > 0")
	}

	switch b.IVRMode {
	case IVRModeDTMF:
		problems = append(problems, validateDTMFActions(b.DTMFActions)...)
	case IVRModeConversational:
		// DTMF table is ignored in conversational mode.
	default:
		problems = append(problems, fmt.Sprintf("ivr_mode must be dtmf or ai_conversational, got %q", b.IVRMode))
	}

	if !b.CallingHours.Bypass {
		if b.CallingHours.Timezone == "" {
			problems = append(problems, "calling_hours.timezone is required unless bypassed")
		} else if _, err := time.LoadLocation(b.CallingHours.Timezone); err != nil {
			problems = append(problems, fmt.Sprintf("calling_hours.timezone %q is not a valid IANA zone", b.CallingHours.Timezone))
		}
		if b.CallingHours.StartMinute < 0 || b.CallingHours.StartMinute >= 24*60 {
			problems = append(problems, "calling_hours.start_minute out of range")
		}
		if b.CallingHours.EndMinute <= 0 || b.CallingHours.EndMinute > 24*60 {
			problems = append(problems, "calling_hours.end_minute out of range")
		}
		if b.CallingHours.StartMinute >= b.CallingHours.EndMinute {
			problems = append(problems, "calling_hours start must be before end (or set bypass)")
		}
	}

	switch b.CallerID.Mode {
	case CallerIDAuto:
	case CallerIDFixed:
		if strings.TrimSpace(b.CallerID.FixedNumber) == "" {
			problems = append(problems, "caller_id.fixed_number is required for fixed mode")
		}
	default:
		problems = append(problems, fmt.Sprintf("caller_id.mode must be auto or fixed, got %q", b.CallerID.Mode))
	}

	if b.AMD.Enabled {
		switch b.AMD.OnDetect {
		case AMDHangup, AMDLeaveMessage:
		default:
			problems = append(problems, fmt.Sprintf("amd.on_detect must be hangup or leave_message, got %q", b.AMD.OnDetect))
		}
	}

	switch b.Route.Via {
	case RouteDirect:
	case RouteTrunk:
		if strings.TrimSpace(b.Route.TrunkURI) == "" {
			problems = append(problems, "route.trunk_uri is required for trunk routing")
		}
	default:
		problems = append(problems, fmt.Sprintf("route.via must be direct or trunk, got %q", b.Route.Via))
	}

	if b.Transfer.MaxConcurrent < 0 {
		problems = append(problems, "transfer.max_concurrent must be >= 0")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validateDTMFActions(actions []DTMFAction) []string {
	var problems []string
	seen := map[string]bool{}
	for i, a := range actions {
		if len(a.Digit) != 1 || !strings.ContainsAny(a.Digit, "0123456789*#") {
			problems = append(problems, fmt.Sprintf("dtmf_actions[%d].digit must be a single keypad digit, got %q", i, a.Digit))
			continue
		}
		if seen[a.Digit] {
			problems = append(problems, fmt.Sprintf("dtmf_actions: duplicate digit %q", a.Digit))
		}
		seen[a.Digit] = true

		switch a.Type {
		case ActionTransfer:
			if strings.TrimSpace(a.TransferTo) == "" {
				problems = append(problems, fmt.Sprintf("dtmf_actions[%d]: transfer_to is required for transfer", i))
			}
		case ActionCallback:
			if a.DelayHours <= 0 {
				problems = append(problems, fmt.Sprintf("dtmf_actions[%d]: delay_hours must be > 0 for callback", i))
			}
		case ActionDNC, ActionReplay:
			// no parameters
		default:
			problems = append(problems, fmt.Sprintf("dtmf_actions[%d]: unknown action type %q", i, a.Type))
		}
	}
	return problems
}

// ActionForDigit looks a digit up in the action table.
func (b Broadcast) ActionForDigit(digit string) (DTMFAction, bool) {
	for _, a := range b.DTMFActions {
		if a.Digit == digit {
			return a, true
		}
	}
	return DTMFAction{}, false
}

// VoicemailAudio resolves the audio to leave on a machine: the override
// if set, otherwise the main broadcast audio.
func (b Broadcast) VoicemailAudio() string {
	if b.AMD.VoicemailAudioURL != "" {
		return b.AMD.VoicemailAudioURL
	}
	return b.AudioURL
}

// WindowDuration returns the calling-hours window length.
func (h CallingHours) WindowDuration() time.Duration {
	return time.Duration(h.EndMinute-h.StartMinute) * time.Minute
}
