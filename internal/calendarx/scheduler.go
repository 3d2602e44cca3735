// Package calendarx schedules human-facing followups for callback
// requests: a calendar event for the operator and an SMS reminder for
// the callee. Both are best effort from the dialer's point of view.
package calendarx

import (
	"context"
	"errors"
	"time"
)

type Event struct {
	WorkspaceID string    `json:"workspace_id"`
	BroadcastID string    `json:"broadcast_id"`
	LeadID      string    `json:"lead_id"`
	Phone       string    `json:"phone"`
	Title       string    `json:"title"`
	At          time.Time `json:"at"`
}

type Reminder struct {
	WorkspaceID string    `json:"workspace_id"`
	Phone       string    `json:"phone"`
	Body        string    `json:"body"`
	SendAt      time.Time `json:"send_at"`
}

type Scheduler interface {
	CreateEvent(ctx context.Context, e Event) error
	ScheduleReminder(ctx context.Context, r Reminder) error
}

var ErrInvalidInput = errors.New("calendarx: invalid input")
