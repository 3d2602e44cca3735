package calendarx

import (
	"context"
	"sync"
)

// MemoryScheduler records scheduled events and reminders for tests and
// local runs. EventErr/ReminderErr script failures.
type MemoryScheduler struct {
	mu        sync.Mutex
	Events    []Event
	Reminders []Reminder

	EventErr    error
	ReminderErr error
}

func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{}
}

func (s *MemoryScheduler) CreateEvent(ctx context.Context, e Event) error {
	if e.WorkspaceID == "" || e.At.IsZero() {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EventErr != nil {
		return s.EventErr
	}
	s.Events = append(s.Events, e)
	return nil
}

func (s *MemoryScheduler) ScheduleReminder(ctx context.Context, r Reminder) error {
	if r.WorkspaceID == "" || r.Phone == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReminderErr != nil {
		return s.ReminderErr
	}
	s.Reminders = append(s.Reminders, r)
	return nil
}

func (s *MemoryScheduler) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Events)
}

func (s *MemoryScheduler) ReminderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Reminders)
}
