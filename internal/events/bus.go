// Package events is a small in-process pub/sub bus used to stream
// engine activity (dial results, digit presses, lifecycle changes) to
// the live dashboard.
package events

import (
	"context"
	"sync"
	"time"
)

type Type string

const (
	TypeCallPlaced      Type = "call_placed"
	TypeCallAnswered    Type = "call_answered"
	TypeDigitPressed    Type = "digit_pressed"
	TypeCallTransferred Type = "call_transferred"
	TypeCallbackSet     Type = "callback_set"
	TypeDNCSet          Type = "dnc_set"
	TypeCallCompleted   Type = "call_completed"
	TypeCallFailed      Type = "call_failed"
	TypeBroadcastStatus Type = "broadcast_status"
)

type Event struct {
	Type        Type           `json:"type"`
	WorkspaceID string         `json:"workspace_id"`
	BroadcastID string         `json:"broadcast_id,omitempty"`
	ItemID      string         `json:"item_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	At          time.Time      `json:"at"`
}

// Bus fan-outs events to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses events rather than stalling
// the dial path.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
	buf  int
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: map[int]chan Event{}, buf: buffer}
}

func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a buffered subscriber that is removed when ctx
// ends.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, b.buf)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()
	return ch
}

// SubscriberCount is for tests and diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
