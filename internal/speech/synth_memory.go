package speech

import (
	"context"
	"fmt"
	"sync"
)

// MemorySynthesizer fabricates audio URLs for tests and local runs.
type MemorySynthesizer struct {
	mu    sync.Mutex
	calls int

	// Err fails every Synthesize when set.
	Err error
}

func NewMemorySynthesizer() *MemorySynthesizer { return &MemorySynthesizer{} }

func (m *MemorySynthesizer) Synthesize(ctx context.Context, text, voiceID string) (string, error) {
	if text == "" {
		return "", ErrEmptyText
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.calls++
	return fmt.Sprintf("https://audio.local/synth-%d.mp3", m.calls), nil
}

func (m *MemorySynthesizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
