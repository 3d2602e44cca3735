package routing

import (
	"context"
	"sync"
)

// MemoryTrunkHealth is an in-memory TrunkHealth. Trunks default to
// healthy until marked otherwise; health is typically fed by the
// provider adapter's last dial result.
type MemoryTrunkHealth struct {
	mu        sync.Mutex
	unhealthy map[string]bool // key: workspaceID + "|" + trunkURI
}

func NewMemoryTrunkHealth() *MemoryTrunkHealth {
	return &MemoryTrunkHealth{unhealthy: map[string]bool{}}
}

func trunkKey(workspaceID, trunkURI string) string { return workspaceID + "|" + trunkURI }

func (m *MemoryTrunkHealth) Healthy(ctx context.Context, workspaceID, trunkURI string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unhealthy[trunkKey(workspaceID, trunkURI)], nil
}

func (m *MemoryTrunkHealth) SetHealthy(workspaceID, trunkURI string, healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if healthy {
		delete(m.unhealthy, trunkKey(workspaceID, trunkURI))
	} else {
		m.unhealthy[trunkKey(workspaceID, trunkURI)] = true
	}
}
