// Package routing decides how an outbound call leaves the platform:
// directly through the provider, or via a workspace SIP trunk.
package routing

import (
	"context"
	"errors"

	"dialer-platform/internal/broadcast"
)

// Decision is the provider-agnostic output of the route engine. It
// carries only what the provider adapter needs to place the call.
type Decision struct {
	WorkspaceID string            `json:"workspace_id"`
	BroadcastID string            `json:"broadcast_id,omitempty"`
	Via         broadcast.RouteVia `json:"via"`

	// TrunkURI is set only when Via is trunk.
	TrunkURI string `json:"trunk_uri,omitempty"`

	// Reason is for internal logs.
	Reason string `json:"reason,omitempty"`
}

// TrunkHealth reports whether a trunk is currently accepting calls.
type TrunkHealth interface {
	Healthy(ctx context.Context, workspaceID, trunkURI string) (bool, error)
}

// FallbackLog receives a record whenever a trunk route degrades to
// direct. Implementations must not block the dial path.
type FallbackLog interface {
	LogRouteFallback(ctx context.Context, workspaceID, broadcastID, trunkURI, reason string)
}

// Engine evaluates the route policy for one dial. It has no side
// effects beyond the fallback log.
type Engine struct {
	Trunks TrunkHealth
	Log    FallbackLog
}

func NewEngine(trunks TrunkHealth, log FallbackLog) *Engine {
	return &Engine{Trunks: trunks, Log: log}
}

// Route resolves the policy to a concrete decision. An unhealthy trunk
// falls back to direct dialing rather than blocking the broadcast.
func (e *Engine) Route(ctx context.Context, workspaceID, broadcastID string, policy broadcast.RoutePolicy) (Decision, error) {
	if workspaceID == "" {
		return Decision{}, errors.New("routing: workspace_id required")
	}

	d := Decision{WorkspaceID: workspaceID, BroadcastID: broadcastID}

	switch policy.Via {
	case "", broadcast.RouteDirect:
		d.Via = broadcast.RouteDirect
		d.Reason = "policy_direct"
		return d, nil

	case broadcast.RouteTrunk:
		if policy.TrunkURI == "" {
			return Decision{}, errors.New("routing: trunk route without trunk_uri")
		}
		if e.Trunks != nil {
			healthy, err := e.Trunks.Healthy(ctx, workspaceID, policy.TrunkURI)
			if err != nil || !healthy {
				reason := "trunk_unhealthy"
				if err != nil {
					reason = "trunk_health_unknown: " + err.Error()
				}
				if e.Log != nil {
					e.Log.LogRouteFallback(ctx, workspaceID, broadcastID, policy.TrunkURI, reason)
				}
				d.Via = broadcast.RouteDirect
				d.Reason = reason
				return d, nil
			}
		}
		d.Via = broadcast.RouteTrunk
		d.TrunkURI = policy.TrunkURI
		d.Reason = "policy_trunk"
		return d, nil

	default:
		return Decision{}, errors.New("routing: unknown route via " + string(policy.Via))
	}
}
