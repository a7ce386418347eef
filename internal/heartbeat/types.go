// Package heartbeat implements the periodic proactive-wakeup driver (spec
// §4.10): a minimum-interval-guarded ticker that feeds workspace context to
// the orchestrator and delivers whatever it answers through the first
// available transport. Grounded on engine/heartbeat.go's HeartbeatManager.
package heartbeat

import (
	"context"

	"github.com/stewardhq/steward/internal/session"
)

// State is the durable heartbeat-state.json record from spec §6:
// {lastRunAtMs, runCount, lastError?}.
type State struct {
	LastRunAtMs int64  `json:"last_run_at_ms"`
	RunCount    int    `json:"run_count"`
	LastError   string `json:"last_error,omitempty"`
}

// Store is the durable persistence seam for heartbeat state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// Orchestrator is the seam the Driver runs a heartbeat turn through.
// Satisfied by *session.Orchestrator.
type Orchestrator interface {
	HandleMessage(ctx context.Context, in session.InboundMessage) (*session.OutboundMessage, error)
}

// Deliver sends the heartbeat's reply text through whichever transport is
// first available. Supplied by the caller; a nil Deliver silently drops
// the reply.
type Deliver func(ctx context.Context, text string)

// SessionKey builds the session key a heartbeat turn for the given
// transport name runs under (spec §3: session keys prefixed "heartbeat:"
// identify proactive turns).
func SessionKey(transport string) session.Key {
	return session.Key("heartbeat:" + transport)
}
