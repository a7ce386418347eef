// Package subagent implements the Subagent Registry & Spawner (spec §4.4):
// bounded, depth-limited fan-out of background reasoning sessions with
// progress/completion announcement back to the parent. Grounded on the
// teacher's coordinator.Executor / tools.spawnTask / persistence.Delegation
// shape, generalized from "DAG plan step" to the spec's simpler recursive
// fan-out with a depth limit and per-parent/global concurrency caps.
package subagent

import (
	"context"
	"time"

	"github.com/stewardhq/steward/internal/session"
)

// Status tags a SubagentRun's lifecycle state.
type Status string

const (
	StatusRunning Status = "running"
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusKilled  Status = "killed"
)

// Run is the durable SubagentRun record from spec §3.
type Run struct {
	RunID            string      `json:"run_id"`
	ChildSessionKey  session.Key `json:"child_session_key"`
	ParentSessionKey session.Key `json:"parent_session_key"`
	ParentChannelID  string      `json:"parent_channel_id"`
	Task             string      `json:"task"`
	Label            string      `json:"label,omitempty"`
	Depth            int         `json:"depth"`
	Status           Status      `json:"status"`
	Result           string      `json:"result,omitempty"`
	Error            string      `json:"error,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	EndedAt          time.Time   `json:"ended_at,omitempty"`
}

// SpawnRequest is the input to Spawn.
type SpawnRequest struct {
	Task             string
	ParentSessionKey session.Key
	ParentChannelID  string
	Label            string
}

// SpawnResult is the output of a successful Spawn.
type SpawnResult struct {
	RunID           string
	ChildSessionKey session.Key
}

// RejectReason names why a Spawn request was denied.
type RejectReason string

const (
	RejectDepthExceeded      RejectReason = "depth_exceeded"
	RejectChildrenExceeded   RejectReason = "children_exceeded"
	RejectConcurrentExceeded RejectReason = "concurrent_exceeded"
)

// RejectedError is returned by Spawn when a limit check fails.
type RejectedError struct {
	Reason RejectReason
}

func (e *RejectedError) Error() string {
	return "subagent spawn rejected: " + string(e.Reason)
}

// Announcer delivers a completed (or killed) run's outcome back into the
// parent session as a synthetic system-authored turn (spec §4.4 "Announce").
type Announcer interface {
	Announce(ctx context.Context, parentSessionKey session.Key, parentChannelID string, summary AnnounceSummary)
}

// AnnounceSummary is the bounded payload handed to the Announcer.
type AnnounceSummary struct {
	Label                  string
	Task                   string
	Status                 Status
	Result                 string
	Error                  string
	Duration               time.Duration
	RemainingActiveChildren int
}

// Store is the durable persistence seam for the subagent-registry.json file.
type Store interface {
	Load(ctx context.Context) ([]Run, error)
	Save(ctx context.Context, runs []Run) error
}

// Limits bounds fan-out (spec §4.4).
type Limits struct {
	MaxDepth              int
	MaxChildrenPerSession int
	MaxConcurrentTotal    int
}

// DefaultLimits returns the spec's stated defaults.
func DefaultLimits() Limits {
	return Limits{MaxDepth: 2, MaxChildrenPerSession: 5, MaxConcurrentTotal: 10}
}
