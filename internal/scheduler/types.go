// Package scheduler implements the durable cron/at/every job engine (spec
// §4.3): concurrency-capped, retried, auto-disabling, and persisted through
// atomic tmp-write + rename rather than the teacher's SQLite store.
package scheduler

import (
	"context"
	"time"

	"github.com/stewardhq/steward/internal/session"
)

// ScheduleKind tags the variant of a Schedule.
type ScheduleKind string

const (
	ScheduleAt    ScheduleKind = "at"
	ScheduleCron  ScheduleKind = "cron"
	ScheduleEvery ScheduleKind = "every"
)

// Schedule is the tagged `At(iso8601) | Cron(expr, tz) | Every(intervalMs)`
// variant from spec §3.
type Schedule struct {
	Kind ScheduleKind `json:"kind"`

	At time.Time `json:"at,omitempty"`

	CronExpr string `json:"cron_expr,omitempty"`
	TZ       string `json:"tz,omitempty"`

	IntervalMs int64 `json:"interval_ms,omitempty"`
}

// PayloadKind tags the variant of a Payload.
type PayloadKind string

const (
	PayloadSystemEvent PayloadKind = "system_event"
	PayloadAgentTurn   PayloadKind = "agent_turn"
)

// Payload is the tagged `SystemEvent(text) | AgentTurn(message)` variant
// from spec §3.
type Payload struct {
	Kind PayloadKind `json:"kind"`

	Text string `json:"text,omitempty"`

	Message session.InboundMessage `json:"message,omitempty"`
}

// JobState holds the runtime-derived fields spec §8's round-trip law
// excludes from the save/load equality check (`nextRunAtMs` specifically).
type JobState struct {
	NextRunAtMs         int64 `json:"next_run_at_ms,omitempty"`
	ConsecutiveFailures int   `json:"consecutive_failures"`
	LastRetryAtMs       int64 `json:"last_retry_at_ms,omitempty"`
}

// Job is the durable ScheduledJob record from spec §3.
type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Enabled        bool     `json:"enabled"`
	DeleteAfterRun bool     `json:"delete_after_run"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`

	SessionKey session.Key `json:"session_key"`

	CreatedAt time.Time `json:"created_at"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	RunCount  int       `json:"run_count"`

	LastError string   `json:"last_error,omitempty"`
	State     JobState `json:"state"`
}

// NewAtJob builds a one-shot Job for the given local fire time, applying
// spec §3's invariant that schedule.At implies deleteAfterRun defaults
// true.
func NewAtJob(name string, at time.Time, payload Payload, sessionKey session.Key) Job {
	return Job{
		Name:           name,
		Enabled:        true,
		DeleteAfterRun: true,
		Schedule:       Schedule{Kind: ScheduleAt, At: at},
		Payload:        payload,
		SessionKey:     sessionKey,
	}
}

// NewCronJob builds a recurring cron Job.
func NewCronJob(name, expr, tz string, payload Payload, sessionKey session.Key) Job {
	return Job{
		Name:       name,
		Enabled:    true,
		Schedule:   Schedule{Kind: ScheduleCron, CronExpr: expr, TZ: tz},
		Payload:    payload,
		SessionKey: sessionKey,
	}
}

// NewEveryJob builds a fixed-interval Job.
func NewEveryJob(name string, intervalMs int64, payload Payload, sessionKey session.Key) Job {
	return Job{
		Name:       name,
		Enabled:    true,
		Schedule:   Schedule{Kind: ScheduleEvery, IntervalMs: intervalMs},
		Payload:    payload,
		SessionKey: sessionKey,
	}
}

// OnFire is invoked once per firing attempt; a non-nil error counts as a
// failed attempt per spec §4.3's retry state machine.
type OnFire func(ctx context.Context, job Job) error

// Store is the durable persistence seam for a Scheduler's job set. The
// shipped implementation is a JSON file written via tmp+rename
// (`cron-store.json`); an in-memory fake backs tests.
type Store interface {
	Load(ctx context.Context) ([]Job, error)
	Save(ctx context.Context, jobs []Job) error
}
