package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stewardhq/steward/internal/scheduler"
	"github.com/stewardhq/steward/internal/session"
)

type scheduleJobParams struct {
	Name       string `json:"name"`
	Text       string `json:"text"`
	At         string `json:"at,omitempty"`
	CronExpr   string `json:"cron_expr,omitempty"`
	TZ         string `json:"tz,omitempty"`
	IntervalMs int64  `json:"interval_ms,omitempty"`
}

type jobView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Kind      string `json:"kind"`
	RunCount  int    `json:"run_count"`
	LastError string `json:"last_error,omitempty"`
}

type cancelJobParams struct {
	ID string `json:"id"`
}

// scheduleTools returns the schedule_job/list_jobs/cancel_job tools wrapping
// a Scheduler (spec §4.3). Grounded on the teacher's cron tool registrations,
// generalized to the At/Cron/Every tagged Schedule variant.
func scheduleTools(sched *scheduler.Scheduler, defaultKey session.Key) []Tool {
	return []Tool{
		scheduleJobTool(sched, defaultKey),
		listJobsTool(sched),
		cancelJobTool(sched),
	}
}

func scheduleJobTool(sched *scheduler.Scheduler, defaultKey session.Key) Tool {
	return Tool{
		Spec: session.ToolSpec{
			Name:        "schedule_job",
			Description: "Schedule a future reminder or recurring task. Exactly one of at (ISO-8601 timestamp), cron_expr (with tz), or interval_ms must be set.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"text": {"type": "string", "description": "what the agent should do when the job fires"},
					"at": {"type": "string", "description": "ISO-8601 timestamp for a one-shot job"},
					"cron_expr": {"type": "string", "description": "cron expression for a recurring job"},
					"tz": {"type": "string", "description": "IANA timezone for cron_expr"},
					"interval_ms": {"type": "integer", "description": "fixed interval in milliseconds for a recurring job"}
				},
				"required": ["name", "text"]
			}`),
		},
		Execute: func(ctx context.Context, params json.RawMessage) ([]session.Block, error) {
			var in scheduleJobParams
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
			if in.Name == "" || in.Text == "" {
				return nil, fmt.Errorf("schedule_job: name and text must be non-empty")
			}

			payload := scheduler.Payload{Kind: scheduler.PayloadSystemEvent, Text: in.Text}

			var job scheduler.Job
			switch {
			case in.At != "":
				at, err := time.Parse(time.RFC3339, in.At)
				if err != nil {
					return nil, fmt.Errorf("schedule_job: invalid at timestamp: %w", err)
				}
				job = scheduler.NewAtJob(in.Name, at, payload, defaultKey)
			case in.CronExpr != "":
				job = scheduler.NewCronJob(in.Name, in.CronExpr, in.TZ, payload, defaultKey)
			case in.IntervalMs > 0:
				job = scheduler.NewEveryJob(in.Name, in.IntervalMs, payload, defaultKey)
			default:
				return nil, fmt.Errorf("schedule_job: exactly one of at, cron_expr, or interval_ms is required")
			}

			saved, err := sched.AddJob(ctx, job)
			if err != nil {
				return nil, fmt.Errorf("schedule_job: %w", err)
			}
			return jsonBlocks(toJobView(saved))
		},
	}
}

func listJobsTool(sched *scheduler.Scheduler) Tool {
	return Tool{
		Spec: session.ToolSpec{
			Name:        "list_jobs",
			Description: "List all scheduled jobs, enabled or not.",
			Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		},
		Execute: func(ctx context.Context, params json.RawMessage) ([]session.Block, error) {
			jobs := sched.List()
			views := make([]jobView, 0, len(jobs))
			for _, j := range jobs {
				views = append(views, toJobView(j))
			}
			return jsonBlocks(views)
		},
	}
}

func cancelJobTool(sched *scheduler.Scheduler) Tool {
	return Tool{
		Spec: session.ToolSpec{
			Name:        "cancel_job",
			Description: "Cancel a scheduled job by id.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"id": {"type": "string"}},
				"required": ["id"]
			}`),
		},
		Execute: func(ctx context.Context, params json.RawMessage) ([]session.Block, error) {
			var in cancelJobParams
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
			if in.ID == "" {
				return nil, fmt.Errorf("cancel_job: id must be non-empty")
			}
			if err := sched.RemoveJob(ctx, in.ID); err != nil {
				return nil, fmt.Errorf("cancel_job: %w", err)
			}
			return textBlocks(fmt.Sprintf("job %s cancelled", in.ID)), nil
		},
	}
}

func toJobView(j scheduler.Job) jobView {
	return jobView{
		ID:        j.ID,
		Name:      j.Name,
		Enabled:   j.Enabled,
		Kind:      string(j.Schedule.Kind),
		RunCount:  j.RunCount,
		LastError: j.LastError,
	}
}
