package tools

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stewardhq/steward/internal/scheduler"
	"github.com/stewardhq/steward/internal/session"
)

type scheduleTestStore struct {
	mu   sync.Mutex
	jobs []scheduler.Job
}

func (s *scheduleTestStore) Load(ctx context.Context) ([]scheduler.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scheduler.Job, len(s.jobs))
	copy(out, s.jobs)
	return out, nil
}

func (s *scheduleTestStore) Save(ctx context.Context, jobs []scheduler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make([]scheduler.Job, len(jobs))
	copy(s.jobs, jobs)
	return nil
}

func newTestScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	cfg := scheduler.DefaultConfig()
	cfg.Store = &scheduleTestStore{}
	cfg.OnFire = func(ctx context.Context, job scheduler.Job) error { return nil }
	sched := scheduler.New(cfg)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start scheduler: %v", err)
	}
	t.Cleanup(sched.Stop)
	return sched
}

func TestScheduleJobTool_At(t *testing.T) {
	sched := newTestScheduler(t)
	tool := scheduleJobTool(sched, session.Key("tg:chat:1"))

	params, _ := json.Marshal(scheduleJobParams{
		Name: "reminder",
		Text: "ping the user",
		At:   time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	blocks, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("schedule_job: %v", err)
	}
	if !strings.Contains(blocks[0].Text, "\"kind\": \"at\"") {
		t.Fatalf("expected kind=at, got %q", blocks[0].Text)
	}
}

func TestScheduleJobTool_RequiresOneScheduleKind(t *testing.T) {
	sched := newTestScheduler(t)
	tool := scheduleJobTool(sched, session.Key("tg:chat:1"))

	params, _ := json.Marshal(scheduleJobParams{Name: "x", Text: "y"})
	if _, err := tool.Execute(context.Background(), params); err == nil {
		t.Fatal("expected an error when no schedule kind is set")
	}
}

func TestScheduleJobTool_InvalidAtTimestamp(t *testing.T) {
	sched := newTestScheduler(t)
	tool := scheduleJobTool(sched, session.Key("tg:chat:1"))

	params, _ := json.Marshal(scheduleJobParams{Name: "x", Text: "y", At: "not-a-timestamp"})
	if _, err := tool.Execute(context.Background(), params); err == nil {
		t.Fatal("expected an error for an invalid at timestamp")
	}
}

func TestListJobsTool_ReturnsScheduled(t *testing.T) {
	sched := newTestScheduler(t)
	schedule := scheduleJobTool(sched, session.Key("tg:chat:1"))
	list := listJobsTool(sched)

	params, _ := json.Marshal(scheduleJobParams{Name: "every-min", Text: "tick", IntervalMs: 60000})
	if _, err := schedule.Execute(context.Background(), params); err != nil {
		t.Fatalf("schedule_job: %v", err)
	}

	blocks, err := list.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("list_jobs: %v", err)
	}
	if !strings.Contains(blocks[0].Text, "every-min") {
		t.Fatalf("expected every-min in listing, got %q", blocks[0].Text)
	}
}

func TestCancelJobTool_RemovesJob(t *testing.T) {
	sched := newTestScheduler(t)
	schedule := scheduleJobTool(sched, session.Key("tg:chat:1"))
	cancel := cancelJobTool(sched)

	params, _ := json.Marshal(scheduleJobParams{Name: "one-off", Text: "tick", IntervalMs: 60000})
	blocks, err := schedule.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("schedule_job: %v", err)
	}
	var created jobView
	if err := json.Unmarshal([]byte(blocks[0].Text), &created); err != nil {
		t.Fatalf("unmarshal created job: %v", err)
	}

	cparams, _ := json.Marshal(cancelJobParams{ID: created.ID})
	if _, err := cancel.Execute(context.Background(), cparams); err != nil {
		t.Fatalf("cancel_job: %v", err)
	}

	remaining := sched.List()
	for _, j := range remaining {
		if j.ID == created.ID {
			t.Fatalf("expected job %s to be removed", created.ID)
		}
	}
}

func TestCancelJobTool_EmptyIDErrors(t *testing.T) {
	sched := newTestScheduler(t)
	cancel := cancelJobTool(sched)

	params, _ := json.Marshal(cancelJobParams{ID: ""})
	if _, err := cancel.Execute(context.Background(), params); err == nil {
		t.Fatal("expected an error for an empty id")
	}
}
