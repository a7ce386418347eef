package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stewardhq/steward/internal/bus"
	"github.com/stewardhq/steward/internal/session"
)

// Orchestrator is the seam the Spawner drives a child session through.
// Satisfied by *session.Orchestrator.
type Orchestrator interface {
	HandleMessage(ctx context.Context, in session.InboundMessage) (*session.OutboundMessage, error)
	Stop(key session.Key)
}

// Config holds a Registry's collaborators and limits.
type Config struct {
	Store        Store
	Orchestrator Orchestrator
	Announcer    Announcer
	Limits       Limits
	Logger       *slog.Logger
	Bus          *bus.Bus
}

// Registry is the Subagent Registry & Spawner (spec §4.4): a bounded,
// depth-limited fan-out of background reasoning sessions, persisted and
// process-restart safe. Grounded on the teacher's coordinator.Executor /
// tools.spawnTask shape, generalized from DAG-plan-step delegation to
// recursive depth-limited fan-out.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	runs    map[string]*Run
	cancels map[string]context.CancelFunc

	wg sync.WaitGroup
}

// New creates a Registry. cfg.Store and cfg.Orchestrator must be non-nil.
func New(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	return &Registry{
		cfg:     cfg,
		runs:    make(map[string]*Run),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Load reads the persisted run set and applies spec §4.4's process-restart
// safety: any run still marked "running" could not have survived the
// previous process, so it is rewritten as "error" before any new spawn is
// admitted.
func (r *Registry) Load(ctx context.Context) error {
	runs, err := r.cfg.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("subagent: load registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dirty := false
	for i := range runs {
		run := runs[i]
		if run.Status == StatusRunning {
			run.Status = StatusError
			run.Error = "process restart"
			if run.EndedAt.IsZero() {
				run.EndedAt = time.Now()
			}
			dirty = true
			r.cfg.Logger.Warn("subagent: recovered running record as error on load", "run_id", run.RunID)
		}
		r.runs[run.RunID] = &run
	}
	if dirty {
		return r.persistLocked(ctx)
	}
	return nil
}

// Spawn admits or rejects a fan-out request per spec §4.4's limit checks,
// and on admission starts a background task invoking the Orchestrator with
// a synthesized child InboundMessage.
func (r *Registry) Spawn(ctx context.Context, req SpawnRequest) (SpawnResult, error) {
	r.mu.Lock()

	parentDepth := r.depthOfLocked(req.ParentSessionKey)
	childDepth := parentDepth + 1

	var reason RejectReason
	switch {
	case childDepth > r.cfg.Limits.MaxDepth:
		reason = RejectDepthExceeded
	case r.activeChildrenForParentLocked(req.ParentSessionKey) >= r.cfg.Limits.MaxChildrenPerSession:
		reason = RejectChildrenExceeded
	case r.activeTotalLocked() >= r.cfg.Limits.MaxConcurrentTotal:
		reason = RejectConcurrentExceeded
	}
	if reason != "" {
		r.mu.Unlock()
		r.publish(bus.TopicSubagentRejected, bus.SubagentEvent{
			ParentSessionKey: string(req.ParentSessionKey),
			Depth:            childDepth,
			Status:           string(StatusError),
			Reason:           string(reason),
		})
		return SpawnResult{}, &RejectedError{Reason: reason}
	}

	runID := uuid.NewString()
	childKey := session.Key(fmt.Sprintf("subagent:%s", runID))
	run := &Run{
		RunID:            runID,
		ChildSessionKey:  childKey,
		ParentSessionKey: req.ParentSessionKey,
		ParentChannelID:  req.ParentChannelID,
		Task:             req.Task,
		Label:            req.Label,
		Depth:            childDepth,
		Status:           StatusRunning,
		CreatedAt:        time.Now(),
	}
	r.runs[runID] = run
	runCtx, cancel := context.WithCancel(context.Background())
	r.cancels[runID] = cancel
	err := r.persistLocked(ctx)
	r.mu.Unlock()
	if err != nil {
		r.cfg.Logger.Warn("subagent: persist on spawn failed", "error", err)
	}

	r.publish(bus.TopicSubagentSpawned, bus.SubagentEvent{
		RunID: runID, ParentSessionKey: string(req.ParentSessionKey),
		ChildSessionKey: string(childKey), Depth: childDepth, Status: string(StatusRunning),
	})

	r.wg.Add(1)
	go r.runChild(runCtx, run)

	return SpawnResult{RunID: runID, ChildSessionKey: childKey}, nil
}

// runChild drives one admitted run to completion and announces the result
// back to the parent session.
func (r *Registry) runChild(ctx context.Context, run *Run) {
	defer r.wg.Done()

	started := time.Now()
	out, err := r.cfg.Orchestrator.HandleMessage(ctx, session.InboundMessage{
		SessionKey: run.ChildSessionKey,
		Text:       run.Task,
		UserID:     "system",
		IsSubagent: true,
		Depth:      run.Depth,
	})

	r.mu.Lock()
	current, ok := r.runs[run.RunID]
	r.mu.Unlock()
	if !ok {
		return
	}

	status := StatusOK
	result := ""
	errMsg := ""
	switch {
	case err != nil:
		status = StatusError
		errMsg = err.Error()
	case current.Status == StatusKilled:
		status = StatusKilled
	case out != nil:
		result = out.Text
	}

	r.markComplete(run.RunID, result, errMsg, status)

	remaining := r.activeChildrenForParent(run.ParentSessionKey)
	r.publish(bus.TopicSubagentCompleted, bus.SubagentEvent{
		RunID: run.RunID, ParentSessionKey: string(run.ParentSessionKey),
		ChildSessionKey: string(run.ChildSessionKey), Depth: run.Depth, Status: string(status),
	})

	if r.cfg.Announcer != nil {
		r.cfg.Announcer.Announce(context.Background(), run.ParentSessionKey, run.ParentChannelID, AnnounceSummary{
			Label: run.Label, Task: run.Task, Status: status, Result: result, Error: errMsg,
			Duration: time.Since(started), RemainingActiveChildren: remaining,
		})
		r.publish(bus.TopicSubagentAnnounced, bus.SubagentEvent{
			RunID: run.RunID, ParentSessionKey: string(run.ParentSessionKey), Status: string(status),
		})
	}
}

// markComplete records a run's terminal status and persists the registry.
func (r *Registry) markComplete(runID, result, errMsg string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return
	}
	if run.Status != StatusKilled {
		run.Status = status
	}
	run.Result = result
	run.Error = errMsg
	run.EndedAt = time.Now()
	delete(r.cancels, runID)
	_ = r.persistLocked(context.Background())
}

// Kill transitions a running record to "killed" and aborts its underlying
// session.
func (r *Registry) Kill(ctx context.Context, runID string) error {
	r.mu.Lock()
	run, ok := r.runs[runID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("subagent: unknown run %s", runID)
	}
	if run.Status != StatusRunning {
		r.mu.Unlock()
		return nil
	}
	run.Status = StatusKilled
	run.EndedAt = time.Now()
	childKey := run.ChildSessionKey
	if cancel, ok := r.cancels[runID]; ok {
		cancel()
		delete(r.cancels, runID)
	}
	err := r.persistLocked(ctx)
	r.mu.Unlock()

	r.cfg.Orchestrator.Stop(childKey)
	return err
}

// List returns a snapshot of every known run.
func (r *Registry) List() []Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, *run)
	}
	return out
}

// Prune removes completed (non-running) runs older than olderThan (spec
// §4.4's "Bounded persistence": completed runs older than 1 hour may be
// pruned on demand).
func (r *Registry) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for id, run := range r.runs {
		if run.Status == StatusRunning {
			continue
		}
		if run.EndedAt.Before(cutoff) {
			delete(r.runs, id)
			removed++
		}
	}
	if removed > 0 {
		return removed, r.persistLocked(ctx)
	}
	return 0, nil
}

// Wait blocks until every in-flight Spawn's background task has returned.
// For tests and graceful shutdown only; spec §4.4's contract never requires
// the caller to wait.
func (r *Registry) Wait() {
	r.wg.Wait()
}

func (r *Registry) depthOfLocked(parent session.Key) int {
	max := 0
	for _, run := range r.runs {
		if run.ChildSessionKey == parent && run.Depth > max {
			max = run.Depth
		}
	}
	return max
}

func (r *Registry) activeChildrenForParentLocked(parent session.Key) int {
	n := 0
	for _, run := range r.runs {
		if run.ParentSessionKey == parent && run.Status == StatusRunning {
			n++
		}
	}
	return n
}

func (r *Registry) activeChildrenForParent(parent session.Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeChildrenForParentLocked(parent)
}

func (r *Registry) activeTotalLocked() int {
	n := 0
	for _, run := range r.runs {
		if run.Status == StatusRunning {
			n++
		}
	}
	return n
}

func (r *Registry) persistLocked(ctx context.Context) error {
	runs := make([]Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, *run)
	}
	if err := r.cfg.Store.Save(ctx, runs); err != nil {
		r.cfg.Logger.Warn("subagent: persist failed", "error", err)
		return err
	}
	return nil
}

func (r *Registry) publish(topic string, payload interface{}) {
	if r.cfg.Bus != nil {
		r.cfg.Bus.Publish(topic, payload)
	}
}
