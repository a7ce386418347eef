package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stewardhq/steward/internal/bus"
)

// Config holds the Scheduler's tunables; defaults match spec §4.3.
type Config struct {
	Store  Store
	OnFire OnFire
	Logger *slog.Logger
	Bus    *bus.Bus

	MaxConcurrency         int
	MaxRetries             int
	RetryBaseDelay         time.Duration
	MaxConsecutiveFailures int
	JobTimeout             time.Duration
	SafetyTickInterval     time.Duration
}

// DefaultConfig returns the spec's stated defaults, leaving Store/OnFire
// unset for the caller to fill in.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:         3,
		MaxRetries:             2,
		RetryBaseDelay:         5 * time.Second,
		MaxConsecutiveFailures: 5,
		JobTimeout:             5 * time.Minute,
		SafetyTickInterval:     60 * time.Second,
	}
}

// Scheduler drives Job firings per spec §4.3: concurrency cap, per-firing
// timeout, bounded retry with exponential backoff, auto-disable, and
// atomic persistence of every state transition. Grounded on
// internal/cron/scheduler.go's Scheduler, generalized from cron-only
// arming to the At/Cron/Every tagged schedule.
type Scheduler struct {
	cfg Config

	mu   sync.Mutex
	jobs map[string]*Job

	timers  map[string]*time.Timer
	running map[string]bool
	pending []string // FIFO, no duplicate ids

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler. cfg.Store and cfg.OnFire must be non-nil.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 5 * time.Second
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.SafetyTickInterval <= 0 {
		cfg.SafetyTickInterval = 60 * time.Second
	}
	return &Scheduler{
		cfg:     cfg,
		jobs:    make(map[string]*Job),
		timers:  make(map[string]*time.Timer),
		running: make(map[string]bool),
	}
}

// Start loads the job set, performs missed-At-job recovery, arms every
// enabled job, and launches the safety-tick loop. The returned context
// governs the scheduler's lifetime; call Stop to shut down cleanly.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs, err := s.cfg.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: load jobs: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.Lock()
	now := time.Now()
	for i := range jobs {
		j := jobs[i]
		s.jobs[j.ID] = &j
	}
	for _, j := range s.jobs {
		if !j.Enabled {
			continue
		}
		if j.Schedule.Kind == ScheduleAt && j.RunCount == 0 && j.Schedule.At.Before(now) {
			s.enqueueLocked(runCtx, j.ID)
			continue
		}
		s.armLocked(runCtx, j)
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.safetyLoop(runCtx)

	s.cfg.Logger.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop cancels all arming timers and waits for in-flight firings and the
// safety loop to exit. Per spec §5, Stop signals but does not cancel
// in-flight firings; it waits for each to complete or time out.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.cfg.Logger.Info("scheduler stopped")
}

func (s *Scheduler) safetyLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SafetyTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safetyTick(ctx)
		}
	}
}

// safetyTick re-checks At jobs whose target time is past but whose arming
// was lost (no registered timer), per spec §4.3's missed-job recovery.
func (s *Scheduler) safetyTick(ctx context.Context) {
	now := time.Now()
	s.mu.Lock()
	var due []string
	for id, j := range s.jobs {
		if !j.Enabled || j.Schedule.Kind != ScheduleAt || j.RunCount != 0 {
			continue
		}
		if _, armed := s.timers[id]; armed {
			continue
		}
		if j.Schedule.At.Before(now) || j.Schedule.At.Equal(now) {
			due = append(due, id)
		}
	}
	s.mu.Unlock()

	for _, id := range due {
		s.mu.Lock()
		s.enqueueLocked(ctx, id)
		s.mu.Unlock()
	}
}

// AddJob registers a new job, arms it, and persists the job set.
func (s *Scheduler) AddJob(ctx context.Context, j Job) (Job, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.jobs[j.ID] = &j
	if j.Enabled {
		if j.Schedule.Kind == ScheduleAt && j.Schedule.At.Before(time.Now()) {
			s.enqueueLocked(ctx, j.ID)
		} else {
			s.armLocked(ctx, &j)
		}
	}
	err := s.persistLocked(ctx)
	s.mu.Unlock()
	return j, err
}

// UpdateJob replaces the stored job with updated, re-arming it. Re-enabling
// a previously disabled job resets consecutiveFailures per spec §4.3's
// state machine.
func (s *Scheduler) UpdateJob(ctx context.Context, updated Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[updated.ID]
	if !ok {
		return fmt.Errorf("scheduler: unknown job %s", updated.ID)
	}
	if updated.Enabled && !existing.Enabled {
		updated.State.ConsecutiveFailures = 0
	}
	s.unarmLocked(updated.ID)
	s.jobs[updated.ID] = &updated
	if updated.Enabled {
		s.armLocked(ctx, &updated)
	}
	return s.persistLocked(ctx)
}

// RemoveJob unarms and deletes a job, persisting the job set.
func (s *Scheduler) RemoveJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unarmLocked(id)
	delete(s.jobs, id)
	return s.persistLocked(ctx)
}

// List returns a snapshot of every job, enabled or not.
func (s *Scheduler) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}

func (s *Scheduler) unarmLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// armLocked schedules the next self-rearming timer for j based on its
// schedule kind. Must be called with s.mu held.
func (s *Scheduler) armLocked(ctx context.Context, j *Job) {
	now := time.Now()
	var delay time.Duration

	switch j.Schedule.Kind {
	case ScheduleAt:
		delay = j.Schedule.At.Sub(now)
		if delay <= 0 {
			s.enqueueLocked(ctx, j.ID)
			return
		}
	case ScheduleEvery:
		delay = time.Duration(j.Schedule.IntervalMs) * time.Millisecond
		if delay <= 0 {
			s.cfg.Logger.Warn("scheduler: invalid every interval, not armed", "job_id", j.ID)
			return
		}
	case ScheduleCron:
		next, err := nextCronRun(j.Schedule.CronExpr, j.Schedule.TZ, now)
		if err != nil {
			s.cfg.Logger.Warn("scheduler: invalid cron expression, not armed", "job_id", j.ID, "expr", j.Schedule.CronExpr, "error", err)
			j.State.NextRunAtMs = 0
			return
		}
		delay = next.Sub(now)
		j.State.NextRunAtMs = next.UnixMilli()
	default:
		s.cfg.Logger.Warn("scheduler: unknown schedule kind, not armed", "job_id", j.ID, "kind", j.Schedule.Kind)
		return
	}

	id := j.ID
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.enqueueLocked(ctx, id)
		s.mu.Unlock()
	})
}

// enqueueLocked admits id directly if capacity exists, otherwise appends it
// to the FIFO pending queue (no duplicate entries). Must be called with
// s.mu held.
func (s *Scheduler) enqueueLocked(ctx context.Context, id string) {
	if s.running[id] {
		return
	}
	for _, p := range s.pending {
		if p == id {
			return
		}
	}
	if len(s.running) < s.cfg.MaxConcurrency {
		s.running[id] = true
		s.wg.Add(1)
		go s.runFiring(ctx, id)
		return
	}
	s.pending = append(s.pending, id)
}

// runFiring executes one job's firing procedure end to end (spec §4.3
// "Execution of one firing") and drains the pending queue on completion.
func (s *Scheduler) runFiring(ctx context.Context, id string) {
	defer s.wg.Done()
	defer s.finishFiring(ctx, id)

	s.mu.Lock()
	job, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	job.LastRunAt = time.Now()
	job.RunCount++
	s.mu.Unlock()

	var lastErr error
	succeeded := false

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		firingCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
		err := s.cfg.OnFire(firingCtx, *job)
		timedOut := firingCtx.Err() == context.DeadlineExceeded
		cancel()

		if err == nil {
			succeeded = true
			break
		}
		lastErr = err
		if timedOut {
			break // timeouts are fatal for the firing, never retried
		}
		if attempt < s.cfg.MaxRetries {
			time.Sleep(s.cfg.RetryBaseDelay * time.Duration(1<<attempt))
		}
	}

	s.mu.Lock()
	if succeeded {
		job.LastError = ""
		job.State.ConsecutiveFailures = 0
		s.publish(bus.TopicSchedulerFired, bus.SchedulerEvent{JobID: job.ID, JobName: job.Name})
	} else {
		job.LastError = lastErr.Error()
		job.State.ConsecutiveFailures++
		s.publish(bus.TopicSchedulerFailed, bus.SchedulerEvent{
			JobID: job.ID, JobName: job.Name,
			ConsecutiveFailure: job.State.ConsecutiveFailures, Error: job.LastError,
		})
		if job.State.ConsecutiveFailures >= s.cfg.MaxConsecutiveFailures {
			job.Enabled = false
			s.unarmLocked(job.ID)
			s.publish(bus.TopicSchedulerDisabled, bus.SchedulerEvent{JobID: job.ID, JobName: job.Name, ConsecutiveFailure: job.State.ConsecutiveFailures})
		}
	}

	if job.DeleteAfterRun {
		s.unarmLocked(job.ID)
		delete(s.jobs, job.ID)
	} else if job.Enabled {
		s.armLocked(ctx, job)
	}
	_ = s.persistLocked(ctx)
	s.mu.Unlock()
}

func (s *Scheduler) finishFiring(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.running, id)
	var next string
	if len(s.pending) > 0 {
		next, s.pending = s.pending[0], s.pending[1:]
	}
	s.mu.Unlock()

	if next != "" {
		s.mu.Lock()
		s.enqueueLocked(ctx, next)
		s.mu.Unlock()
	}
}

func (s *Scheduler) persistLocked(ctx context.Context) error {
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, *j)
	}
	if err := s.cfg.Store.Save(ctx, jobs); err != nil {
		s.cfg.Logger.Warn("scheduler: persist failed", "error", err)
		return err
	}
	return nil
}

func (s *Scheduler) publish(topic string, payload interface{}) {
	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(topic, payload)
	}
}
