package heartbeat

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stewardhq/steward/internal/bus"
	"github.com/stewardhq/steward/internal/session"
)

const (
	defaultInterval    = 30 * time.Minute
	defaultMinInterval = 10 * time.Minute

	historyTailLines = 30
	memoryHeadChars  = 2000
)

// Config holds a Driver's collaborators and tunables.
type Config struct {
	Store        Store
	Orchestrator Orchestrator
	Deliver      Deliver

	WorkspaceDir string
	Transport    string // used to build the heartbeat:<transport> session key

	Interval    time.Duration // default 30 min
	MinInterval time.Duration // default 10 min

	Logger *slog.Logger
	Bus    *bus.Bus
}

// Driver is the periodic proactive-wakeup driver (spec §4.10). Grounded on
// engine/heartbeat.go's HeartbeatManager, generalized from a fixed
// HEARTBEAT.md-checklist prompt to spec §4.10's workspace-context digest,
// and adding the min-interval floor persisted across restarts that the
// teacher's manager does not implement.
type Driver struct {
	cfg Config

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Driver. cfg.Store and cfg.Orchestrator must be non-nil.
func New(cfg Config) *Driver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}
	if cfg.Transport == "" {
		cfg.Transport = "local"
	}
	return &Driver{cfg: cfg}
}

// Start launches the ticker loop in a background goroutine.
func (d *Driver) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.wg.Add(1)
	go d.loop(runCtx)
	d.cfg.Logger.Info("heartbeat driver started", "interval", d.cfg.Interval, "min_interval", d.cfg.MinInterval)
}

// Stop cancels the loop and waits for any in-flight tick to finish.
func (d *Driver) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

func (d *Driver) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one heartbeat cycle: skip if a previous tick is still running
// (coalesced, not queued, per spec §4.10) or if minIntervalMs has not yet
// elapsed since the last completed run; otherwise synthesize the workspace
// digest, run it through the orchestrator, and deliver the reply.
func (d *Driver) Tick(ctx context.Context) {
	if !d.running.CompareAndSwap(false, true) {
		d.publish(bus.TopicHeartbeatSkipped, bus.HeartbeatEvent{Error: "previous tick still running"})
		return
	}
	defer d.running.Store(false)

	state, err := d.cfg.Store.Load(ctx)
	if err != nil {
		d.cfg.Logger.Warn("heartbeat: load state failed", "error", err)
		state = State{}
	}

	now := time.Now()
	if state.LastRunAtMs != 0 {
		elapsed := now.Sub(time.UnixMilli(state.LastRunAtMs))
		if elapsed < d.cfg.MinInterval {
			d.publish(bus.TopicHeartbeatSkipped, bus.HeartbeatEvent{Error: "min interval not elapsed"})
			return
		}
	}

	prompt := buildPrompt(d.cfg.WorkspaceDir)
	out, turnErr := d.cfg.Orchestrator.HandleMessage(ctx, session.InboundMessage{
		SessionKey: SessionKey(d.cfg.Transport),
		Text:       prompt,
		UserID:     "system",
	})

	state.RunCount++
	state.LastRunAtMs = now.UnixMilli()
	if turnErr != nil {
		state.LastError = turnErr.Error()
		d.cfg.Logger.Warn("heartbeat: turn failed", "error", turnErr)
	} else {
		state.LastError = ""
	}
	if err := d.cfg.Store.Save(ctx, state); err != nil {
		d.cfg.Logger.Warn("heartbeat: persist state failed", "error", err)
	}

	d.publish(bus.TopicHeartbeatFired, bus.HeartbeatEvent{RanAt: now.Format(time.RFC3339)})

	if turnErr != nil || out == nil || out.Text == "" || out.Text == session.NoReply {
		return
	}
	if d.cfg.Deliver != nil {
		d.cfg.Deliver(ctx, out.Text)
		d.publish(bus.TopicHeartbeatDelivered, bus.HeartbeatEvent{RanAt: now.Format(time.RFC3339)})
	}
}

// buildPrompt reads MEMORY.md's head, HISTORY.md's tail, and TODO.md
// (spec §4.10) and synthesizes the proactive-wakeup prompt. Missing files
// are silently omitted; heartbeat never fails on absent workspace context.
func buildPrompt(workspaceDir string) string {
	var b strings.Builder
	b.WriteString("This is a periodic proactive wake-up. Review the context below and act only if something genuinely needs attention; otherwise reply with \"")
	b.WriteString(session.NoReply)
	b.WriteString("\".\n")

	if head := headOf(filepath.Join(workspaceDir, "memory", "MEMORY.md"), memoryHeadChars); head != "" {
		b.WriteString("\n## Memory\n\n")
		b.WriteString(head)
		b.WriteString("\n")
	}
	if tail := tailLinesOf(filepath.Join(workspaceDir, "memory", "HISTORY.md"), historyTailLines); tail != "" {
		b.WriteString("\n## Recent history\n\n")
		b.WriteString(tail)
		b.WriteString("\n")
	}
	if todo := readTrimmed(filepath.Join(workspaceDir, "TODO.md")); todo != "" {
		b.WriteString("\n## TODO\n\n")
		b.WriteString(todo)
		b.WriteString("\n")
	}
	return b.String()
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func headOf(path string, maxChars int) string {
	text := readTrimmed(path)
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars]
}

func tailLinesOf(path string, n int) string {
	text := readTrimmed(path)
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

func (d *Driver) publish(topic string, payload interface{}) {
	if d.cfg.Bus != nil {
		d.cfg.Bus.Publish(topic, payload)
	}
}
