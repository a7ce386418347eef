package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/stewardhq/steward/internal/config"
	"github.com/stewardhq/steward/internal/heartbeat"
	"github.com/stewardhq/steward/internal/scheduler"
	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/internal/subagent"
	"github.com/stewardhq/steward/internal/tui"
)

// readStatusSnapshot loads the daemon's persisted scheduler, subagent, and
// heartbeat state directly off disk. There is no cross-process bus for a
// separate `status` invocation to subscribe to, so both the one-shot and
// --watch forms poll the same FileStore-backed JSON the running daemon
// writes to rather than attaching to a live process.
func readStatusSnapshot(ctx context.Context, paths store.Paths, startedAt time.Time) (tui.Snapshot, error) {
	jobs, err := scheduler.NewFileStore(paths.CronStorePath()).Load(ctx)
	if err != nil {
		return tui.Snapshot{}, fmt.Errorf("load scheduler state: %w", err)
	}
	runs, err := subagent.NewFileStore(paths.SubagentRegistryPath()).Load(ctx)
	if err != nil {
		return tui.Snapshot{}, fmt.Errorf("load subagent state: %w", err)
	}
	hbState, err := heartbeat.NewFileStore(paths.HeartbeatStatePath()).Load(ctx)
	if err != nil {
		return tui.Snapshot{}, fmt.Errorf("load heartbeat state: %w", err)
	}

	snap := tui.Snapshot{
		Jobs:          len(jobs),
		HeartbeatRuns: hbState.RunCount,
		LastError:     hbState.LastError,
		Uptime:        time.Since(startedAt),
	}
	for _, j := range jobs {
		if j.Enabled {
			snap.EnabledJobs++
		}
		if j.LastError != "" {
			snap.JobFailures++
		}
	}
	for _, r := range runs {
		if r.Status == subagent.StatusRunning {
			snap.ActiveSubagents++
		}
		if r.Status == subagent.StatusError {
			snap.SubagentErrors++
		}
	}
	if hbState.LastRunAtMs != 0 {
		snap.LastHeartbeatAt = time.UnixMilli(hbState.LastRunAtMs)
		snap.LastHeartbeatOK = hbState.LastError == ""
	}
	return snap, nil
}

func runStatusCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("goclaw status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	watch := fs.Bool("watch", false, "poll and render state live")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "usage: goclaw status [--watch]")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}
	paths, err := store.NewPaths(cfg.HomeDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve home dir: %v\n", err)
		return 1
	}
	startedAt := time.Now()

	if *watch && !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(os.Stderr, "status --watch requires a terminal; falling back to a one-shot report")
		*watch = false
	}

	if *watch {
		provider := func() tui.Snapshot {
			snap, err := readStatusSnapshot(ctx, paths, startedAt)
			if err != nil {
				snap.LastError = err.Error()
			}
			return snap
		}
		if err := tui.Run(ctx, provider); err != nil && err != context.Canceled {
			fmt.Fprintf(os.Stderr, "status --watch: %v\n", err)
			return 1
		}
		return 0
	}

	snap, err := readStatusSnapshot(ctx, paths, startedAt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "jobs: %d (enabled %d, failures %d)\n", snap.Jobs, snap.EnabledJobs, snap.JobFailures)
	fmt.Fprintf(os.Stdout, "subagents: active %d, errors %d\n", snap.ActiveSubagents, snap.SubagentErrors)
	fmt.Fprintf(os.Stdout, "heartbeat: runs %d\n", snap.HeartbeatRuns)
	if snap.LastError != "" {
		fmt.Fprintf(os.Stdout, "last error: %s\n", snap.LastError)
		return 1
	}
	return 0
}
