// Package tui implements the read-only status dashboard spec §4.13
// describes for `steward status --watch`: a polling Bubble Tea view over
// scheduler, subagent, and heartbeat state.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Snapshot is one polled read of the daemon's on-disk state, assembled by
// the caller from the scheduler/subagent/heartbeat FileStores (there is no
// cross-process bus to subscribe to, so --watch polls the same files the
// daemon persists to rather than attaching live).
type Snapshot struct {
	Jobs            int
	EnabledJobs     int
	JobFailures     int
	ActiveSubagents int
	SubagentErrors  int
	HeartbeatRuns   int
	LastHeartbeatAt time.Time
	LastHeartbeatOK bool
	LastError       string
	Uptime          time.Duration
}

type StatusProvider func() Snapshot

type model struct {
	provider StatusProvider
	snap     Snapshot
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(1*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		m.snap = m.provider()
		return m, tickCmd()
	}
	return m, nil
}

func (m model) View() string {
	lastErr := "(none)"
	if m.snap.LastError != "" {
		lastErr = errorStyle.Render(humanError(errors.New(m.snap.LastError)))
	}
	lastHeartbeat := "(never)"
	if !m.snap.LastHeartbeatAt.IsZero() {
		lastHeartbeat = fmt.Sprintf("%s (ok=%t)", m.snap.LastHeartbeatAt.Format(time.RFC3339), m.snap.LastHeartbeatOK)
	}
	return fmt.Sprintf(
		"%s\n\nJobs: %d (enabled %d, failures %d)\nActive subagents: %d (errors %d)\nHeartbeat runs: %d\nLast heartbeat: %s\nUptime: %s\nLast error: %s\n\nPress q to quit.\n",
		titleStyle.Render("steward status"),
		m.snap.Jobs,
		m.snap.EnabledJobs,
		m.snap.JobFailures,
		m.snap.ActiveSubagents,
		m.snap.SubagentErrors,
		m.snap.HeartbeatRuns,
		lastHeartbeat,
		m.snap.Uptime.Truncate(time.Second),
		lastErr,
	)
}

// Run drives the status dashboard until ctx is cancelled or the user quits.
func Run(ctx context.Context, provider StatusProvider) error {
	defer bestEffortResetTTY()

	m := model{provider: provider, snap: provider()}
	p := tea.NewProgram(m)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()

	select {
	case <-ctx.Done():
		p.Quit()
		return ctx.Err()
	case err := <-done:
		return err
	}
}
