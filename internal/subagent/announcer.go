package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stewardhq/steward/internal/session"
)

// Deliver sends outbound text to a parent session's channel. Supplied by
// whichever transport owns that channel; nil in tests.
type Deliver func(ctx context.Context, channelID, text string)

// OrchestratorAnnouncer implements Announcer by injecting the run's outcome
// into the parent session as a synthetic system-authored turn and
// forwarding the parent's reply to Deliver, unless the reply is the
// session.NoReply sentinel (spec §4.4 "Announce").
type OrchestratorAnnouncer struct {
	Orchestrator Orchestrator
	Deliver      Deliver
	Logger       *slog.Logger
}

// Announce formats summary per spec §4.4 and runs it through the parent
// session as one more turn.
func (a *OrchestratorAnnouncer) Announce(ctx context.Context, parentSessionKey session.Key, parentChannelID string, summary AnnounceSummary) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out, err := a.Orchestrator.HandleMessage(ctx, session.InboundMessage{
		SessionKey: parentSessionKey,
		ChannelID:  parentChannelID,
		UserID:     "system",
		Text:       formatAnnouncement(summary),
	})
	if err != nil {
		logger.Warn("subagent: announce turn failed", "parent_session_key", parentSessionKey, "error", err)
		return
	}
	if out == nil || out.Text == "" || out.Text == session.NoReply {
		return
	}
	if a.Deliver != nil {
		a.Deliver(ctx, parentChannelID, out.Text)
	}
}

func formatAnnouncement(s AnnounceSummary) string {
	title := s.Label
	if title == "" {
		title = s.Task
	}
	switch s.Status {
	case StatusOK:
		return fmt.Sprintf("Subagent task %q completed in %s.\nResult: %s\n(%d other subagent(s) still running)", title, s.Duration.Round(time.Second), s.Result, s.RemainingActiveChildren)
	case StatusKilled:
		return fmt.Sprintf("Subagent task %q was killed after %s.\n(%d other subagent(s) still running)", title, s.Duration.Round(time.Second), s.RemainingActiveChildren)
	default:
		return fmt.Sprintf("Subagent task %q failed after %s.\nError: %s\n(%d other subagent(s) still running)", title, s.Duration.Round(time.Second), s.Error, s.RemainingActiveChildren)
	}
}
