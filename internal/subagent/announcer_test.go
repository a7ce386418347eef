package subagent

import (
	"context"
	"testing"
	"time"

	"github.com/stewardhq/steward/internal/session"
)

func TestOrchestratorAnnouncer_DeliversNonNoReplyText(t *testing.T) {
	var delivered string
	orch := &fakeOrchestrator{handle: func(ctx context.Context, in session.InboundMessage) (*session.OutboundMessage, error) {
		if in.UserID != "system" {
			t.Errorf("expected system-authored turn, got userID %q", in.UserID)
		}
		return &session.OutboundMessage{Text: "ack"}, nil
	}}
	a := &OrchestratorAnnouncer{Orchestrator: orch, Deliver: func(ctx context.Context, channelID, text string) {
		delivered = text
	}}

	a.Announce(context.Background(), "tg:chat:1", "chat:1", AnnounceSummary{
		Label: "build", Status: StatusOK, Result: "done", Duration: 2 * time.Second,
	})

	if delivered != "ack" {
		t.Fatalf("expected delivered text %q, got %q", "ack", delivered)
	}
}

func TestOrchestratorAnnouncer_SuppressesNoReply(t *testing.T) {
	delivered := false
	orch := &fakeOrchestrator{handle: func(ctx context.Context, in session.InboundMessage) (*session.OutboundMessage, error) {
		return &session.OutboundMessage{Text: session.NoReply}, nil
	}}
	a := &OrchestratorAnnouncer{Orchestrator: orch, Deliver: func(ctx context.Context, channelID, text string) {
		delivered = true
	}}

	a.Announce(context.Background(), "tg:chat:1", "chat:1", AnnounceSummary{Status: StatusOK})

	if delivered {
		t.Fatal("expected NO_REPLY to suppress delivery")
	}
}
