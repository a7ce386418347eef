package session_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stewardhq/steward/internal/session"
)

type fakeCompactingClient struct {
	compactErr error
	compacted  bool
}

func (f *fakeCompactingClient) GenerateTurn(ctx context.Context, req session.TurnRequest) (session.TurnResult, error) {
	return session.TurnResult{}, nil
}

func (f *fakeCompactingClient) Compact(ctx context.Context, history []session.Message) (string, error) {
	f.compacted = true
	if f.compactErr != nil {
		return "", f.compactErr
	}
	return "summary", nil
}

func TestOverflowResolver_TransientRetriesWithBackoff(t *testing.T) {
	r := &session.OverflowResolver{}
	outcome := r.Resolve(context.Background(), 0, errors.New("429 too many requests"), "", nil)
	if outcome.Respond {
		t.Fatal("expected retry, not respond")
	}
	if outcome.RetryMs != 1000 {
		t.Fatalf("expected 1000ms delay on attempt 0, got %d", outcome.RetryMs)
	}
}

func TestOverflowResolver_TransientRespondsAfterMaxRetries(t *testing.T) {
	r := &session.OverflowResolver{}
	outcome := r.Resolve(context.Background(), 2, errors.New("connection reset"), "", nil)
	if !outcome.Respond {
		t.Fatal("expected respond after exhausting retries")
	}
}

func TestOverflowResolver_ContextOverflowCompactsSuccessfully(t *testing.T) {
	client := &fakeCompactingClient{}
	r := &session.OverflowResolver{Client: client}
	outcome := r.Resolve(context.Background(), 0, errors.New("prompt is too long"), "", nil)
	if outcome.Respond {
		t.Fatal("expected retry after successful compaction")
	}
	if !client.compacted {
		t.Fatal("expected Compact to be invoked")
	}
}

func TestOverflowResolver_ContextOverflowFallsBackToReset(t *testing.T) {
	client := &fakeCompactingClient{compactErr: errors.New("compaction unavailable")}
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte("stale data"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	r := &session.OverflowResolver{Client: client, SessionPath: path}
	outcome := r.Resolve(context.Background(), 0, errors.New("context length exceeded"), "", nil)
	if !outcome.Respond {
		t.Fatal("expected a user-visible reset message")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read reset file: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected session file truncated, got %d bytes", len(data))
	}
}

func TestOverflowResolver_UnknownRespondsImmediately(t *testing.T) {
	r := &session.OverflowResolver{}
	outcome := r.Resolve(context.Background(), 0, errors.New("something inexplicable"), "", nil)
	if !outcome.Respond {
		t.Fatal("expected unknown errors to respond immediately")
	}
}
