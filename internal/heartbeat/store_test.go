package heartbeat

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "heartbeat-state.json"))

	in := State{LastRunAtMs: 1700000000000, RunCount: 3, LastError: "boom"}
	if err := s.Save(context.Background(), in); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out != in {
		t.Fatalf("expected %+v, got %+v", in, out)
	}
}

func TestFileStore_MissingFileReturnsZeroState(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "does-not-exist.json"))

	out, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if out != (State{}) {
		t.Fatalf("expected zero state, got %+v", out)
	}
}
