package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stewardhq/steward/internal/store"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestNewPaths_CreatesStateAndWorkspaceDirs(t *testing.T) {
	home := t.TempDir()
	p, err := store.NewPaths(home)
	if err != nil {
		t.Fatalf("new paths: %v", err)
	}
	for _, dir := range []string{p.StateDir, p.WorkspaceDir} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Fatalf("expected dir %s to exist, err=%v", dir, err)
		}
	}
}

func TestPaths_Layout(t *testing.T) {
	home := t.TempDir()
	p, err := store.NewPaths(home)
	if err != nil {
		t.Fatalf("new paths: %v", err)
	}

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"session file", p.SessionFile("telegram_dm_123"), filepath.Join(home, "state", "sessions", "telegram_dm_123.jsonl")},
		{"cron store", p.CronStorePath(), filepath.Join(home, "state", "cron-store.json")},
		{"subagent registry", p.SubagentRegistryPath(), filepath.Join(home, "state", "subagent-registry.json")},
		{"consolidation file", p.ConsolidationFile("cron_job-1"), filepath.Join(home, "state", "consolidation", "cron_job-1.json")},
		{"heartbeat state", p.HeartbeatStatePath(), filepath.Join(home, "state", "heartbeat-state.json")},
		{"debug log", p.DebugLogPath(), filepath.Join(home, "state", "debug.json")},
		{"memory store", p.MemoryStorePath(), filepath.Join(home, "workspace", "memory", "memory.json")},
		{"memory md", p.MemoryMDPath(), filepath.Join(home, "workspace", "memory", "MEMORY.md")},
		{"history md", p.HistoryMDPath(), filepath.Join(home, "workspace", "memory", "HISTORY.md")},
		{"skills dir", p.SkillsDir(), filepath.Join(home, "workspace", "skills")},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestWriteJSONAtomic_ReadJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "record.json")
	want := record{Name: "cron:job-1", Count: 3}

	if err := store.WriteJSONAtomic(path, want); err != nil {
		t.Fatalf("write json atomic: %v", err)
	}

	var got record
	if err := store.ReadJSON(path, &got); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestWriteJSONAtomic_NoLeftoverTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "record.json")
	if err := store.WriteJSONAtomic(path, record{Name: "a"}); err != nil {
		t.Fatalf("write json atomic: %v", err)
	}
	if err := store.WriteJSONAtomic(path, record{Name: "b"}); err != nil {
		t.Fatalf("write json atomic (overwrite): %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 file after overwrite, got %d", len(entries))
	}
	if entries[0].Name() != "record.json" {
		t.Fatalf("expected record.json, found %s", entries[0].Name())
	}
}

func TestReadJSON_MissingFileReturnsNotExist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	var got record
	err := store.ReadJSON(path, &got)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestReadJSON_EmptyFileLeavesZeroValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write empty file: %v", err)
	}
	var got record
	if err := store.ReadJSON(path, &got); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if got != (record{}) {
		t.Fatalf("expected zero value, got %+v", got)
	}
}

func TestAppendJSONLine_And_ReadJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions", "a.jsonl")
	want := []record{{Name: "first", Count: 1}, {Name: "second", Count: 2}}
	for _, r := range want {
		if err := store.AppendJSONLine(path, r); err != nil {
			t.Fatalf("append json line: %v", err)
		}
	}

	var got []record
	err := store.ReadJSONLines(path, func() interface{} { return &record{} }, func(raw string, item interface{}) error {
		if item == nil {
			t.Fatalf("unexpected unparseable line: %q", raw)
		}
		got = append(got, *item.(*record))
		return nil
	})
	if err != nil {
		t.Fatalf("read json lines: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d mismatch: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReadJSONLines_MissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions", "missing.jsonl")
	called := false
	err := store.ReadJSONLines(path, func() interface{} { return &record{} }, func(raw string, item interface{}) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error for missing file, got %v", err)
	}
	if called {
		t.Fatal("expected callback never invoked for missing file")
	}
}

func TestReadJSONLines_SkipsUnparseableLinesButContinues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jsonl")
	content := `{"name":"ok","count":1}
not json at all
{"name":"also-ok","count":2}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	var okCount, badCount int
	err := store.ReadJSONLines(path, func() interface{} { return &record{} }, func(raw string, item interface{}) error {
		if item == nil {
			badCount++
			return nil
		}
		okCount++
		return nil
	})
	if err != nil {
		t.Fatalf("read json lines: %v", err)
	}
	if okCount != 2 || badCount != 1 {
		t.Fatalf("expected 2 ok and 1 bad, got ok=%d bad=%d", okCount, badCount)
	}
}

func TestRewriteJSONLines_ReplacesContentAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jsonl")
	if err := store.AppendJSONLine(path, record{Name: "stale", Count: 99}); err != nil {
		t.Fatalf("append json line: %v", err)
	}

	fresh := []interface{}{record{Name: "fresh", Count: 1}}
	if err := store.RewriteJSONLines(path, fresh); err != nil {
		t.Fatalf("rewrite json lines: %v", err)
	}

	var got []record
	err := store.ReadJSONLines(path, func() interface{} { return &record{} }, func(raw string, item interface{}) error {
		got = append(got, *item.(*record))
		return nil
	})
	if err != nil {
		t.Fatalf("read json lines: %v", err)
	}
	if len(got) != 1 || got[0].Name != "fresh" {
		t.Fatalf("expected only the fresh record to remain, got %+v", got)
	}
}
