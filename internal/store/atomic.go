// Package store provides the durable, file-based persistence primitives
// used by every CORE subsystem: atomic JSON read/write (temp file + rename),
// append-only JSONL session logs, and the on-disk layout from spec §6.
//
// No embedded SQL engine is used; every durable record is a plain JSON or
// JSONL file under the agent-state directory, written with a single-writer
// discipline (see DESIGN.md for why no third-party database driver replaces
// this layout).
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Paths resolves the on-disk layout for the agent-state directory (spec §6).
type Paths struct {
	StateDir     string // agent-state directory, typically $STEWARD_HOME/state
	WorkspaceDir string // workspace directory, typically $STEWARD_HOME/workspace
}

// NewPaths creates a Paths rooted at homeDir, creating both directories.
func NewPaths(homeDir string) (Paths, error) {
	p := Paths{
		StateDir:     filepath.Join(homeDir, "state"),
		WorkspaceDir: filepath.Join(homeDir, "workspace"),
	}
	if err := os.MkdirAll(p.StateDir, 0o755); err != nil {
		return p, fmt.Errorf("create state dir: %w", err)
	}
	if err := os.MkdirAll(p.WorkspaceDir, 0o755); err != nil {
		return p, fmt.Errorf("create workspace dir: %w", err)
	}
	return p, nil
}

func (p Paths) SessionsDir() string       { return filepath.Join(p.StateDir, "sessions") }
func (p Paths) SessionFile(safeKey string) string {
	return filepath.Join(p.SessionsDir(), safeKey+".jsonl")
}
func (p Paths) CronStorePath() string { return filepath.Join(p.StateDir, "cron-store.json") }
func (p Paths) SubagentRegistryPath() string {
	return filepath.Join(p.StateDir, "subagent-registry.json")
}
func (p Paths) ConsolidationDir() string { return filepath.Join(p.StateDir, "consolidation") }
func (p Paths) ConsolidationFile(safeKey string) string {
	return filepath.Join(p.ConsolidationDir(), safeKey+".json")
}
func (p Paths) HeartbeatStatePath() string { return filepath.Join(p.StateDir, "heartbeat-state.json") }
func (p Paths) DebugLogPath() string       { return filepath.Join(p.StateDir, "debug.json") }

func (p Paths) MemoryDir() string        { return filepath.Join(p.WorkspaceDir, "memory") }
func (p Paths) MemoryStorePath() string  { return filepath.Join(p.MemoryDir(), "memory.json") }
func (p Paths) MemoryMDPath() string     { return filepath.Join(p.MemoryDir(), "MEMORY.md") }
func (p Paths) HistoryMDPath() string    { return filepath.Join(p.MemoryDir(), "HISTORY.md") }
func (p Paths) SkillsDir() string        { return filepath.Join(p.WorkspaceDir, "skills") }
func (p Paths) TodoMDPath() string       { return filepath.Join(p.WorkspaceDir, "TODO.md") }

// WriteJSONAtomic marshals v as indented JSON and writes it to path using a
// temp-file-in-same-directory + rename, so readers never observe a partial
// write.
func WriteJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to path via temp-file-in-same-directory +
// rename. Parent directories are created as needed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}
	return nil
}

// ReadJSON unmarshals the file at path into v. If the file does not exist,
// it returns os.ErrNotExist so callers can distinguish "empty store" from a
// corrupt one.
func ReadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}
