package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stewardhq/steward/internal/session"
	"github.com/stewardhq/steward/internal/shared"
)

const (
	defaultShellTimeoutMs = 30_000
	maxShellTimeoutMs     = 120_000
	maxShellOutput        = 50_000 // chars, per the exec contract's output cap
)

// denyList contains commands that are never executed regardless of sandbox
// backend. Grounded on the teacher's shell.go deny list.
var denyList = map[string]struct{}{
	"rm": {}, "rmdir": {}, "mkfs": {}, "dd": {},
	"shutdown": {}, "reboot": {}, "halt": {}, "poweroff": {},
	"kill": {}, "killall": {}, "pkill": {},
	"sudo": {}, "su": {}, "chmod": {}, "chown": {},
}

type shellParams struct {
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir,omitempty"`
	TimeoutMs  int    `json:"timeout_ms,omitempty"`
}

// shellTool returns the shell tool backed by sb. Returns a zero Tool (no
// Execute) when sb is nil, so it stays unregistered rather than falling
// back to an unsandboxed host executor. Grounded on the teacher's
// registerShell, generalized from a bare Executor to the Sandbox seam
// internal/sandbox's Docker backend satisfies.
func shellTool(sb Sandbox) Tool {
	if sb == nil {
		return Tool{}
	}

	return Tool{
		Spec: session.ToolSpec{
			Name:        "shell",
			Description: "Execute a shell command in a sandbox and return its output. Commands on the deny list (rm, sudo, kill, etc.) and shell-injection operators (;, $(), backticks) are blocked. Output is truncated and secrets are redacted.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"command": {"type": "string"},
					"working_dir": {"type": "string"},
					"timeout_ms": {"type": "integer", "minimum": 1}
				},
				"required": ["command"]
			}`),
		},
		Execute: func(ctx context.Context, params json.RawMessage) ([]session.Block, error) {
			var in shellParams
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
			if err := checkCommand(in.Command); err != nil {
				return nil, err
			}

			timeoutMs := defaultShellTimeoutMs
			if in.TimeoutMs > 0 {
				timeoutMs = in.TimeoutMs
				if timeoutMs > maxShellTimeoutMs {
					timeoutMs = maxShellTimeoutMs
				}
			}

			res, err := sb.Exec(ctx, in.Command, in.WorkingDir, nil, timeoutMs)
			if err != nil {
				return nil, fmt.Errorf("exec: %w", err)
			}

			out := struct {
				Stdout   string `json:"stdout"`
				Stderr   string `json:"stderr"`
				ExitCode int    `json:"exit_code"`
				TimedOut bool   `json:"timed_out"`
			}{
				Stdout:   shared.Redact(truncateOutput(res.Stdout, maxShellOutput)),
				Stderr:   shared.Redact(truncateOutput(res.Stderr, maxShellOutput)),
				ExitCode: res.ExitCode,
				TimedOut: res.TimedOut,
			}
			return jsonBlocks(out)
		},
	}
}

// checkCommand blocks outright-injection operators and deny-listed leading
// tokens in every pipe/logical-operator segment of cmd.
func checkCommand(cmd string) error {
	trimmed := strings.TrimSpace(cmd)
	if trimmed == "" {
		return fmt.Errorf("empty command")
	}
	for _, op := range []string{";", "$(", "`"} {
		if strings.Contains(cmd, op) {
			return fmt.Errorf("command contains disallowed operator %q", op)
		}
	}
	for _, seg := range splitCommandSegments(cmd) {
		for _, tok := range strings.Fields(seg) {
			if _, blocked := denyList[tok]; blocked {
				return fmt.Errorf("command %q is on the deny list", tok)
			}
		}
	}
	return nil
}

func truncateOutput(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "\n... (truncated)"
}

// splitCommandSegments splits a command at pipe and logical operators,
// returning the individual command segments for deny-list checking.
func splitCommandSegments(cmd string) []string {
	var segments []string
	current := cmd
	for current != "" {
		minIdx := len(current)
		matchLen := 0
		for _, op := range []string{"||", "&&", "|"} {
			if idx := strings.Index(current, op); idx >= 0 && idx < minIdx {
				minIdx = idx
				matchLen = len(op)
			}
		}
		if matchLen > 0 {
			if seg := strings.TrimSpace(current[:minIdx]); seg != "" {
				segments = append(segments, seg)
			}
			current = current[minIdx+matchLen:]
		} else {
			if seg := strings.TrimSpace(current); seg != "" {
				segments = append(segments, seg)
			}
			break
		}
	}
	return segments
}
