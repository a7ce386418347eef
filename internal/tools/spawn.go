package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stewardhq/steward/internal/session"
	"github.com/stewardhq/steward/internal/subagent"
)

type spawnParams struct {
	Task  string `json:"task"`
	Label string `json:"label,omitempty"`
}

type spawnOutput struct {
	RunID           string `json:"run_id"`
	ChildSessionKey string `json:"child_session_key"`
}

// spawnTool returns the spawn_subagent tool: fan out a background reasoning
// session bounded by the registry's depth/concurrency limits (spec §4.4).
// Grounded on the teacher's registerSpawn/spawnTask, generalized from
// persistence.Store subtask creation to subagent.Registry.Spawn.
func spawnTool(reg *subagent.Registry, parentKey session.Key, parentChannel string) Tool {
	return Tool{
		Spec: session.ToolSpec{
			Name:        "spawn_subagent",
			Description: "Spawn a background subagent session to work on a task independently, reporting its result back when done. Subject to depth and concurrency limits; may be rejected.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"task": {"type": "string", "description": "the task for the subagent to perform"},
					"label": {"type": "string", "description": "short human-readable label for the subagent run"}
				},
				"required": ["task"]
			}`),
		},
		Execute: func(ctx context.Context, params json.RawMessage) ([]session.Block, error) {
			var in spawnParams
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
			if in.Task == "" {
				return nil, fmt.Errorf("spawn_subagent: task must be non-empty")
			}

			res, err := reg.Spawn(ctx, subagent.SpawnRequest{
				Task:             in.Task,
				ParentSessionKey: parentKey,
				ParentChannelID:  parentChannel,
				Label:            in.Label,
			})
			if err != nil {
				var rejected *subagent.RejectedError
				if errors.As(err, &rejected) {
					return nil, fmt.Errorf("spawn_subagent rejected: %s", rejected.Reason)
				}
				return nil, fmt.Errorf("spawn_subagent: %w", err)
			}

			return jsonBlocks(spawnOutput{
				RunID:           res.RunID,
				ChildSessionKey: string(res.ChildSessionKey),
			})
		},
	}
}
