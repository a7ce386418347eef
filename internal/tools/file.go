package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stewardhq/steward/internal/memory"
	"github.com/stewardhq/steward/internal/session"
)

type readFileParams struct {
	Path string `json:"path"`
}

type writeFileParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type listDirParams struct {
	Path string `json:"path"`
}

// fileTools returns the read_file/write_file/list_dir entries, all confined
// to ws's sandboxed root. Grounded on the teacher's registerFileTools, with
// path confinement delegated to memory.Workspace.resolve rather than the
// teacher's standalone isPathAllowed (the policy/audit gating it layered on
// top has no analog in this module's scope).
func fileTools(ws *memory.Workspace) []Tool {
	if ws == nil {
		return nil
	}

	readFile := Tool{
		Spec: session.ToolSpec{
			Name:        "read_file",
			Description: "Read the contents of a file in the agent's workspace. Maximum 1MB.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"path": {"type": "string", "description": "Path relative to the workspace root."}},
				"required": ["path"]
			}`),
		},
		Execute: func(ctx context.Context, params json.RawMessage) ([]session.Block, error) {
			var in readFileParams
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
			content, err := ws.Read(in.Path)
			if err != nil {
				return nil, err
			}
			return textBlocks(content), nil
		},
	}

	writeFile := Tool{
		Spec: session.ToolSpec{
			Name:        "write_file",
			Description: "Write content to a file in the agent's workspace, overwriting it atomically. Creates parent directories as needed.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "Path relative to the workspace root."},
					"content": {"type": "string"}
				},
				"required": ["path", "content"]
			}`),
		},
		Execute: func(ctx context.Context, params json.RawMessage) ([]session.Block, error) {
			var in writeFileParams
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
			if err := ws.Write(in.Path, in.Content); err != nil {
				return nil, err
			}
			return textBlocks(fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path)), nil
		},
	}

	listDir := Tool{
		Spec: session.ToolSpec{
			Name:        "list_dir",
			Description: "List the contents of a directory in the agent's workspace. Maximum 500 entries.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"path": {"type": "string", "description": "Path relative to the workspace root. Defaults to the root."}}
			}`),
		},
		Execute: func(ctx context.Context, params json.RawMessage) ([]session.Block, error) {
			var in listDirParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &in); err != nil {
					return nil, fmt.Errorf("invalid params: %w", err)
				}
			}
			if in.Path == "" {
				in.Path = "."
			}
			entries, err := ws.List(in.Path)
			if err != nil {
				return nil, err
			}
			return jsonBlocks(entries)
		},
	}

	return []Tool{readFile, writeFile, listDir}
}
