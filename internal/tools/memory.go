package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stewardhq/steward/internal/memory"
	"github.com/stewardhq/steward/internal/session"
)

type memoryFileReadParams struct {
	Path string `json:"path"`
}

type memoryFileWriteParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append,omitempty"`
}

type memoryFileSearchParams struct {
	Query string `json:"query"`
}

// memoryAction tags the structured-fact variant of the memory tool
// (spec's MemoryAction{Store|Search|List|Delete|Update}).
type memoryActionParams struct {
	Action  string   `json:"action"`
	Content string   `json:"content,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	ID      string   `json:"id,omitempty"`
	Query   string   `json:"query,omitempty"`
}

// memoryTools returns the raw-file memory_read/memory_write/memory_search
// tools (rooted at ws, the whole workspace, not a memory/-scoped
// subdirectory) plus the structured "memory" fact tool (backed by facts).
// Both concepts coexist per the teacher's own split between its workspace
// tools (memory.go) and structured task/fact storage.
func memoryTools(ws *memory.Workspace, facts *memory.FactStore) []Tool {
	var out []Tool
	if ws != nil {
		out = append(out, memoryFileTools(ws)...)
	}
	if facts != nil {
		out = append(out, memoryFactTool(facts))
	}
	return out
}

func memoryFileTools(ws *memory.Workspace) []Tool {
	readTool := Tool{
		Spec: session.ToolSpec{
			Name:        "memory_read",
			Description: "Read a file from the agent's memory workspace. Path is relative to the workspace root.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"path": {"type": "string"}},
				"required": ["path"]
			}`),
		},
		Execute: func(ctx context.Context, params json.RawMessage) ([]session.Block, error) {
			var in memoryFileReadParams
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

	writeTool := Tool{
		Spec: session.ToolSpec{
			Name:        "memory_write",
			Description: "Write or append content to a file in the agent's memory workspace. Set append=true to append instead of overwrite.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string"},
					"content": {"type": "string"},
					"append": {"type": "boolean"}
				},
				"required": ["path", "content"]
			}`),
		},
		Execute: func(ctx context.Context, params json.RawMessage) ([]session.Block, error) {
			var in memoryFileWriteParams
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
			var err error
			if in.Append {
				err = ws.Append(in.Path, in.Content)
			} else {
				err = ws.Write(in.Path, in.Content)
			}
			if err != nil {
				return nil, err
			}
			return textBlocks(fmt.Sprintf("wrote %s", in.Path)), nil
		},
	}

	searchTool := Tool{
		Spec: session.ToolSpec{
			Name:        "memory_search",
			Description: "Search the agent's memory workspace for files containing the query string. Returns matching lines with file paths and line numbers.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"query": {"type": "string"}},
				"required": ["query"]
			}`),
		},
		Execute: func(ctx context.Context, params json.RawMessage) ([]session.Block, error) {
			var in memoryFileSearchParams
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
			hits, err := ws.Search(in.Query)
			if err != nil {
				return nil, err
			}
			if hits == nil {
				hits = []memory.SearchHit{}
			}
			return jsonBlocks(hits)
		},
	}

	return []Tool{readTool, writeTool, searchTool}
}

// memoryFactTool is the structured "memory" tool: one action field
// dispatching to FactStore's Add/Search/List/Remove/Update. Unknown
// actions produce a structured error rather than a crash.
func memoryFactTool(facts *memory.FactStore) Tool {
	return Tool{
		Spec: session.ToolSpec{
			Name:        "memory",
			Description: "Manage the agent's structured long-term facts. action must be one of store, search, list, delete, update.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"action": {"type": "string", "enum": ["store", "search", "list", "delete", "update"]},
					"content": {"type": "string"},
					"tags": {"type": "array", "items": {"type": "string"}},
					"id": {"type": "string"},
					"query": {"type": "string"}
				},
				"required": ["action"]
			}`),
		},
		Execute: func(ctx context.Context, params json.RawMessage) ([]session.Block, error) {
			var in memoryActionParams
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}

			switch in.Action {
			case "store":
				if in.Content == "" {
					return nil, fmt.Errorf("store requires content")
				}
				f, err := facts.Add(ctx, in.Content, in.Tags)
				if err != nil {
					return nil, err
				}
				return jsonBlocks(f)
			case "search":
				hits, err := facts.Search(ctx, in.Query)
				if err != nil {
					return nil, err
				}
				return jsonBlocks(hits)
			case "list":
				all, err := facts.List(ctx)
				if err != nil {
					return nil, err
				}
				return jsonBlocks(all)
			case "delete":
				if in.ID == "" {
					return nil, fmt.Errorf("delete requires id")
				}
				if err := facts.Remove(ctx, in.ID); err != nil {
					return nil, err
				}
				return textBlocks(fmt.Sprintf("deleted %s", in.ID)), nil
			case "update":
				if in.ID == "" {
					return nil, fmt.Errorf("update requires id")
				}
				f, err := facts.Update(ctx, in.ID, in.Content, in.Tags)
				if err != nil {
					return nil, err
				}
				return jsonBlocks(f)
			default:
				return nil, fmt.Errorf("unknown memory action %q", in.Action)
			}
		},
	}
}
