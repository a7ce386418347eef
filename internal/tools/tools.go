// Package tools implements the Tool-call surface (spec §3 "Tool schema",
// §4.11 "Tool catalog"): the concrete session.ToolDispatcher wired to the
// workspace, the scheduler, the subagent registry, shell execution, and
// the web. Grounded on the teacher's internal/tools.Registry, generalized
// from genkit.DefineTool registration to the flat session.ToolSpec /
// session.ToolCall contract the rest of this module already speaks.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stewardhq/steward/internal/memory"
	"github.com/stewardhq/steward/internal/model"
	"github.com/stewardhq/steward/internal/scheduler"
	"github.com/stewardhq/steward/internal/session"
	"github.com/stewardhq/steward/internal/subagent"
	"github.com/stewardhq/steward/internal/toolpipe"
)

// maxResultChars bounds every tool result's text blocks before they reach
// the model, per the Tool-Result Pipeline (spec §4.8).
const maxResultChars = 8000

// Tool is one entry in the Registry: its schema plus the function that
// executes it. Execute returns blocks and an error; Dispatch turns a
// non-nil error into an IsError result rather than letting it escape.
type Tool struct {
	Spec    session.ToolSpec
	Execute func(ctx context.Context, params json.RawMessage) ([]session.Block, error)
}

// Registry is the session.ToolDispatcher implementation: a name-keyed set
// of Tools plus the collaborators individual tools close over (workspace,
// fact store, scheduler, subagent registry, shell sandbox, search
// providers). Mirrors the teacher's Registry struct; RegisterAll's genkit
// wiring is replaced by a flat map lookup in Dispatch.
type Registry struct {
	tools     map[string]Tool
	order     []string
	validator *model.ToolSchemaValidator
	logger    *slog.Logger
}

// Sandbox executes one shell command to completion or timeout. Satisfied
// by internal/sandbox's Docker-backed and host-backed implementations.
type Sandbox interface {
	Exec(ctx context.Context, command, workDir string, env map[string]string, timeoutMs int) (Result, error)
}

// Result is the sandboxed exec outcome shape spec §5 names:
// {stdout, stderr, exitCode, timedOut}.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Config bundles every optional collaborator a Registry's tools may need.
// A nil field simply omits the tools that depend on it, mirroring the
// teacher's "only register spawn/delegate/messaging if Store != nil"
// pattern in RegisterAll.
type Config struct {
	Workspace     *memory.Workspace
	Facts         *memory.FactStore
	Scheduler     *scheduler.Scheduler
	DefaultJobKey session.Key // session key new scheduled jobs fire against
	Subagents     *subagent.Registry
	ParentKey     session.Key // session key spawn_subagent attributes children to
	ParentChannel string
	Shell         Sandbox
	APIKeys       map[string]string
	PreferredWeb  string
	Logger        *slog.Logger
}

// NewRegistry builds a Registry with every tool cfg's collaborators
// support registered. Grounded on the teacher's NewRegistry + RegisterAll
// pair, collapsed into one constructor since there is no separate genkit
// registration step here.
func NewRegistry(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Registry{
		tools:     make(map[string]Tool),
		validator: model.NewToolSchemaValidator(),
		logger:    cfg.Logger,
	}

	r.register(fileTools(cfg.Workspace)...)
	r.register(shellTool(cfg.Shell))
	r.register(memoryTools(cfg.Workspace, cfg.Facts)...)
	r.register(searchTool(buildProviders(cfg.APIKeys, cfg.PreferredWeb)))
	r.register(fetchTool())
	r.register(browserToolDef())

	if cfg.Scheduler != nil {
		r.register(scheduleTools(cfg.Scheduler, cfg.DefaultJobKey)...)
	}
	if cfg.Subagents != nil {
		r.register(spawnTool(cfg.Subagents, cfg.ParentKey, cfg.ParentChannel))
	}

	return r
}

func (r *Registry) register(tools ...Tool) {
	for _, t := range tools {
		if t.Execute == nil {
			continue // collaborator not configured; tool stays unregistered
		}
		r.tools[t.Spec.Name] = t
		r.order = append(r.order, t.Spec.Name)
	}
}

// Specs implements session.ToolDispatcher.
func (r *Registry) Specs() []session.ToolSpec {
	specs := make([]session.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec)
	}
	return specs
}

// Dispatch implements session.ToolDispatcher. Unknown tool names and
// parameters that fail schema validation produce a structured error
// result rather than a crash (spec's tagged-action edge case note); every
// successful result is run through the Tool-Result Pipeline before it is
// handed back.
func (r *Registry) Dispatch(ctx context.Context, call session.ToolCall) session.ToolResult {
	t, ok := r.tools[call.Name]
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool %q", call.Name))
	}

	if err := r.validator.Validate(call.Name, t.Spec.Parameters, call.Params); err != nil {
		return errorResult(err.Error())
	}

	blocks, err := t.Execute(ctx, call.Params)
	if err != nil {
		r.logger.Warn("tool execution failed", "tool", call.Name, "call_id", call.CallID, "error", err)
		return errorResult(err.Error())
	}

	return session.ToolResult{Content: toolpipe.ProcessToolResult(blocks, maxResultChars)}
}

func errorResult(msg string) session.ToolResult {
	return session.ToolResult{
		Content: []session.Block{{Kind: session.BlockText, Text: "Error: " + msg}},
		IsError: true,
	}
}

// textBlocks is the convenience constructor most tools use to build a
// successful single-text-block result.
func textBlocks(text string) []session.Block {
	return []session.Block{{Kind: session.BlockText, Text: text}}
}

// jsonBlocks marshals v as indented JSON into a single text block, the
// shape most structured tool outputs (job lists, search results) take.
func jsonBlocks(v interface{}) ([]session.Block, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textBlocks(string(data)), nil
}
