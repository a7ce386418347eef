// Package session implements the Session Orchestrator: per-conversation
// serialization, history repair, prompt assembly, the model retry loop, and
// memory-flush/consolidation triggers.
package session

import (
	"context"
	"encoding/json"
	"time"
)

// Key is a session's opaque identity string, "<transport>:<scope>:<id>".
// Keys prefixed "subagent:" identify child runs; "cron:" identify
// scheduler-fired turns; "heartbeat:<transport>" identify proactive turns.
type Key string

// Role identifies who produced a SessionMessage.
type Role string

const (
	RoleUser              Role = "user"
	RoleAssistant         Role = "assistant"
	RoleToolUseOwner      Role = "tool_use_owner"
	RoleToolResultCarrier Role = "tool_result_carrier"
	RoleSystem            Role = "system"
)

// BlockKind tags the variant of a Block.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockImage      BlockKind = "image"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
)

// Block is one tagged content unit inside a Message.
type Block struct {
	Kind BlockKind `json:"kind"`

	// BlockText
	Text string `json:"text,omitempty"`

	// BlockImage
	ImageData     string `json:"image_data,omitempty"` // base64
	ImageMimeType string `json:"image_mime_type,omitempty"`

	// BlockToolUse
	CallID    string          `json:"call_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	// BlockToolResult
	ToolUseID string `json:"tool_use_id,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Message is one persisted turn in a session's log.
type Message struct {
	Role         Role      `json:"role"`
	Content      []Block   `json:"content"`
	StopReason   string    `json:"stop_reason,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TextContent concatenates every text block in the message.
func (m Message) TextContent() string {
	var out string
	for _, b := range m.Content {
		if b.Kind == BlockText {
			if out != "" {
				out += "\n"
			}
			out += b.Text
		}
	}
	return out
}

// Images returns every image block in the message.
func (m Message) Images() []Block {
	var out []Block
	for _, b := range m.Content {
		if b.Kind == BlockImage {
			out = append(out, b)
		}
	}
	return out
}

// InboundMessage is a conversation input handed to the orchestrator by a
// transport, the scheduler, the heartbeat driver, or a subagent spawn.
type InboundMessage struct {
	SessionKey  Key
	Text        string
	Images      []Block
	ChannelID   string
	UserID      string
	UserName    string
	IsGroup     bool
	ExtraPrompt string // subagent-mode system-prompt suffix, empty otherwise
	IsSubagent  bool
	Depth       int
}

// OutboundMessage is the orchestrator's response to one HandleMessage call.
type OutboundMessage struct {
	Text   string
	Images []Block
}

// NoReply is the sentinel outbound text that suppresses transport delivery.
const NoReply = "NO_REPLY"

// TurnRequest is what the orchestrator hands to a ModelClient for one model
// turn.
type TurnRequest struct {
	SystemPrompt string
	History      []Message
	Input        InboundMessage
	Tools        []ToolSpec
}

// ToolSpec describes one tool available to the model for this turn.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema
}

// TurnResult is the outcome of one ModelClient call.
type TurnResult struct {
	// Message is the model's final message for this turn (assistant role).
	// Its StopReason/ErrorMessage carry the outcome the OverflowResolver
	// inspects.
	Message Message
}

// ModelClient is the seam for the out-of-scope model endpoint. Exactly one
// production implementation (internal/model, genkit-backed) and one
// in-memory fake exist.
type ModelClient interface {
	GenerateTurn(ctx context.Context, req TurnRequest) (TurnResult, error)
	// Compact asks the model to summarize history into a single string.
	// Returns an error if compaction is unavailable or fails.
	Compact(ctx context.Context, history []Message) (string, error)
}

// ToolCall is one tool invocation the orchestrator's model loop dispatches
// mid-turn.
type ToolCall struct {
	CallID string
	Name   string
	Params json.RawMessage
}

// ToolResult is what a ToolDispatcher returns for one ToolCall, already run
// through the tool-result pipeline (§4.8).
type ToolResult struct {
	Content []Block
	IsError bool
}

// ToolDispatcher validates and executes one tool call.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, call ToolCall) ToolResult
	Specs() []ToolSpec
}

// Consolidator is invoked fire-and-forget after a turn to decide whether to
// extract long-term memory from the session log.
type Consolidator interface {
	MaybeConsolidate(ctx context.Context, key Key, messages []Message)
}
