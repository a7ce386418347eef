package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/stewardhq/steward/internal/bus"
	"github.com/stewardhq/steward/internal/session"
	"github.com/stewardhq/steward/internal/shared"
	"github.com/stewardhq/steward/internal/store"
)

const defaultConsolidationThreshold = 50

var (
	memoryMarkerRe  = regexp.MustCompile(`(?s)===MEMORY===\s*(.*?)\s*===END_MEMORY===`)
	historyMarkerRe = regexp.MustCompile(`(?s)===HISTORY===\s*(.*?)\s*===END_HISTORY===`)
)

// ConsolidationState is the per-session progress marker (spec §3): how many
// messages had already been folded into MEMORY.md/HISTORY.md as of the last
// successful run.
type ConsolidationState struct {
	LastConsolidatedMessageCount int `json:"last_consolidated_message_count"`
}

// ConsolidationStateStore loads/saves one session's ConsolidationState.
type ConsolidationStateStore struct {
	paths store.Paths
}

// NewConsolidationStateStore creates a ConsolidationStateStore rooted at paths.
func NewConsolidationStateStore(paths store.Paths) *ConsolidationStateStore {
	return &ConsolidationStateStore{paths: paths}
}

func (s *ConsolidationStateStore) Load(key session.Key) (ConsolidationState, error) {
	path := s.paths.ConsolidationFile(shared.SafeSessionKey(string(key)))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ConsolidationState{}, nil
		}
		return ConsolidationState{}, fmt.Errorf("memory: read consolidation state: %w", err)
	}
	var st ConsolidationState
	if err := json.Unmarshal(data, &st); err != nil {
		return ConsolidationState{}, fmt.Errorf("memory: parse consolidation state: %w", err)
	}
	return st, nil
}

func (s *ConsolidationStateStore) Save(key session.Key, st ConsolidationState) error {
	path := s.paths.ConsolidationFile(shared.SafeSessionKey(string(key)))
	return store.WriteJSONAtomic(path, st)
}

// Consolidator implements session.Consolidator (spec §4.5): once a session
// accumulates enough new messages, it asks the model to extract long-term
// facts and notable events, replacing MEMORY.md and appending to
// HISTORY.md.
type Consolidator struct {
	Client    session.ModelClient
	Workspace *Workspace
	States    *ConsolidationStateStore
	Threshold int // default 50
	Enabled   bool
	Logger    *slog.Logger
	Bus       *bus.Bus
}

// NewConsolidator creates a Consolidator. Threshold defaults to 50 when <= 0.
func NewConsolidator(client session.ModelClient, ws *Workspace, states *ConsolidationStateStore, enabled bool, logger *slog.Logger, b *bus.Bus) *Consolidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consolidator{
		Client:    client,
		Workspace: ws,
		States:    states,
		Threshold: defaultConsolidationThreshold,
		Enabled:   enabled,
		Logger:    logger,
		Bus:       b,
	}
}

// MaybeConsolidate runs the consolidation procedure if enough new messages
// have accumulated since the last successful run. All failures are logged
// and swallowed: lastConsolidatedMessageCount only advances on a
// successful parse and write, per spec §4.5.
func (c *Consolidator) MaybeConsolidate(ctx context.Context, key session.Key, messages []session.Message) {
	if !c.Enabled {
		return
	}

	state, err := c.States.Load(key)
	if err != nil {
		c.Logger.Warn("consolidation: load state failed", "session_key", key, "error", err)
		return
	}

	threshold := c.Threshold
	if threshold <= 0 {
		threshold = defaultConsolidationThreshold
	}
	newMessages := len(messages) - state.LastConsolidatedMessageCount
	if newMessages < threshold {
		c.publish(bus.TopicConsolidationSkipped, bus.ConsolidationEvent{SessionKey: string(key), NewMessages: newMessages})
		return
	}

	existingMemory, _ := c.Workspace.Read("memory/MEMORY.md")

	prompt := buildConsolidationPrompt(existingMemory, messages)
	result, err := c.Client.GenerateTurn(ctx, session.TurnRequest{
		SystemPrompt: consolidationSystemPrompt,
		Input:        session.InboundMessage{Text: prompt},
	})
	if err != nil {
		c.Logger.Warn("consolidation: model call failed", "session_key", key, "error", err)
		c.publish(bus.TopicConsolidationFailed, bus.ConsolidationEvent{SessionKey: string(key), Error: err.Error()})
		return
	}

	reply := result.Message.TextContent()
	memoryMatch := memoryMarkerRe.FindStringSubmatch(reply)
	historyMatch := historyMarkerRe.FindStringSubmatch(reply)
	if memoryMatch == nil && historyMatch == nil {
		c.Logger.Warn("consolidation: reply missing both marker pairs", "session_key", key)
		c.publish(bus.TopicConsolidationFailed, bus.ConsolidationEvent{SessionKey: string(key), Error: "no marker pairs found in reply"})
		return
	}

	if memoryMatch != nil {
		if err := c.Workspace.Write("memory/MEMORY.md", strings.TrimSpace(memoryMatch[1])+"\n"); err != nil {
			c.Logger.Warn("consolidation: write MEMORY.md failed", "session_key", key, "error", err)
			c.publish(bus.TopicConsolidationFailed, bus.ConsolidationEvent{SessionKey: string(key), Error: err.Error()})
			return
		}
	}
	if historyMatch != nil {
		if err := c.appendHistory(historyMatch[1]); err != nil {
			c.Logger.Warn("consolidation: append HISTORY.md failed", "session_key", key, "error", err)
			c.publish(bus.TopicConsolidationFailed, bus.ConsolidationEvent{SessionKey: string(key), Error: err.Error()})
			return
		}
	}

	state.LastConsolidatedMessageCount = len(messages)
	if err := c.States.Save(key, state); err != nil {
		c.Logger.Warn("consolidation: persist state failed", "session_key", key, "error", err)
		return
	}
	c.publish(bus.TopicConsolidationRan, bus.ConsolidationEvent{SessionKey: string(key), NewMessages: newMessages})
}

// appendHistory prefixes each non-blank line of block with an RFC3339
// timestamp and appends it to HISTORY.md (spec §3: "one timestamped line
// per event").
func (c *Consolidator) appendHistory(block string) error {
	lines := strings.Split(strings.TrimSpace(block), "\n")
	now := time.Now().UTC().Format(time.RFC3339)
	var b strings.Builder
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", now, line)
	}
	if b.Len() == 0 {
		return nil
	}
	return c.Workspace.Append("memory/HISTORY.md", b.String())
}

func (c *Consolidator) publish(topic string, payload interface{}) {
	if c.Bus != nil {
		c.Bus.Publish(topic, payload)
	}
}

const consolidationSystemPrompt = `You are extracting long-term memory from a conversation transcript. Reply with exactly two marker blocks:

===MEMORY===
<the complete, merged set of durable facts worth remembering long-term, as markdown bullet points; merge the existing memory below with anything new from the transcript>
===END_MEMORY===

===HISTORY===
<zero or more new notable events from this transcript, one per line, no timestamps (timestamps are added automatically)>
===END_HISTORY===

Omit trivial or already-recorded facts. If nothing new belongs in a section, leave its body empty but keep both marker pairs.`

func buildConsolidationPrompt(existingMemory string, messages []session.Message) string {
	var b strings.Builder
	b.WriteString("Existing MEMORY.md:\n")
	if strings.TrimSpace(existingMemory) == "" {
		b.WriteString("(none yet)\n")
	} else {
		b.WriteString(existingMemory)
		b.WriteString("\n")
	}
	b.WriteString("\nTranscript:\n")
	for _, m := range messages {
		text := m.TextContent()
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, text)
	}
	return b.String()
}
