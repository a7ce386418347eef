package model

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/anthropic"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/stewardhq/steward/internal/session"
)

// Client implements session.ModelClient against one genkit-backed provider.
// Grounded on engine/brain.go's GenkitBrain.
type Client struct {
	g        *genkit.Genkit
	name     string
	provider string
	modelID  string
	llmOn    bool

	dispatcher session.ToolDispatcher
	validator  *ToolSchemaValidator

	toolsMu  sync.Mutex
	toolRefs map[string]ai.ToolRef
}

// NewClient initializes genkit with the provider named in cfg and, if
// dispatcher is non-nil, registers one dynamic genkit tool per
// dispatcher.Specs() entry so the model can invoke it mid-turn.
func NewClient(ctx context.Context, cfg ProviderConfig, dispatcher session.ToolDispatcher) *Client {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "google"
	}
	modelID := strings.TrimSpace(cfg.Model)
	apiKey := strings.TrimSpace(cfg.APIKey)

	var g *genkit.Genkit
	llmOn := false

	switch provider {
	case "anthropic":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&anthropic.Anthropic{
				APIKey:  apiKey,
				BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			}))
			llmOn = true
		} else {
			g = genkit.Init(ctx)
			slog.Warn("model: anthropic api key missing, provider disabled", "provider", cfg.Name)
		}
	case "openai":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
				Provider: "openai",
				APIKey:   apiKey,
				BaseURL:  os.Getenv("OPENAI_BASE_URL"),
			}))
			llmOn = true
		} else {
			g = genkit.Init(ctx)
			slog.Warn("model: openai api key missing, provider disabled", "provider", cfg.Name)
		}
	case "openai_compatible":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
				Provider: cfg.OpenAICompatibleProvider,
				APIKey:   apiKey,
				BaseURL:  cfg.OpenAICompatibleBaseURL,
			}))
			llmOn = true
		} else {
			g = genkit.Init(ctx)
			slog.Warn("model: openai-compatible api key missing, provider disabled", "provider", cfg.Name)
		}
	case "openrouter":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
				Provider: "openrouter",
				APIKey:   apiKey,
				BaseURL:  "https://openrouter.ai/api/v1",
			}))
			llmOn = true
		} else {
			g = genkit.Init(ctx)
			slog.Warn("model: openrouter api key missing, provider disabled", "provider", cfg.Name)
		}
	case "google":
		if apiKey != "" {
			_ = os.Setenv("GEMINI_API_KEY", apiKey)
			g = genkit.Init(ctx,
				genkit.WithPlugins(&googlegenai.GoogleAI{}),
				genkit.WithDefaultModel("googleai/"+modelID),
			)
			llmOn = true
		} else {
			g = genkit.Init(ctx)
			slog.Warn("model: google api key missing, provider disabled", "provider", cfg.Name)
		}
	default:
		g = genkit.Init(ctx)
		slog.Warn("model: unknown provider, disabled", "provider", provider)
	}

	c := &Client{
		g:          g,
		name:       cfg.Name,
		provider:   provider,
		modelID:    modelID,
		llmOn:      llmOn,
		dispatcher: dispatcher,
		validator:  NewToolSchemaValidator(),
		toolRefs:   make(map[string]ai.ToolRef),
	}
	if dispatcher != nil {
		c.registerTools(dispatcher.Specs())
	}
	return c
}

func modelNameForProvider(provider, model string) string {
	model = strings.TrimSpace(model)
	switch provider {
	case "anthropic":
		return "anthropic/" + model
	case "openai":
		return "openai/" + model
	case "openai_compatible", "openrouter":
		return model
	default:
		return "googleai/" + model
	}
}

// registerTools defines one genkit tool per spec, dispatching through
// dispatcher.Dispatch after running schema validation. Grounded on
// tools/mcp_bridge.go's dynamic map[string]any-input DefineTool pattern,
// used here because tool specs are dynamic rather than fixed Go structs.
func (c *Client) registerTools(specs []session.ToolSpec) {
	c.toolsMu.Lock()
	defer c.toolsMu.Unlock()

	for _, spec := range specs {
		spec := spec
		ref := genkit.DefineTool(c.g, spec.Name, spec.Description,
			func(tc *ai.ToolContext, input map[string]any) (any, error) {
				paramsJSON, err := json.Marshal(input)
				if err != nil {
					return nil, fmt.Errorf("marshal params for %s: %w", spec.Name, err)
				}
				if err := c.validator.Validate(spec.Name, spec.Parameters, paramsJSON); err != nil {
					return nil, err
				}
				if c.dispatcher == nil {
					return nil, fmt.Errorf("tool %s: no dispatcher configured", spec.Name)
				}
				result := c.dispatcher.Dispatch(tc.Context, session.ToolCall{
					Name:   spec.Name,
					Params: paramsJSON,
				})
				if result.IsError {
					return nil, fmt.Errorf("tool %s failed: %s", spec.Name, blocksToText(result.Content))
				}
				return blocksToText(result.Content), nil
			},
		)
		c.toolRefs[spec.Name] = ref
	}
}

func blocksToText(blocks []session.Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Kind == session.BlockText {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// GenerateTurn implements session.ModelClient.
func (c *Client) GenerateTurn(ctx context.Context, req session.TurnRequest) (session.TurnResult, error) {
	if !c.llmOn {
		return session.TurnResult{Message: session.Message{
			Role:    session.RoleAssistant,
			Content: []session.Block{{Kind: session.BlockText, Text: "I can answer with full reasoning once a model provider is configured."}},
		}}, nil
	}

	opts := []ai.GenerateOption{ai.WithModelName(modelNameForProvider(c.provider, c.modelID))}
	if req.SystemPrompt != "" {
		opts = append(opts, ai.WithSystem(strings.ReplaceAll(req.SystemPrompt, "%", "%%")))
	}
	if msgs := toGenkitMessages(req.History); len(msgs) > 0 {
		opts = append(opts, ai.WithMessages(msgs...))
	}
	opts = append(opts, ai.WithPrompt(req.Input.Text))

	var refs []ai.ToolRef
	c.toolsMu.Lock()
	for _, spec := range req.Tools {
		if ref, ok := c.toolRefs[spec.Name]; ok {
			refs = append(refs, ref)
		}
	}
	c.toolsMu.Unlock()
	if len(refs) > 0 {
		opts = append(opts, ai.WithTools(refs...), ai.WithMaxTurns(6))
	}

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return session.TurnResult{Message: session.Message{
			Role:         session.RoleAssistant,
			StopReason:   "error",
			ErrorMessage: err.Error(),
		}}, err
	}

	return session.TurnResult{Message: session.Message{
		Role:    session.RoleAssistant,
		Content: []session.Block{{Kind: session.BlockText, Text: resp.Text()}},
	}}, nil
}

// Compact implements session.ModelClient by asking the model to summarize
// history into one string, grounded on engine/compactor.go's compaction
// turn shape.
func (c *Client) Compact(ctx context.Context, history []session.Message) (string, error) {
	if !c.llmOn {
		return "", fmt.Errorf("model: compaction unavailable, no provider configured")
	}
	msgs := toGenkitMessages(history)
	if len(msgs) == 0 {
		return "", nil
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(modelNameForProvider(c.provider, c.modelID)),
		ai.WithSystem("Summarize the conversation so far into a compact block preserving every fact, decision, and open task a continuation would need. Do not add commentary."),
		ai.WithMessages(msgs...),
		ai.WithPrompt("Summarize the conversation above."),
	}
	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return "", fmt.Errorf("compact: %w", err)
	}
	return resp.Text(), nil
}

// toGenkitMessages converts session history into genkit messages. Grounded
// on engine/brain.go's historyToMessages.
func toGenkitMessages(history []session.Message) []*ai.Message {
	var msgs []*ai.Message
	for _, m := range history {
		var role ai.Role
		switch m.Role {
		case session.RoleUser:
			role = ai.RoleUser
		case session.RoleAssistant:
			role = ai.RoleModel
		case session.RoleSystem:
			role = ai.RoleSystem
		case session.RoleToolResultCarrier, session.RoleToolUseOwner:
			role = ai.RoleTool
		default:
			continue
		}
		text := m.TextContent()
		if text == "" {
			continue
		}
		msgs = append(msgs, &ai.Message{Role: role, Content: []*ai.Part{ai.NewTextPart(text)}})
	}
	return msgs
}
