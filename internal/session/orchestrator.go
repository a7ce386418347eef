package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stewardhq/steward/internal/bus"
	"github.com/stewardhq/steward/internal/shared"
	"github.com/stewardhq/steward/internal/store"
)

// Config holds the orchestrator's tunables; defaults match spec §4.1/§4.7.
type Config struct {
	MaxUserTurns int
	MaxRetries   int // retry loop attempts, default 3 (attempts 0..2)
	TurnTimeout  time.Duration
	Flush        FlushBudget
	MaxDepth     int
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxUserTurns: 100,
		MaxRetries:   3,
		TurnTimeout:  5 * time.Minute,
		Flush:        DefaultFlushBudget(),
		MaxDepth:     2,
	}
}

// PromptAssembler supplies the non-history ingredients of the system prompt
// for a given inbound message (bootstrap context, memory, skills, etc).
// Kept as a function seam so the orchestrator does not need direct
// dependencies on the config/memory/skills packages.
type PromptAssembler func(ctx context.Context, in InboundMessage) PromptInputs

// Orchestrator drives HandleMessage per spec §4.1.
type Orchestrator struct {
	paths        store.Paths
	client       ModelClient
	dispatcher   ToolDispatcher
	consolidator Consolidator
	assemble     PromptAssembler
	bus          *bus.Bus
	logger       *slog.Logger
	cfg          Config

	locksMu sync.Mutex
	locks   map[Key]*sync.Mutex

	cancelsMu sync.Mutex
	cancels   map[Key]context.CancelFunc
}

// New creates an Orchestrator.
func New(paths store.Paths, client ModelClient, dispatcher ToolDispatcher, consolidator Consolidator, assemble PromptAssembler, b *bus.Bus, logger *slog.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		paths:        paths,
		client:       client,
		dispatcher:   dispatcher,
		consolidator: consolidator,
		assemble:     assemble,
		bus:          b,
		logger:       logger,
		cfg:          cfg,
		locks:        make(map[Key]*sync.Mutex),
		cancels:      make(map[Key]context.CancelFunc),
	}
}

// Stop cancels the in-flight run for key, if any.
func (o *Orchestrator) Stop(key Key) {
	o.cancelsMu.Lock()
	defer o.cancelsMu.Unlock()
	if cancel, ok := o.cancels[key]; ok {
		cancel()
	}
}

func (o *Orchestrator) sessionLock(key Key) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	l, ok := o.locks[key]
	if !ok {
		l = &sync.Mutex{}
		o.locks[key] = l
	}
	return l
}

// HandleMessage implements the per-run procedure in spec §4.1.
func (o *Orchestrator) HandleMessage(ctx context.Context, in InboundMessage) (*OutboundMessage, error) {
	lock := o.sessionLock(in.SessionKey)
	lock.Lock()
	defer lock.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	runCtx = shared.WithSessionKey(runCtx, string(in.SessionKey))
	runCtx = shared.WithTraceID(runCtx, shared.NewTraceID())
	defer cancel()

	o.cancelsMu.Lock()
	o.cancels[in.SessionKey] = cancel
	o.cancelsMu.Unlock()
	defer func() {
		o.cancelsMu.Lock()
		delete(o.cancels, in.SessionKey)
		o.cancelsMu.Unlock()
	}()

	o.publish(bus.TopicTurnStarted, bus.TurnEvent{SessionKey: string(in.SessionKey)})

	sessionPath := o.paths.SessionFile(shared.SafeSessionKey(string(in.SessionKey)))
	history, err := RepairSessionFile(sessionPath)
	if err != nil {
		o.logger.Warn("session file repair failed, continuing unrepaired", "session_key", in.SessionKey, "error", err)
	}

	if ShouldFlush(history, o.cfg.Flush) {
		o.runSilentFlushTurn(runCtx, in.SessionKey, sessionPath)
		if refreshed, err := RepairSessionFile(sessionPath); err == nil {
			history = refreshed
		}
	}

	history = SanitizeHistory(history, o.cfg.MaxUserTurns)

	userMsg := Message{Role: RoleUser, Content: inboundBlocks(in), CreatedAt: time.Now().UTC()}
	if err := AppendMessage(sessionPath, userMsg); err != nil {
		o.logger.Warn("append user message failed", "session_key", in.SessionKey, "error", err)
	}
	history = append(history, userMsg)

	var systemPrompt string
	if o.assemble != nil {
		systemPrompt = AssembleSystemPrompt(o.withInput(o.assemble(runCtx, in), in))
	}

	resolver := &OverflowResolver{Client: o.client, SessionPath: sessionPath}

	var specs []ToolSpec
	if o.dispatcher != nil {
		specs = o.dispatcher.Specs()
	}

	for attempt := 0; attempt < o.cfg.MaxRetries; attempt++ {
		select {
		case <-runCtx.Done():
			return o.stoppedResponse(in.SessionKey), nil
		default:
		}

		result, turnErr := o.client.GenerateTurn(runCtx, TurnRequest{
			SystemPrompt: systemPrompt,
			History:      history,
			Input:        in,
			Tools:        specs,
		})

		if runCtx.Err() != nil {
			return o.stoppedResponse(in.SessionKey), nil
		}

		if turnErr == nil && result.Message.StopReason != "error" {
			out := o.finish(sessionPath, in.SessionKey, history, result.Message)
			return out, nil
		}

		o.publish(bus.TopicTurnRetrying, bus.TurnEvent{SessionKey: string(in.SessionKey), Attempt: attempt, Error: errString(turnErr)})

		outcome := resolver.Resolve(runCtx, attempt, turnErr, result.Message.ErrorMessage, history)
		if outcome.Respond {
			o.publish(bus.TopicTurnFailed, bus.TurnEvent{SessionKey: string(in.SessionKey), Attempt: attempt, Error: outcome.Text})
			go o.maybeConsolidate(in.SessionKey, history)
			return &OutboundMessage{Text: outcome.Text}, nil
		}

		if outcome.RetryMs > 0 {
			select {
			case <-time.After(time.Duration(outcome.RetryMs) * time.Millisecond):
			case <-runCtx.Done():
				return o.stoppedResponse(in.SessionKey), nil
			}
		}
	}

	go o.maybeConsolidate(in.SessionKey, history)
	return &OutboundMessage{Text: "I was unable to complete this turn after multiple attempts."}, nil
}

func (o *Orchestrator) finish(sessionPath string, key Key, history []Message, final Message) *OutboundMessage {
	if err := AppendMessage(sessionPath, final); err != nil {
		o.logger.Warn("append assistant message failed", "session_key", key, "error", err)
	}
	history = append(history, final)

	text := final.TextContent()
	images := final.Images()
	if text == "" && len(images) > 0 {
		text = "(no text response)"
	}

	o.publish(bus.TopicTurnCompleted, bus.TurnEvent{SessionKey: string(key)})
	go o.maybeConsolidate(key, history)

	return &OutboundMessage{Text: text, Images: images}
}

func (o *Orchestrator) stoppedResponse(key Key) *OutboundMessage {
	o.publish(bus.TopicTurnStopped, bus.TurnEvent{SessionKey: string(key)})
	return &OutboundMessage{Text: "stopped"}
}

func (o *Orchestrator) runSilentFlushTurn(ctx context.Context, key Key, sessionPath string) {
	flushIn := InboundMessage{SessionKey: key, Text: FlushPrompt}
	_, err := o.client.GenerateTurn(ctx, TurnRequest{Input: flushIn})
	if err != nil {
		o.logger.Warn("memory flush turn failed", "session_key", key, "error", err)
		return
	}
}

func (o *Orchestrator) maybeConsolidate(key Key, history []Message) {
	if o.consolidator == nil {
		return
	}
	o.consolidator.MaybeConsolidate(context.Background(), key, history)
}

func (o *Orchestrator) publish(topic string, payload interface{}) {
	if o.bus != nil {
		o.bus.Publish(topic, payload)
	}
}

func (o *Orchestrator) withInput(p PromptInputs, in InboundMessage) PromptInputs {
	p.Input = in
	return p
}

func inboundBlocks(in InboundMessage) []Block {
	blocks := []Block{{Kind: BlockText, Text: in.Text}}
	blocks = append(blocks, in.Images...)
	return blocks
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
