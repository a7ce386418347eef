package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/stewardhq/steward/internal/bus"
	"github.com/stewardhq/steward/internal/config"
	"github.com/stewardhq/steward/internal/heartbeat"
	"github.com/stewardhq/steward/internal/memory"
	"github.com/stewardhq/steward/internal/model"
	"github.com/stewardhq/steward/internal/otelx"
	"github.com/stewardhq/steward/internal/sandbox"
	"github.com/stewardhq/steward/internal/scheduler"
	"github.com/stewardhq/steward/internal/session"
	"github.com/stewardhq/steward/internal/shared"
	"github.com/stewardhq/steward/internal/skills"
	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/internal/subagent"
	"github.com/stewardhq/steward/internal/telemetry"
	"github.com/stewardhq/steward/internal/tools"
	"github.com/stewardhq/steward/internal/transport"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.5-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

DAEMON MODE (default):
  %s                          Start the daemon: scheduler, heartbeat, and
                              any enabled transport, until interrupted.
  %s daemon                  Same, via the explicit subcommand form.

SUBCOMMANDS:
  %s skill <action>           Manage skills (install, list, remove, update, info)
  %s status [--watch]         Show scheduler/subagent/heartbeat state

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  STEWARD_HOME             Data directory (default: ~/.steward)
  GOOGLE_API_KEY / ANTHROPIC_API_KEY / OPENAI_API_KEY
  BRAVE_API_KEY / PERPLEXITY_API_KEY
  TELEGRAM_TOKEN

EXAMPLES:
  Run the daemon:         %s
  Install a skill:        %s skill install https://github.com/user/repo
  Check status:           %s status --watch
`, os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	loadDotEnv(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args := os.Args[1:]; len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			os.Exit(0)
		case "skill":
			os.Exit(runSkillCommand(ctx, args[1:]))
		case "status":
			os.Exit(runStatusCommand(ctx, args[1:]))
		case "daemon":
			mode, err := parseDaemonSubcommandArgs(args[1:])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			if mode == daemonSubcommandHelp {
				printDaemonSubcommandUsage(os.Stdout)
				return
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", args[0])
			printUsage()
			os.Exit(2)
		}
	}

	run(ctx)
}

// toolDispatcherHolder breaks the construction cycle between the
// orchestrator (needs a session.ToolDispatcher) and the tools.Registry
// (needs the scheduler/subagent registry, which need the orchestrator):
// it is handed to session.New/model.NewFailoverClient empty and populated
// once the real Registry exists.
type toolDispatcherHolder struct {
	mu    sync.RWMutex
	inner session.ToolDispatcher
}

func (h *toolDispatcherHolder) set(d session.ToolDispatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inner = d
}

func (h *toolDispatcherHolder) Dispatch(ctx context.Context, call session.ToolCall) session.ToolResult {
	h.mu.RLock()
	d := h.inner
	h.mu.RUnlock()
	if d == nil {
		return session.ToolResult{IsError: true, Content: []session.Block{{Kind: session.BlockText, Text: "tools not ready yet"}}}
	}
	return d.Dispatch(ctx, call)
}

func (h *toolDispatcherHolder) Specs() []session.ToolSpec {
	h.mu.RLock()
	d := h.inner
	h.mu.RUnlock()
	if d == nil {
		return nil
	}
	return d.Specs()
}

func run(ctx context.Context) {
	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, cfg.LogQuiet)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded")

	if cfg.NeedsGenesis {
		logger.Warn("no config.yaml found under STEWARD_HOME; running with built-in defaults", "home", cfg.HomeDir)
	}

	otelProvider, err := otelx.Init(ctx, otelx.Config{
		Enabled:     cfg.Otel.Enabled,
		Exporter:    cfg.Otel.Exporter,
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.Otel.ServiceName,
		SampleRate:  cfg.Otel.SampleRate,
	})
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(ctx)
	if _, err := otelx.NewMetrics(otelProvider.Meter); err != nil {
		logger.Warn("otel metrics registration failed", "error", err)
	}

	eventBus := bus.New()

	paths, err := store.NewPaths(cfg.HomeDir)
	if err != nil {
		fatalStartup(logger, "E_STORE_PATHS", err)
	}

	workspace, err := memory.NewWorkspace(paths.WorkspaceDir)
	if err != nil {
		fatalStartup(logger, "E_WORKSPACE_INIT", err)
	}
	facts := memory.NewFactStore(paths.MemoryStorePath())
	consolidationStates := memory.NewConsolidationStateStore(paths)

	dispatcher := &toolDispatcherHolder{}
	modelClient := model.NewFailoverClient(ctx, buildModelConfig(cfg), dispatcher)

	consolidator := memory.NewConsolidator(modelClient, workspace, consolidationStates, cfg.Memory.ConsolidationEnabled, logger, eventBus)
	if cfg.Memory.ConsolidationThreshold > 0 {
		consolidator.Threshold = cfg.Memory.ConsolidationThreshold
	}

	var activeTransports []transport.Transport
	deliverToChannel := func(ctx context.Context, channelID, text string, images []session.Block) {
		if channelID == "" {
			return
		}
		for _, t := range activeTransports {
			if err := t.SendToChannel(ctx, channelID, text, images); err != nil {
				logger.Warn("deliver to channel failed", "transport", t.Name(), "channel", channelID, "error", err)
			}
		}
	}

	loader := skills.NewLoader(paths.SkillsDir(), filepath.Join(cfg.HomeDir, "skills"), filepath.Join(cfg.HomeDir, "installed"), logger)
	assemble := func(ctx context.Context, in session.InboundMessage) session.PromptInputs {
		return buildPromptInputs(ctx, loader, facts, paths, in)
	}

	orchestrator := session.New(paths, modelClient, dispatcher, consolidator, assemble, eventBus, logger, session.DefaultConfig())

	sched := scheduler.New(scheduler.Config{
		Store:                  scheduler.NewFileStore(paths.CronStorePath()),
		OnFire:                 buildOnFire(orchestrator, deliverToChannel),
		Logger:                 logger,
		Bus:                    eventBus,
		MaxConcurrency:         cfg.Scheduler.MaxConcurrency,
		MaxRetries:             cfg.Scheduler.MaxRetries,
		RetryBaseDelay:         time.Duration(cfg.Scheduler.RetryBaseDelayMs) * time.Millisecond,
		MaxConsecutiveFailures: cfg.Scheduler.MaxConsecutiveFailures,
		JobTimeout:             time.Duration(cfg.Scheduler.FiringTimeoutSeconds) * time.Second,
		SafetyTickInterval:     time.Duration(cfg.Scheduler.SafetyTickSeconds) * time.Second,
	})
	if err := sched.Start(ctx); err != nil {
		fatalStartup(logger, "E_SCHEDULER_START", err)
	}
	defer sched.Stop()

	subagents := subagent.New(subagent.Config{
		Store:        subagent.NewFileStore(paths.SubagentRegistryPath()),
		Orchestrator: orchestrator,
		Announcer: &subagent.OrchestratorAnnouncer{
			Orchestrator: orchestrator,
			Deliver:      func(ctx context.Context, channelID, text string) { deliverToChannel(ctx, channelID, text, nil) },
			Logger:       logger,
		},
		Limits: subagent.Limits{
			MaxDepth:              cfg.Subagent.MaxDepth,
			MaxChildrenPerSession: cfg.Subagent.MaxChildrenPerSession,
			MaxConcurrentTotal:    cfg.Subagent.MaxConcurrentTotal,
		},
		Logger: logger,
		Bus:    eventBus,
	})
	if err := subagents.Load(ctx); err != nil {
		fatalStartup(logger, "E_SUBAGENT_LOAD", err)
	}
	defer subagents.Wait()

	var primaryChannelID string
	if len(cfg.Transport.Telegram.AllowedIDs) > 0 {
		primaryChannelID = strconv.FormatInt(cfg.Transport.Telegram.AllowedIDs[0], 10)
	}
	hb := heartbeat.New(heartbeat.Config{
		Store:        heartbeat.NewFileStore(paths.HeartbeatStatePath()),
		Orchestrator: orchestrator,
		Deliver: func(ctx context.Context, text string) {
			if primaryChannelID == "" {
				logger.Warn("heartbeat produced a reply but no channel is configured to receive it")
				return
			}
			deliverToChannel(ctx, primaryChannelID, text, nil)
		},
		WorkspaceDir: paths.WorkspaceDir,
		Transport:    "telegram",
		Interval:     time.Duration(cfg.Heartbeat.IntervalMinutes) * time.Minute,
		MinInterval:  time.Duration(cfg.Heartbeat.MinIntervalMinutes) * time.Minute,
		Logger:       logger,
		Bus:          eventBus,
	})
	hb.Start(ctx)
	defer hb.Stop()

	sandboxExec, err := buildSandbox(ctx, cfg, logger)
	if err != nil {
		fatalStartup(logger, "E_SANDBOX_INIT", err)
	}

	toolsRegistry := tools.NewRegistry(tools.Config{
		Workspace:     workspace,
		Facts:         facts,
		Scheduler:     sched,
		DefaultJobKey: session.Key("cron:default"),
		Subagents:     subagents,
		Shell:         sandboxExec,
		APIKeys:       buildSearchAPIKeys(cfg),
		PreferredWeb:  cfg.Search.Preferred,
		Logger:        logger,
	})
	dispatcher.set(toolsRegistry)

	watcher := config.NewWatcher(paths.WorkspaceDir, logger, eventBus)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start", "error", err)
	}

	if cfg.Transport.Telegram.Enabled {
		tg := transport.NewTelegram(cfg.Transport.Telegram.Token, cfg.Transport.Telegram.AllowedIDs, logger)
		tg.OnMessage(func(ctx context.Context, in session.InboundMessage) (*session.OutboundMessage, error) {
			return orchestrator.HandleMessage(ctx, in)
		})
		tg.OnCommand(func(ctx context.Context, cmd transport.Command, in session.InboundMessage) (*session.OutboundMessage, error) {
			return handleTransportCommand(ctx, orchestrator, paths, cmd, in)
		})
		activeTransports = append(activeTransports, tg)
	}
	if len(activeTransports) == 0 {
		logger.Warn("no transport configured; running scheduler and heartbeat only")
	}

	var wg sync.WaitGroup
	for _, t := range activeTransports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			if err := t.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("transport exited", "transport", t.Name(), "error", err)
			}
		}(t)
	}

	logger.Info("startup phase", "phase", "ready")
	<-ctx.Done()
	logger.Info("shutting down")
	for _, t := range activeTransports {
		t.Stop()
	}
	wg.Wait()
}

// buildModelConfig maps config.ModelConfig's single-provider-plus-names
// shape onto model.Config's per-candidate ProviderConfig chain.
func buildModelConfig(cfg config.Config) model.Config {
	primary := model.ProviderConfig{
		Name:     cfg.Model.Provider,
		Provider: cfg.Model.Provider,
		Model:    cfg.Model.Model,
		APIKey:   cfg.ProviderAPIKey(cfg.Model.Provider),
	}

	var fallbacks []model.ProviderConfig
	for _, name := range cfg.Model.FallbackProviders {
		fb := model.ProviderConfig{
			Name:     name,
			Provider: name,
			APIKey:   cfg.ProviderAPIKey(name),
		}
		if p, ok := cfg.Providers[name]; ok && len(p.Models) > 0 {
			fb.Model = p.Models[0]
		}
		fallbacks = append(fallbacks, fb)
	}

	return model.Config{
		Primary:          primary,
		Fallbacks:        fallbacks,
		BreakerThreshold: cfg.Model.FailoverThreshold,
		BreakerCooldown:  time.Duration(cfg.Model.FailoverCooldownSeconds) * time.Second,
	}
}

// buildSearchAPIKeys remaps config.SearchConfig's short provider names
// ("brave", "perplexity") onto the long keys internal/tools's provider.go
// looks them up by ("brave_search", "perplexity_search").
func buildSearchAPIKeys(cfg config.Config) map[string]string {
	keys := make(map[string]string, 2)
	if v := cfg.SearchAPIKey("brave"); v != "" {
		keys["brave_search"] = v
	}
	if v := cfg.SearchAPIKey("perplexity"); v != "" {
		keys["perplexity_search"] = v
	}
	return keys
}

// buildSandbox constructs the shell-exec backend cfg.Sandbox.Backend names.
func buildSandbox(ctx context.Context, cfg config.Config, logger *slog.Logger) (tools.Sandbox, error) {
	switch cfg.Sandbox.Backend {
	case "wasm":
		return sandbox.NewWasmSandbox(ctx, cfg.Sandbox.WasmSkillDir, cfg.Sandbox.WasmAllowedHosts, logger)
	default:
		return sandbox.NewDockerSandbox(cfg.Sandbox.DockerImage, cfg.Sandbox.MemoryLimitMB, cfg.Sandbox.DockerNetwork, cfg.HomeDir)
	}
}

// buildOnFire turns a fired scheduler.Job into an orchestrator turn,
// delivering the reply back to the job's originating channel (if any) once
// the turn completes.
func buildOnFire(orchestrator *session.Orchestrator, deliver func(ctx context.Context, channelID, text string, images []session.Block)) scheduler.OnFire {
	return func(ctx context.Context, job scheduler.Job) error {
		in := job.Payload.Message
		in.SessionKey = job.SessionKey
		if job.Payload.Kind == scheduler.PayloadSystemEvent {
			in.Text = job.Payload.Text
			in.UserID = "system"
		}

		out, err := orchestrator.HandleMessage(ctx, in)
		if err != nil {
			return err
		}
		if out != nil && out.Text != session.NoReply {
			deliver(ctx, in.ChannelID, out.Text, out.Images)
		}
		return nil
	}
}

// buildPromptInputs assembles the non-history system prompt ingredients
// spec §4.1 step 7 names: bootstrap context, long-term memory, structured
// facts, and eligible skills.
func buildPromptInputs(ctx context.Context, loader *skills.Loader, facts *memory.FactStore, paths store.Paths, in session.InboundMessage) session.PromptInputs {
	in2 := session.PromptInputs{
		BootstrapContext: session.LoadBootstrapContext(paths.WorkspaceDir),
		WorkspacePaths:   []string{paths.WorkspaceDir},
		Input:            in,
	}

	if data, err := os.ReadFile(paths.MemoryMDPath()); err == nil {
		in2.LongTermMemory = string(data)
	}

	if fs, err := facts.List(ctx); err == nil && len(fs) > 0 {
		in2.StructuredMemory = memory.NewCoreMemoryBlockFromFacts(fs).Format()
	}

	if loaded, err := loader.LoadAll(ctx); err == nil {
		for _, ls := range loaded {
			if ls.Eligible {
				in2.Skills = append(in2.Skills, session.SkillSummary{Name: ls.Skill.Name, Description: ls.Skill.Description})
			}
		}
	}

	return in2
}

// handleTransportCommand implements the four slash-commands spec §6 names.
func handleTransportCommand(ctx context.Context, orchestrator *session.Orchestrator, paths store.Paths, cmd transport.Command, in session.InboundMessage) (*session.OutboundMessage, error) {
	switch cmd {
	case transport.CommandStop:
		orchestrator.Stop(in.SessionKey)
		return &session.OutboundMessage{Text: "Stopped the in-flight run, if any."}, nil
	case transport.CommandReset:
		path := paths.SessionFile(shared.SafeSessionKey(string(in.SessionKey)))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reset session: %w", err)
		}
		return &session.OutboundMessage{Text: "Session history cleared."}, nil
	case transport.CommandStatus:
		return &session.OutboundMessage{Text: fmt.Sprintf("steward %s is running.", Version)}, nil
	case transport.CommandHelp:
		return &session.OutboundMessage{Text: "Commands: /stop /reset /status /help"}, nil
	default:
		return &session.OutboundMessage{Text: "Unrecognized command."}, nil
	}
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"runtime","trace_id":"-","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}

func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}

type daemonSubcommandMode int

const (
	daemonSubcommandRun daemonSubcommandMode = iota
	daemonSubcommandHelp
)

func parseDaemonSubcommandArgs(args []string) (daemonSubcommandMode, error) {
	if len(args) == 0 {
		return daemonSubcommandRun, nil
	}
	if len(args) == 1 && isHelpArg(args[0]) {
		return daemonSubcommandHelp, nil
	}
	return daemonSubcommandRun, fmt.Errorf("usage: goclaw daemon [--help]")
}

func isHelpArg(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "-h", "--help", "help":
		return true
	default:
		return false
	}
}

func printDaemonSubcommandUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: goclaw daemon [--help]")
	fmt.Fprintln(w, "       goclaw -daemon")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Runs steward in daemon mode (scheduler, heartbeat, transport).")
}
