// Package config loads and hot-reloads the daemon's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProviderConfig holds per-model-provider settings.
type ProviderConfig struct {
	APIKey  string   `yaml:"api_key"`
	BaseURL string   `yaml:"base_url"`
	Models  []string `yaml:"models"`
}

// ModelConfig configures the model client (internal/model) failover chain.
type ModelConfig struct {
	// Provider names the primary model provider: "google", "anthropic", "openai", "ollama".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	// FallbackProviders is an ordered list of provider names tried when the
	// primary trips its circuit breaker.
	FallbackProviders []string `yaml:"fallback_providers"`

	// FailoverThreshold is consecutive failures before a provider's circuit
	// breaker trips.
	FailoverThreshold int `yaml:"failover_threshold"`
	// FailoverCooldownSeconds is how long a tripped breaker stays open.
	FailoverCooldownSeconds int `yaml:"failover_cooldown_seconds"`

	// ContextWindow and CompactionReserve back the memory-flush estimate (§4.7).
	ContextWindow     int `yaml:"context_window"`
	CompactionReserve int `yaml:"compaction_reserve"`
}

// SchedulerConfig holds scheduler defaults (spec §4.3).
type SchedulerConfig struct {
	MaxConcurrency         int `yaml:"max_concurrency"`
	MaxRetries             int `yaml:"max_retries"`
	RetryBaseDelayMs       int `yaml:"retry_base_delay_ms"`
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
	FiringTimeoutSeconds   int `yaml:"firing_timeout_seconds"`
	SafetyTickSeconds      int `yaml:"safety_tick_seconds"`
}

// SubagentConfig holds subagent fan-out limits (spec §4.4).
type SubagentConfig struct {
	MaxDepth              int `yaml:"max_depth"`
	MaxChildrenPerSession int `yaml:"max_children_per_session"`
	MaxConcurrentTotal    int `yaml:"max_concurrent_total"`
}

// MemoryConfig holds consolidation and structured-memory settings (spec §4.5).
type MemoryConfig struct {
	ConsolidationThreshold int  `yaml:"consolidation_threshold"`
	ConsolidationEnabled   bool `yaml:"consolidation_enabled"`
	FlushSoftBudget        int  `yaml:"flush_soft_budget"`
}

// HeartbeatConfig holds heartbeat cadence settings (spec §4.10).
type HeartbeatConfig struct {
	IntervalMinutes    int `yaml:"interval_minutes"`
	MinIntervalMinutes int `yaml:"min_interval_minutes"`
}

// SandboxConfig configures the shell-exec backends (docker or wasm).
type SandboxConfig struct {
	Backend          string   `yaml:"backend"` // "docker" | "wasm"
	DockerImage      string   `yaml:"docker_image"`
	DockerNetwork    string   `yaml:"docker_network"`
	MemoryLimitMB    int64    `yaml:"memory_limit_mb"`
	TimeoutSeconds   int      `yaml:"timeout_seconds"`
	WasmSkillDir     string   `yaml:"wasm_skill_dir"`
	WasmAllowedHosts []string `yaml:"wasm_allowed_hosts"`
}

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	Token      string  `yaml:"token"`
	AllowedIDs []int64 `yaml:"allowed_ids"`
	Enabled    bool    `yaml:"enabled"`
}

// TransportConfig aggregates all concrete transport configs.
type TransportConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// SearchConfig picks the preferred web-search provider and its keys.
type SearchConfig struct {
	Preferred string            `yaml:"preferred"` // "brave" | "perplexity" | "duckduckgo"
	APIKeys   map[string]string `yaml:"api_keys"`
}

// OtelConfig mirrors otelx.Config for the YAML file.
type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Config is the top-level daemon configuration.
type Config struct {
	HomeDir string `yaml:"-"`

	LogLevel string `yaml:"log_level"`
	LogQuiet bool   `yaml:"log_quiet"`

	Model     ModelConfig     `yaml:"model"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Subagent  SubagentConfig  `yaml:"subagent"`
	Memory    MemoryConfig    `yaml:"memory"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Transport TransportConfig `yaml:"transport"`
	Search    SearchConfig    `yaml:"search"`
	Otel      OtelConfig      `yaml:"otel"`

	Providers map[string]ProviderConfig `yaml:"providers"`

	// HistorySanitizeMaxUserTurns bounds retained user turns (spec §4.2, default 100).
	HistorySanitizeMaxUserTurns int `yaml:"history_sanitize_max_user_turns"`

	NeedsGenesis bool `yaml:"-"`
}

// ProviderAPIKey resolves the API key for a model provider, env override first.
func (c Config) ProviderAPIKey(provider string) string {
	envMap := map[string]string{
		"google":    "GOOGLE_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"ollama":    "",
	}
	if envVar, ok := envMap[provider]; ok && envVar != "" {
		if v := os.Getenv(envVar); v != "" {
			return v
		}
	}
	if c.Providers != nil {
		if p, ok := c.Providers[provider]; ok {
			return p.APIKey
		}
	}
	return ""
}

// SearchAPIKey resolves an API key for a search provider, env override first.
func (c Config) SearchAPIKey(name string) string {
	envMap := map[string]string{
		"brave":      "BRAVE_API_KEY",
		"perplexity": "PERPLEXITY_API_KEY",
	}
	if envVar, ok := envMap[name]; ok {
		if v := os.Getenv(envVar); v != "" {
			return v
		}
	}
	if c.Search.APIKeys != nil {
		return c.Search.APIKeys[name]
	}
	return ""
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Model: ModelConfig{
			Provider:                "google",
			Model:                   "gemini-2.5-flash",
			FailoverThreshold:       5,
			FailoverCooldownSeconds: 300,
			ContextWindow:           200_000,
			CompactionReserve:       20_000,
		},
		Scheduler: SchedulerConfig{
			MaxConcurrency:         3,
			MaxRetries:             2,
			RetryBaseDelayMs:       5000,
			MaxConsecutiveFailures: 5,
			FiringTimeoutSeconds:   300,
			SafetyTickSeconds:      60,
		},
		Subagent: SubagentConfig{
			MaxDepth:              2,
			MaxChildrenPerSession: 5,
			MaxConcurrentTotal:    10,
		},
		Memory: MemoryConfig{
			ConsolidationThreshold: 50,
			ConsolidationEnabled:   true,
			FlushSoftBudget:        4000,
		},
		Heartbeat: HeartbeatConfig{
			IntervalMinutes:    30,
			MinIntervalMinutes: 10,
		},
		Sandbox: SandboxConfig{
			Backend:        "docker",
			DockerImage:    "steward-sandbox:latest",
			DockerNetwork:  "none",
			MemoryLimitMB:  512,
			TimeoutSeconds: 120,
		},
		Otel: OtelConfig{
			Enabled:  false,
			Exporter: "otlp-http",
		},
		HistorySanitizeMaxUserTurns: 100,
	}
}

// HomeDir returns $STEWARD_HOME, or ~/.steward if unset.
func HomeDir() string {
	if override := os.Getenv("STEWARD_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".steward")
}

// Load reads config.yaml (creating the home directory if needed), applies env
// overrides, and validates the result.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create steward home: %w", err)
	}

	configPath := ConfigPath(cfg.HomeDir)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.NeedsGenesis = true
		} else {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = "google"
	}
	if cfg.Model.ContextWindow <= 0 {
		cfg.Model.ContextWindow = 200_000
	}
	if cfg.Model.CompactionReserve < 20_000 {
		// spec §4.7: compaction reserve is a write-through floor, never below 20000.
		cfg.Model.CompactionReserve = 20_000
	}
	if cfg.Scheduler.MaxConcurrency <= 0 {
		cfg.Scheduler.MaxConcurrency = 3
	}
	if cfg.Scheduler.RetryBaseDelayMs <= 0 {
		cfg.Scheduler.RetryBaseDelayMs = 5000
	}
	if cfg.Scheduler.MaxConsecutiveFailures <= 0 {
		cfg.Scheduler.MaxConsecutiveFailures = 5
	}
	if cfg.Subagent.MaxDepth <= 0 {
		cfg.Subagent.MaxDepth = 2
	}
	if cfg.Subagent.MaxChildrenPerSession <= 0 {
		cfg.Subagent.MaxChildrenPerSession = 5
	}
	if cfg.Subagent.MaxConcurrentTotal <= 0 {
		cfg.Subagent.MaxConcurrentTotal = 10
	}
	if cfg.Memory.ConsolidationThreshold <= 0 {
		cfg.Memory.ConsolidationThreshold = 50
	}
	if cfg.Heartbeat.IntervalMinutes <= 0 {
		cfg.Heartbeat.IntervalMinutes = 30
	}
	if cfg.Heartbeat.MinIntervalMinutes <= 0 {
		cfg.Heartbeat.MinIntervalMinutes = 10
	}
	if cfg.HistorySanitizeMaxUserTurns <= 0 {
		cfg.HistorySanitizeMaxUserTurns = 100
	}
	if strings.TrimSpace(cfg.Sandbox.Backend) == "" {
		cfg.Sandbox.Backend = "docker"
	}
	if cfg.Sandbox.WasmSkillDir == "" {
		cfg.Sandbox.WasmSkillDir = filepath.Join(cfg.HomeDir, "workspace", "skills", "wasm")
	}
}

func validate(cfg *Config) error {
	if cfg.Heartbeat.MinIntervalMinutes > cfg.Heartbeat.IntervalMinutes {
		return fmt.Errorf("heartbeat.min_interval_minutes (%d) must be <= heartbeat.interval_minutes (%d)",
			cfg.Heartbeat.MinIntervalMinutes, cfg.Heartbeat.IntervalMinutes)
	}
	switch cfg.Sandbox.Backend {
	case "docker", "wasm":
	default:
		return fmt.Errorf("sandbox.backend must be \"docker\" or \"wasm\", got %q", cfg.Sandbox.Backend)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("STEWARD_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("STEWARD_HEARTBEAT_INTERVAL_MINUTES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Heartbeat.IntervalMinutes = v
		}
	}
	if raw := os.Getenv("GOOGLE_API_KEY"); raw != "" {
		setProviderKey(cfg, "google", raw)
	}
	if raw := os.Getenv("ANTHROPIC_API_KEY"); raw != "" {
		setProviderKey(cfg, "anthropic", raw)
	}
	if raw := os.Getenv("OPENAI_API_KEY"); raw != "" {
		setProviderKey(cfg, "openai", raw)
	}
	if raw := os.Getenv("BRAVE_API_KEY"); raw != "" {
		setSearchKey(cfg, "brave", raw)
	}
	if raw := os.Getenv("PERPLEXITY_API_KEY"); raw != "" {
		setSearchKey(cfg, "perplexity", raw)
	}
	if raw := os.Getenv("TELEGRAM_TOKEN"); raw != "" {
		cfg.Transport.Telegram.Token = raw
	}
}

func setProviderKey(cfg *Config, provider, key string) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	p := cfg.Providers[provider]
	p.APIKey = key
	cfg.Providers[provider] = p
}

func setSearchKey(cfg *Config, name, key string) {
	if cfg.Search.APIKeys == nil {
		cfg.Search.APIKeys = make(map[string]string)
	}
	cfg.Search.APIKeys[name] = key
}

// SetModel updates the model provider/model in config.yaml, preserving other settings.
func SetModel(homeDir, provider, model string) error {
	configPath := ConfigPath(homeDir)
	raw, err := loadRawConfig(configPath)
	if err != nil {
		return err
	}
	modelSection, _ := raw["model"].(map[string]interface{})
	if modelSection == nil {
		modelSection = make(map[string]interface{})
	}
	modelSection["provider"] = provider
	modelSection["model"] = model
	raw["model"] = modelSection
	return saveRawConfig(configPath, raw)
}

func loadRawConfig(path string) (map[string]interface{}, error) {
	raw := make(map[string]interface{})
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse config.yaml: %w", err)
		}
	}
	return raw, nil
}

func saveRawConfig(path string, raw map[string]interface{}) error {
	out, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal config.yaml: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}
