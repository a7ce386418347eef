package model

import "strings"

var contextLimitOverrides map[string]int

// SetContextLimitOverrides installs config-driven context limit overrides,
// keyed by "provider/model" or bare "model".
func SetContextLimitOverrides(m map[string]int) {
	contextLimitOverrides = m
}

// ContextLimitForModel returns the token window for a given provider+model,
// falling back to a conservative default when the model is unrecognized.
// Grounded on engine/context_limits.go's ContextLimitForModel.
func ContextLimitForModel(provider, model string) int {
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.ToLower(strings.TrimSpace(model))

	if contextLimitOverrides != nil {
		if v, ok := contextLimitOverrides[provider+"/"+model]; ok {
			return v
		}
		if v, ok := contextLimitOverrides[model]; ok {
			return v
		}
	}

	switch model {
	case "gemini-2.5-flash", "gemini-2.5-pro", "gemini-1.5-flash", "gemini-1.5-pro":
		return 1_048_576
	case "claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022", "claude-3-opus-20240229":
		return 200_000
	case "gpt-4o", "gpt-4o-mini":
		return 128_000
	case "o1", "o3-mini":
		return 128_000
	}

	if strings.HasPrefix(model, "gemini-") {
		return 1_048_576
	}
	if strings.HasPrefix(model, "claude-") {
		return 200_000
	}
	if strings.HasPrefix(model, "gpt-4") {
		return 128_000
	}

	switch provider {
	case "google":
		return 1_048_576
	case "anthropic":
		return 200_000
	case "openai", "openai_compatible", "openrouter":
		return 128_000
	}

	return 128_000
}
