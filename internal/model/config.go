// Package model implements session.ModelClient on top of
// github.com/firebase/genkit/go, mirroring the teacher's engine.Brain /
// engine.FailoverBrain but generalized from "LLM provider" to "model client"
// (spec §4.1).
package model

import "time"

// ProviderConfig describes one candidate backing a Client: the genkit plugin
// to initialize and the model name to request.
type ProviderConfig struct {
	// Name identifies this provider for circuit-breaker bookkeeping and logs.
	Name string

	// Provider is "google", "anthropic", "openai", "openai_compatible", or
	// "openrouter". Empty defaults to "google".
	Provider string

	Model  string
	APIKey string

	OpenAICompatibleProvider string
	OpenAICompatibleBaseURL  string
}

// Config configures NewClient's provider chain and retry/breaker behavior.
type Config struct {
	Primary   ProviderConfig
	Fallbacks []ProviderConfig

	// BreakerThreshold is consecutive failures before a provider trips.
	// Zero uses the default of 5.
	BreakerThreshold int

	// BreakerCooldown is how long a tripped breaker stays open. Zero uses
	// the default of 5 minutes.
	BreakerCooldown time.Duration
}
