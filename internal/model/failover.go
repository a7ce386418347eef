package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stewardhq/steward/internal/session"
)

// circuitBreaker tracks consecutive failures for one named provider.
// Grounded on engine/failover.go's CircuitBreaker.
type circuitBreaker struct {
	failures    int
	lastFailure time.Time
	tripped     bool
}

type namedClient struct {
	name   string
	client session.ModelClient
}

// FailoverClient wraps an ordered chain of session.ModelClient
// implementations with a per-provider circuit breaker, trying the primary
// first and falling through to fallbacks on failure. It itself implements
// session.ModelClient, so the orchestrator never needs to know a fallback
// chain exists. Grounded on engine/failover.go's FailoverBrain, generalized
// from "LLM provider failover" to "model client failover."
type FailoverClient struct {
	primary   namedClient
	fallbacks []namedClient

	mu        sync.Mutex
	breakers  map[string]*circuitBreaker
	threshold int
	cooldown  time.Duration
}

// NewFailoverClient builds a FailoverClient from cfg, constructing one
// Client per ProviderConfig via NewClient.
func NewFailoverClient(ctx context.Context, cfg Config, dispatcher session.ToolDispatcher) *FailoverClient {
	threshold := cfg.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}

	primary := namedClient{name: cfg.Primary.Name, client: NewClient(ctx, cfg.Primary, dispatcher)}
	breakers := map[string]*circuitBreaker{primary.name: {}}

	var fallbacks []namedClient
	for _, fc := range cfg.Fallbacks {
		nc := namedClient{name: fc.Name, client: NewClient(ctx, fc, dispatcher)}
		fallbacks = append(fallbacks, nc)
		breakers[nc.name] = &circuitBreaker{}
	}

	return &FailoverClient{
		primary:   primary,
		fallbacks: fallbacks,
		breakers:  breakers,
		threshold: threshold,
		cooldown:  cooldown,
	}
}

func (f *FailoverClient) candidates() []namedClient {
	return append([]namedClient{f.primary}, f.fallbacks...)
}

// GenerateTurn implements session.ModelClient.
func (f *FailoverClient) GenerateTurn(ctx context.Context, req session.TurnRequest) (session.TurnResult, error) {
	var lastErr error
	for _, c := range f.candidates() {
		if f.isTripped(c.name) {
			slog.Info("model failover: skipping tripped provider", "provider", c.name)
			continue
		}

		result, err := c.client.GenerateTurn(ctx, req)
		if err == nil && result.Message.StopReason != "error" {
			f.recordSuccess(c.name)
			return result, nil
		}

		if err == nil {
			err = errors.New(result.Message.ErrorMessage)
		}
		lastErr = err
		f.recordFailure(c.name)

		if session.ClassifyError(err) == session.ErrorClassContextOverflow {
			return result, err
		}
		slog.Warn("model failover: provider failed", "provider", c.name, "error", err)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("model failover: no providers configured")
	}
	return session.TurnResult{Message: session.Message{
		Role:         session.RoleAssistant,
		StopReason:   "error",
		ErrorMessage: lastErr.Error(),
	}}, fmt.Errorf("model failover: all providers failed: %w", lastErr)
}

// Compact implements session.ModelClient, trying each candidate in order
// until one succeeds.
func (f *FailoverClient) Compact(ctx context.Context, history []session.Message) (string, error) {
	var lastErr error
	for _, c := range f.candidates() {
		if f.isTripped(c.name) {
			continue
		}
		summary, err := c.client.Compact(ctx, history)
		if err == nil {
			f.recordSuccess(c.name)
			return summary, nil
		}
		lastErr = err
		f.recordFailure(c.name)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("model failover: no providers configured")
	}
	return "", fmt.Errorf("model failover: all providers failed to compact: %w", lastErr)
}

func (f *FailoverClient) isTripped(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb, ok := f.breakers[name]
	if !ok || !cb.tripped {
		return false
	}
	if time.Since(cb.lastFailure) >= f.cooldown {
		cb.tripped = false
		cb.failures = 0
		slog.Info("model failover: circuit breaker reset after cooldown", "provider", name)
		return false
	}
	return true
}

func (f *FailoverClient) recordFailure(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb, ok := f.breakers[name]
	if !ok {
		cb = &circuitBreaker{}
		f.breakers[name] = cb
	}
	cb.failures++
	cb.lastFailure = time.Now()
	if cb.failures >= f.threshold {
		cb.tripped = true
		slog.Warn("model failover: circuit breaker tripped", "provider", name, "failures", cb.failures)
	}
}

func (f *FailoverClient) recordSuccess(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := f.breakers[name]; ok {
		cb.failures = 0
		cb.tripped = false
	}
}
