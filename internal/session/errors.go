package session

import "strings"

// ErrorClass categorizes a model-endpoint failure for the overflow
// resolver's retry-vs-respond decision (spec §4.6). Grounded on the
// teacher's engine.ClassifyError, retargeted from an LLM-provider-failover
// taxonomy (auth/billing/rate-limit/timeout/context) to the spec's smaller
// context-overflow/transient/unknown split since auth and billing failures
// are not part of the CORE orchestrator's concern (the ModelClient
// implementation handles those via its own provider failover, §4.1).
type ErrorClass string

const (
	ErrorClassContextOverflow ErrorClass = "context_overflow"
	ErrorClassTransient       ErrorClass = "transient"
	ErrorClassUnknown         ErrorClass = "unknown"
)

// ClassifyError inspects an error's message against the pattern tables in
// spec §4.6.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	msg := strings.ToLower(err.Error())

	overflowPatterns := []string{
		"request_too_large",
		"context length exceeded",
		"context_length_exceeded",
		"prompt is too long",
		"maximum context",
		"context window",
		"token limit",
		"max tokens",
	}
	for _, p := range overflowPatterns {
		if strings.Contains(msg, p) {
			return ErrorClassContextOverflow
		}
	}
	if strings.Contains(msg, "413") && strings.Contains(msg, "too large") {
		return ErrorClassContextOverflow
	}

	transientPatterns := []string{
		"rate limit", "rate_limit", "429", "quota", "too many requests",
		"overloaded", "connection reset", "timeout", "timed out",
		"deadline exceeded", "503", "529",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return ErrorClassTransient
		}
	}

	return ErrorClassUnknown
}
