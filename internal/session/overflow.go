package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/stewardhq/steward/internal/store"
)

// OverflowOutcome is the OverflowResolver's decision for a failed model turn.
type OverflowOutcome struct {
	Respond  bool // terminal: return this text to the caller
	Text     string
	RetryMs  int // sleep this long, then retry the turn
	Consumed bool
}

// OverflowResolver classifies a turn failure and decides retry vs respond,
// per spec §4.6. It has access to the model client (for compaction) and the
// session file path (for a controlled reset when compaction is unavailable
// or fails).
type OverflowResolver struct {
	Client      ModelClient
	SessionPath string
}

// Resolve inspects turnErr (from a thrown error) or errMessage (from a
// message with stop_reason "error") and returns the next action.
func (r *OverflowResolver) Resolve(ctx context.Context, attempt int, turnErr error, errMessage string, history []Message) OverflowOutcome {
	var classifyErr error
	if turnErr != nil {
		classifyErr = turnErr
	} else if errMessage != "" {
		classifyErr = fmt.Errorf("%s", errMessage)
	}

	switch ClassifyError(classifyErr) {
	case ErrorClassContextOverflow:
		return r.resolveOverflow(ctx, history)
	case ErrorClassTransient:
		if attempt >= 2 {
			return OverflowOutcome{Respond: true, Text: describeError(classifyErr, errMessage)}
		}
		delayMs := int(math.Min(1000*math.Pow(2, float64(attempt)), 15000))
		return OverflowOutcome{RetryMs: delayMs}
	default:
		return OverflowOutcome{Respond: true, Text: describeError(classifyErr, errMessage)}
	}
}

func (r *OverflowResolver) resolveOverflow(ctx context.Context, history []Message) OverflowOutcome {
	if r.Client != nil {
		if _, err := r.Client.Compact(ctx, history); err == nil {
			return OverflowOutcome{RetryMs: 0}
		}
	}

	if r.SessionPath != "" {
		_ = store.WriteFileAtomic(r.SessionPath, nil)
	}
	return OverflowOutcome{
		Respond: true,
		Text:    "I had to reset this conversation's history because it grew too long for the model to process. Please repeat anything important from earlier in the chat.",
	}
}

func describeError(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}

// retryDelay is exposed for tests that want to assert the backoff formula
// without invoking Resolve.
func retryDelay(attempt int) time.Duration {
	ms := math.Min(1000*math.Pow(2, float64(attempt)), 15000)
	return time.Duration(ms) * time.Millisecond
}
