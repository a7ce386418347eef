package session

import "github.com/stewardhq/steward/internal/tokenutil"

// FlushBudget holds the token-budget parameters spec §4.7 uses to decide
// whether to inject a silent memory-save prompt before a turn.
type FlushBudget struct {
	ContextWindow     int
	CompactionReserve int
	FlushSoftBudget   int
}

// DefaultFlushBudget mirrors the spec's stated defaults.
func DefaultFlushBudget() FlushBudget {
	return FlushBudget{ContextWindow: 200_000, CompactionReserve: 20_000, FlushSoftBudget: 4_000}
}

// normalizeReserve enforces the §4.7 write-through floor: the compaction
// reserve is never allowed below 20,000 tokens.
func (b FlushBudget) normalizeReserve() int {
	if b.CompactionReserve < 20_000 {
		return 20_000
	}
	return b.CompactionReserve
}

// EstimateTokens sums the teacher's char/4 heuristic (tokenutil.EstimateTokens)
// over every text block in the session log.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += tokenutil.EstimateTokens(m.TextContent())
	}
	return total
}

// ShouldFlush reports whether the estimated token usage of messages has
// reached the flush threshold: contextWindow − compactionReserve −
// flushSoftBudget.
func ShouldFlush(messages []Message, budget FlushBudget) bool {
	threshold := budget.ContextWindow - budget.normalizeReserve() - budget.FlushSoftBudget
	if threshold < 0 {
		threshold = 0
	}
	return EstimateTokens(messages) >= threshold
}

// FlushPrompt is the silent, system-framed turn injected when ShouldFlush is
// true.
const FlushPrompt = "This conversation is approaching its context limit. Before continuing, use the memory tool to save anything important you'll need to remember, then continue."
