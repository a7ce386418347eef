package session

// SanitizeHistory implements spec §4.2 history sanitation:
//  1. keep only the last N user turns and everything after the last retained
//     user turn (default N = 100)
//  2. drop tool_use/tool_result blocks that have no matching partner in the
//     immediately following/preceding non-assistant message
//  3. remove messages that become empty after filtering
func SanitizeHistory(messages []Message, maxUserTurns int) []Message {
	if maxUserTurns <= 0 {
		maxUserTurns = 100
	}

	trimmed := trimToRecentUserTurns(messages, maxUserTurns)
	return dropOrphanToolBlocks(trimmed)
}

func trimToRecentUserTurns(messages []Message, maxUserTurns int) []Message {
	userCount := 0
	for _, m := range messages {
		if m.Role == RoleUser {
			userCount++
		}
	}
	if userCount <= maxUserTurns {
		return messages
	}

	toDrop := userCount - maxUserTurns
	start := 0
	dropped := 0
	for i, m := range messages {
		if m.Role == RoleUser {
			dropped++
			if dropped == toDrop {
				start = i + 1
				break
			}
		}
	}
	return messages[start:]
}

// dropOrphanToolBlocks removes tool_use blocks whose call_id has no matching
// tool_result in the very next message, and tool_result blocks whose
// tool_use_id has no matching tool_use in the very previous message. Messages
// left empty afterward are removed entirely.
func dropOrphanToolBlocks(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)

	for i := range out {
		if out[i].Role != RoleAssistant {
			continue
		}
		var nextResultIDs map[string]bool
		if i+1 < len(out) {
			nextResultIDs = collectToolUseIDs(out[i+1])
		}
		out[i].Content = filterBlocks(out[i].Content, func(b Block) bool {
			if b.Kind != BlockToolUse {
				return true
			}
			return nextResultIDs[b.CallID]
		})
	}

	for i := range out {
		if out[i].Role == RoleAssistant {
			continue
		}
		var prevUseIDs map[string]bool
		if i > 0 {
			prevUseIDs = collectCallIDs(out[i-1])
		}
		out[i].Content = filterBlocks(out[i].Content, func(b Block) bool {
			if b.Kind != BlockToolResult {
				return true
			}
			return prevUseIDs[b.ToolUseID]
		})
	}

	var result []Message
	for _, m := range out {
		if len(m.Content) == 0 && m.TextContent() == "" {
			continue
		}
		result = append(result, m)
	}
	return result
}

func collectCallIDs(m Message) map[string]bool {
	ids := make(map[string]bool)
	for _, b := range m.Content {
		if b.Kind == BlockToolUse {
			ids[b.CallID] = true
		}
	}
	return ids
}

func collectToolUseIDs(m Message) map[string]bool {
	ids := make(map[string]bool)
	for _, b := range m.Content {
		if b.Kind == BlockToolResult {
			ids[b.ToolUseID] = true
		}
	}
	return ids
}

func filterBlocks(blocks []Block, keep func(Block) bool) []Block {
	var out []Block
	for _, b := range blocks {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}
