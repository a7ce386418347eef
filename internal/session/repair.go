package session

import (
	"github.com/stewardhq/steward/internal/store"
)

// RepairSessionFile implements spec §4.2 session-file repair: read line by
// line, discard records that do not parse, drop any record left dangling a
// tool_use/tool_result pair across the prefix/suffix boundary, and rewrite
// atomically only if something was dropped. Best-effort: any I/O error is
// left to the caller to log; the run continues on the unrepaired log.
func RepairSessionFile(path string) ([]Message, error) {
	var messages []Message
	dropped := false

	err := store.ReadJSONLines(path, func() interface{} { return &Message{} }, func(raw string, item interface{}) error {
		if item == nil {
			dropped = true
			return nil
		}
		messages = append(messages, *item.(*Message))
		return nil
	})
	if err != nil {
		return nil, err
	}

	repaired := dropOrphanToolBlocks(messages)
	if len(repaired) != len(messages) {
		dropped = true
	} else {
		for i := range repaired {
			if len(repaired[i].Content) != len(messages[i].Content) {
				dropped = true
				break
			}
		}
	}

	if dropped {
		items := make([]interface{}, len(repaired))
		for i, m := range repaired {
			items[i] = m
		}
		if err := store.RewriteJSONLines(path, items); err != nil {
			return repaired, err
		}
	}

	return repaired, nil
}

// AppendMessage appends one message to the session's append-only log.
func AppendMessage(path string, m Message) error {
	return store.AppendJSONLine(path, m)
}
