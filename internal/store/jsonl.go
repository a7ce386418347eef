package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// AppendJSONLine appends one JSON-encoded record as a line to path, creating
// the file if needed. Used for append-mostly session logs (spec §3).
func AppendJSONLine(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal line for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append line to %s: %w", path, err)
	}
	return nil
}

// ReadJSONLines reads every line of path, parsing each into a fresh instance
// via newItem, and returns the parsed items alongside the raw lines that
// failed to parse (so callers can implement "discard records that do not
// parse" repair semantics). Returns (nil, nil, nil) if the file is absent.
func ReadJSONLines(path string, newItem func() interface{}, onItem func(raw string, item interface{}) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		item := newItem()
		if err := json.Unmarshal([]byte(line), item); err != nil {
			if err := onItem(line, nil); err != nil {
				return err
			}
			continue
		}
		if err := onItem(line, item); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// RewriteJSONLines atomically replaces path's contents with one JSON line
// per item in items.
func RewriteJSONLines(path string, items []interface{}) error {
	var buf []byte
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal line for %s: %w", path, err)
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	return WriteFileAtomic(path, buf)
}
