package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stewardhq/steward/internal/memory"
)

func newTestWorkspace(t *testing.T) *memory.Workspace {
	t.Helper()
	ws, err := memory.NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	return ws
}

func TestMemoryFileTools_WriteThenRead(t *testing.T) {
	ws := newTestWorkspace(t)
	tools := memoryFileTools(ws)
	var write, read Tool
	for _, tl := range tools {
		switch tl.Spec.Name {
		case "memory_write":
			write = tl
		case "memory_read":
			read = tl
		}
	}

	wparams, _ := json.Marshal(memoryFileWriteParams{Path: "notes.md", Content: "hello"})
	if _, err := write.Execute(context.Background(), wparams); err != nil {
		t.Fatalf("write: %v", err)
	}

	rparams, _ := json.Marshal(memoryFileReadParams{Path: "notes.md"})
	blocks, err := read.Execute(context.Background(), rparams)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if blocks[0].Text != "hello" {
		t.Fatalf("expected %q, got %q", "hello", blocks[0].Text)
	}
}

func TestMemoryFileTools_Search(t *testing.T) {
	ws := newTestWorkspace(t)
	tools := memoryFileTools(ws)
	var write, search Tool
	for _, tl := range tools {
		switch tl.Spec.Name {
		case "memory_write":
			write = tl
		case "memory_search":
			search = tl
		}
	}

	wparams, _ := json.Marshal(memoryFileWriteParams{Path: "notes.md", Content: "the user prefers Go"})
	if _, err := write.Execute(context.Background(), wparams); err != nil {
		t.Fatalf("write: %v", err)
	}

	sparams, _ := json.Marshal(memoryFileSearchParams{Query: "prefers"})
	blocks, err := search.Execute(context.Background(), sparams)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if blocks[0].Text == "" {
		t.Fatal("expected search hits in result")
	}
}

func TestMemoryFactTool_StoreListDeleteRoundTrip(t *testing.T) {
	facts := memory.NewFactStore(filepath.Join(t.TempDir(), "memory.json"))
	tool := memoryFactTool(facts)

	storeParams, _ := json.Marshal(memoryActionParams{Action: "store", Content: "likes tabs", Tags: []string{"style"}})
	if _, err := tool.Execute(context.Background(), storeParams); err != nil {
		t.Fatalf("store: %v", err)
	}

	listParams, _ := json.Marshal(memoryActionParams{Action: "list"})
	blocks, err := tool.Execute(context.Background(), listParams)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if blocks[0].Text == "" {
		t.Fatal("expected listed facts in result")
	}
}

func TestMemoryFactTool_UnknownActionErrors(t *testing.T) {
	facts := memory.NewFactStore(filepath.Join(t.TempDir(), "memory.json"))
	tool := memoryFactTool(facts)

	params, _ := json.Marshal(memoryActionParams{Action: "explode"})
	if _, err := tool.Execute(context.Background(), params); err == nil {
		t.Fatal("expected an error for an unknown memory action")
	}
}

func TestMemoryFactTool_DeleteRequiresID(t *testing.T) {
	facts := memory.NewFactStore(filepath.Join(t.TempDir(), "memory.json"))
	tool := memoryFactTool(facts)

	params, _ := json.Marshal(memoryActionParams{Action: "delete"})
	if _, err := tool.Execute(context.Background(), params); err == nil {
		t.Fatal("expected an error deleting without an id")
	}
}
