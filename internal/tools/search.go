package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stewardhq/steward/internal/session"
)

type searchParams struct {
	Query string `json:"query"`
}

type searchOutput struct {
	Results  []SearchResult `json:"results"`
	Provider string         `json:"provider,omitempty"`
}

// searchTool returns the web_search Tool routing through providers in
// order. Grounded on the teacher's registerSearch/search pair.
func searchTool(providers []SearchProvider) Tool {
	return Tool{
		Spec: session.ToolSpec{
			Name:        "web_search",
			Description: "Search the web for current information. Returns results with titles, URLs, and snippets. Use this tool immediately when the user asks to search or look something up — do not ask for confirmation.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"query": {"type": "string"}},
				"required": ["query"]
			}`),
		},
		Execute: func(ctx context.Context, params json.RawMessage) ([]session.Block, error) {
			var in searchParams
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
			out, err := runSearch(ctx, in.Query, providers)
			if err != nil {
				return nil, err
			}
			return jsonBlocks(out)
		},
	}
}

// runSearch iterates providers in order: skip unavailable, try search,
// fall through on error. First success wins.
func runSearch(ctx context.Context, query string, providers []SearchProvider) (searchOutput, error) {
	if query == "" {
		return searchOutput{}, fmt.Errorf("empty search query")
	}

	for _, p := range providers {
		if !p.Available() {
			continue
		}
		results, err := p.Search(ctx, query)
		if err != nil {
			slog.Warn("search provider failed, trying next", "provider", p.Name(), "error", err)
			continue
		}
		if len(results) == 0 {
			return searchOutput{Provider: p.Name(), Results: []SearchResult{{
				Title:   "No results found",
				Snippet: fmt.Sprintf("No results found for %q. Please answer using your training data.", query),
			}}}, nil
		}
		return searchOutput{Provider: p.Name(), Results: results}, nil
	}

	return searchOutput{Results: []SearchResult{{
		Title:   "Search unavailable",
		Snippet: fmt.Sprintf("Could not search for %q. Configure a search provider (BRAVE_API_KEY / PERPLEXITY_API_KEY) or rely on DuckDuckGo.", query),
	}}}, nil
}
