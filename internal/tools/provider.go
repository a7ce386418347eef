package tools

import "context"

// APIKeyReq documents an API key a search provider needs to become
// available, surfaced so an operator knows what to configure.
type APIKeyReq struct {
	ConfigKey   string `json:"config_key"`
	EnvVar      string `json:"env_var"`
	Description string `json:"description"`
	SignupURL   string `json:"signup_url"`
}

// SearchResult is one hit returned by any SearchProvider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchProvider is the interface every web_search backend implements.
// Available() checks provider-specific readiness (e.g. an API key is set).
type SearchProvider interface {
	Name() string        // e.g. "brave_search", "duckduckgo", "perplexity_search"
	Description() string // human-readable label
	Domains() []string    // domains this provider talks to
	APIKeyReqs() []APIKeyReq
	Available() bool
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// buildProviders returns the default provider chain (Brave, Perplexity,
// DuckDuckGo, in that order) reordered so preferred sits first when it
// names an available provider.
func buildProviders(apiKeys map[string]string, preferred string) []SearchProvider {
	brave := NewBraveProvider(apiKeys["brave_search"])
	perplexity := NewPerplexityProvider(apiKeys["perplexity_search"])
	ddg := NewDDGProvider()
	providers := []SearchProvider{brave, perplexity, ddg}
	if preferred == "" {
		return providers
	}
	for i, p := range providers {
		if p.Name() != preferred {
			continue
		}
		if i == 0 {
			return providers
		}
		reordered := make([]SearchProvider, 0, len(providers))
		reordered = append(reordered, p)
		reordered = append(reordered, providers[:i]...)
		reordered = append(reordered, providers[i+1:]...)
		return reordered
	}
	return providers
}
