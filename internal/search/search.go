// Package search provides pluggable web search backends and the cinema
// schedule lookup built on them.
//
// Each backend implements [Provider] and is registered by name. The
// [Manager] routes queries to the configured primary provider and falls
// back to the others when it is rate limited or down.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/nugget/cinebot/internal/httpkit"
)

// Result is a single search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Options are optional parameters for a search query.
type Options struct {
	// Count is the maximum number of results to return.
	// Providers may return fewer. Zero means provider default.
	Count int `json:"count,omitempty"`

	// Language is an ISO 639-1 language code (e.g., "en", "id").
	Language string `json:"language,omitempty"`
}

// defaultCount is used when Options.Count is zero.
const defaultCount = 5

func (o Options) count() int {
	if o.Count > 0 {
		return o.Count
	}
	return defaultCount
}

// Provider is the interface that search backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "searxng", "brave").
	Name() string

	// Search executes a query and returns results.
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Searcher runs a query. *Manager satisfies it, as does any Provider.
type Searcher interface {
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager holds configured providers and routes searches.
type Manager struct {
	providers map[string]Provider
	primary   string
	logger    *slog.Logger
}

// NewManager creates a search manager that sends queries to the
// provider named primary.
func NewManager(primary string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		providers: make(map[string]Provider),
		primary:   primary,
		logger:    logger.With("service", "search"),
	}
}

// Register adds a provider to the manager.
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

// Search runs a query against the primary provider. A retryable failure
// (HTTP 429 or 5xx) moves on to the remaining providers in name order.
// Snippets are reduced to plain text before they are returned.
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	p, ok := m.providers[m.primary]
	if !ok {
		return nil, fmt.Errorf("search provider %q not configured", m.primary)
	}

	results, err := p.Search(ctx, query, opts)
	for _, name := range m.Providers() {
		if err == nil || !httpkit.Retryable(err) || ctx.Err() != nil {
			break
		}
		if name == m.primary {
			continue
		}
		m.logger.Warn("search provider failed, trying next", "failed", p.Name(), "next", name, "error", err)
		p = m.providers[name]
		results, err = p.Search(ctx, query, opts)
	}
	if err != nil {
		return nil, err
	}

	for i := range results {
		results[i].Title = PlainText(results[i].Title)
		results[i].Snippet = PlainText(results[i].Snippet)
	}
	return results, nil
}

// Providers returns the sorted names of all registered providers.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configured reports whether the primary provider is registered.
func (m *Manager) Configured() bool {
	_, ok := m.providers[m.primary]
	return ok
}
