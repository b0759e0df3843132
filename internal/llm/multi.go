package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
)

// ErrNoProvider is returned when no registered provider serves a model.
var ErrNoProvider = errors.New("no provider configured")

// MultiClient routes each request to the provider serving its model.
//
// A model resolves to a provider by, in order: an explicit AddModel
// mapping, a "claude" name prefix when an "anthropic" provider is
// registered, and finally the fallback client.
type MultiClient struct {
	providers map[string]Client
	models    map[string]string
	fallback  Client
}

// NewMultiClient creates a router. fallback serves unmapped models and
// may be nil.
func NewMultiClient(fallback Client) *MultiClient {
	return &MultiClient{
		providers: make(map[string]Client),
		models:    make(map[string]string),
		fallback:  fallback,
	}
}

// AddProvider registers a client under a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.providers[strings.ToLower(name)] = client
}

// AddModel maps a model name to a provider name.
func (m *MultiClient) AddModel(model, provider string) {
	m.models[model] = strings.ToLower(provider)
}

// Providers returns the registered provider names, sorted.
func (m *MultiClient) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderFor returns the provider name that serves model, or "" when
// the fallback client does.
func (m *MultiClient) ProviderFor(model string) string {
	if p, ok := m.models[model]; ok {
		if _, registered := m.providers[p]; registered {
			return p
		}
	}
	if strings.HasPrefix(model, "claude") {
		if _, ok := m.providers["anthropic"]; ok {
			return "anthropic"
		}
	}
	return ""
}

func (m *MultiClient) clientFor(model string) (Client, error) {
	if p := m.ProviderFor(model); p != "" {
		return m.providers[p], nil
	}
	if m.fallback == nil {
		return nil, fmt.Errorf("%w for model %q", ErrNoProvider, model)
	}
	return m.fallback, nil
}

// Chat sends a request to the provider that serves model.
func (m *MultiClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	client, err := m.clientFor(model)
	if err != nil {
		return nil, err
	}
	return client.Chat(ctx, model, messages, tools)
}

// Stream sends a streaming request to the provider that serves model.
func (m *MultiClient) Stream(ctx context.Context, model string, messages []Message, tools []map[string]any) iter.Seq2[Chunk, error] {
	client, err := m.clientFor(model)
	if err != nil {
		return errSeq(err)
	}
	return client.Stream(ctx, model, messages, tools)
}

// Ping checks every registered provider, and the fallback when it is
// not also registered. Errors name the failing provider.
func (m *MultiClient) Ping(ctx context.Context) error {
	if m.fallback == nil && len(m.providers) == 0 {
		return ErrNoProvider
	}
	var errs []error
	fallbackChecked := false
	for _, name := range m.Providers() {
		c := m.providers[name]
		if c == m.fallback {
			fallbackChecked = true
		}
		if err := c.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if m.fallback != nil && !fallbackChecked {
		if err := m.fallback.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("fallback: %w", err))
		}
	}
	return errors.Join(errs...)
}
