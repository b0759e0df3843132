package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nugget/cinebot/internal/agent"
	"github.com/nugget/cinebot/internal/config"
	"github.com/nugget/cinebot/internal/documents"
	"github.com/nugget/cinebot/internal/embeddings"
	"github.com/nugget/cinebot/internal/health"
	"github.com/nugget/cinebot/internal/llm"
	"github.com/nugget/cinebot/internal/movies"
	"github.com/nugget/cinebot/internal/observability"
	"github.com/nugget/cinebot/internal/search"
	"github.com/nugget/cinebot/internal/session"
	"github.com/nugget/cinebot/internal/usage"
)

// services holds the shared external clients and the session factory
// built from them.
type services struct {
	ollama    *llm.OllamaClient
	anthropic *llm.AnthropicClient
	tmdb      *movies.TMDB
	searxng   *search.SearXNG
	usage     *usage.Store
	factory   *session.Factory
}

// newServices wires the configured providers into a session factory.
// Features whose backing service is not configured are left out of the
// tool registry rather than failing at call time.
func newServices(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*services, error) {
	svc := &services{ollama: llm.NewOllamaClient(cfg.Models.OllamaURL, logger)}

	factory := &session.Factory{
		LLM: svc.createLLMClient(cfg, logger),
		Agent: agent.Config{
			Model:  cfg.Models.Default,
			Window: cfg.Agent.ContextWindow,
		},
		Docs: documents.Config{
			ChunkSize:    cfg.Documents.ChunkSize,
			ChunkOverlap: cfg.Documents.ChunkOverlap,
			TopK:         cfg.Documents.TopK,
			Model:        cfg.Documents.Model,
		},
		Driver:  cfg.Documents.Driver,
		Persona: cfg.Agent.DefaultPersona,
		Logger:  logger,
		Metrics: metrics,
	}

	if cfg.TMDB.Configured() {
		svc.tmdb = movies.NewTMDB(movies.TMDBConfig{
			APIKey:       cfg.TMDB.APIKey,
			BaseURL:      cfg.TMDB.BaseURL,
			ImageBaseURL: cfg.TMDB.ImageBaseURL,
			Language:     cfg.TMDB.Language,
			RateLimit:    cfg.TMDB.RateLimit,
		}, logger)
		factory.Movies = svc.tmdb
	} else {
		logger.Warn("tmdb not configured, movie tools disabled")
	}

	if mgr := svc.createSearchManager(cfg, logger); mgr.Configured() {
		factory.Cinema = search.NewCinema(mgr, cfg.Cinema.Site, cfg.Cinema.ResultCount, logger)
		logger.Info("cinema schedule search enabled", "provider", cfg.Search.Primary)
	} else {
		logger.Warn("no search provider configured, cinema schedule disabled")
	}

	if cfg.Embeddings.Enabled {
		factory.Embedder = embeddings.New(embeddings.Config{
			BaseURL:   cfg.Embeddings.BaseURL,
			Model:     cfg.Embeddings.Model,
			BatchSize: cfg.Embeddings.BatchSize,
		})
		logger.Info("document questions enabled", "embedding_model", cfg.Embeddings.Model)
	}

	if cfg.Usage.Database != "" {
		store, err := openUsage(cfg, logger)
		if err != nil {
			return nil, err
		}
		svc.usage = store
		factory.Usage = store
		logger.Info("usage accounting enabled", "database", cfg.Usage.Database)
	}

	svc.factory = factory
	return svc, nil
}

// openUsage opens the usage database with the mattn driver in WAL mode.
func openUsage(cfg *config.Config, logger *slog.Logger) (*usage.Store, error) {
	pricing := make(map[string]usage.Price, len(cfg.Usage.Pricing))
	for model, p := range cfg.Usage.Pricing {
		pricing[model] = usage.Price{InputPerMillion: p.InputPerMillion, OutputPerMillion: p.OutputPerMillion}
	}
	store, err := usage.Open("sqlite3", cfg.Usage.Database+"?_journal_mode=WAL&_busy_timeout=5000", pricing, logger)
	if err != nil {
		return nil, fmt.Errorf("usage store %s: %w", cfg.Usage.Database, err)
	}
	return store, nil
}

// Close releases the services' own resources.
func (s *services) Close() error {
	if s.usage != nil {
		return s.usage.Close()
	}
	return nil
}

// createLLMClient builds a multi-provider client. Models not mapped to
// a provider fall through to Ollama.
func (s *services) createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	multi := llm.NewMultiClient(s.ollama)
	multi.AddProvider("ollama", s.ollama)

	if cfg.Anthropic.Configured() {
		s.anthropic = llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
		multi.AddProvider("anthropic", s.anthropic)
		logger.Info("Anthropic provider configured")
	}

	for _, m := range cfg.Models.Available {
		multi.AddModel(m.Name, m.Provider)
	}

	defaultProvider := "ollama"
	for _, m := range cfg.Models.Available {
		if m.Name == cfg.Models.Default {
			defaultProvider = m.Provider
		}
	}
	logger.Info("LLM client initialized", "default_model", cfg.Models.Default, "default_provider", defaultProvider)
	return multi
}

func (s *services) createSearchManager(cfg *config.Config, logger *slog.Logger) *search.Manager {
	mgr := search.NewManager(cfg.Search.Primary, logger)
	if cfg.Search.SearXNG.URL != "" {
		s.searxng = search.NewSearXNG(cfg.Search.SearXNG.URL)
		mgr.Register(s.searxng)
	}
	if cfg.Search.Brave.APIKey != "" {
		mgr.Register(search.NewBrave(cfg.Search.Brave.APIKey))
	}
	if cfg.Search.Google.APIKey != "" && cfg.Search.Google.CX != "" {
		mgr.Register(search.NewGoogle(cfg.Search.Google.APIKey, cfg.Search.Google.CX))
	}
	return mgr
}

// watch registers a health probe for every configured remote service.
func (s *services) watch(ctx context.Context, mon *health.Monitor) {
	mon.Watch(ctx, "ollama", s.ollama.Ping)
	if s.anthropic != nil {
		mon.Watch(ctx, "anthropic", s.anthropic.Ping)
	}
	if s.tmdb != nil {
		mon.Watch(ctx, "tmdb", s.tmdb.Ping)
	}
	if s.searxng != nil {
		mon.Watch(ctx, "searxng", s.searxng.Ping)
	}
}
