// Package config handles CineBot configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/cinebot/config.yaml, /etc/cinebot/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "cinebot", "config.yaml"))
	}

	paths = append(paths, "/etc/cinebot/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all CineBot configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Models     ModelsConfig     `yaml:"models"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	TMDB       TMDBConfig       `yaml:"tmdb"`
	Search     SearchConfig     `yaml:"search"`
	Cinema     CinemaConfig     `yaml:"cinema"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Documents  DocumentsConfig  `yaml:"documents"`
	Agent      AgentConfig      `yaml:"agent"`
	Session    SessionConfig    `yaml:"session"`
	Usage      UsageConfig      `yaml:"usage"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`

	// RateLimit is the steady-state requests per second allowed per
	// client address. Zero disables inbound rate limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// AllowAnyOrigin accepts browser WebSocket connections from any
	// origin instead of only the server's own host.
	AllowAnyOrigin bool `yaml:"allow_any_origin"`
}

// ModelsConfig defines model routing settings.
type ModelsConfig struct {
	Default   string        `yaml:"default"`
	OllamaURL string        `yaml:"ollama_url"`
	Available []ModelConfig `yaml:"available"`
}

// ModelConfig maps a model name to the provider that serves it.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // ollama, anthropic
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether an Anthropic API key is set.
func (c AnthropicConfig) Configured() bool {
	return c.APIKey != ""
}

// TMDBConfig defines The Movie Database API settings.
type TMDBConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	ImageBaseURL string `yaml:"image_base_url"`
	Language     string `yaml:"language"`

	// RateLimit caps outbound requests per second. TMDB enforces its
	// own limit upstream; staying under it avoids 429 responses.
	RateLimit float64 `yaml:"rate_limit"`
}

// Configured reports whether a TMDB API key is set.
func (c TMDBConfig) Configured() bool {
	return c.APIKey != ""
}

// SearchConfig selects and configures web search backends.
type SearchConfig struct {
	Primary string        `yaml:"primary"` // searxng, brave, google
	SearXNG SearXNGConfig `yaml:"searxng"`
	Brave   BraveConfig   `yaml:"brave"`
	Google  GoogleConfig  `yaml:"google"`
}

// SearXNGConfig holds configuration for a SearXNG instance.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// BraveConfig holds configuration for the Brave Search API.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// GoogleConfig holds Google Custom Search credentials.
type GoogleConfig struct {
	APIKey string `yaml:"api_key"`
	CX     string `yaml:"cx"`
}

// CinemaConfig shapes the cinema schedule search query.
type CinemaConfig struct {
	// Site restricts results to a schedule listing site.
	Site string `yaml:"site"`
	// ResultCount is how many search results are formatted for the model.
	ResultCount int `yaml:"result_count"`
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`   // Embedding model name (e.g., nomic-embed-text)
	BaseURL string `yaml:"baseurl"` // Ollama URL (defaults to models.ollama_url)

	// BatchSize caps how many chunks go into one embedding request.
	BatchSize int `yaml:"batch_size"`
}

// DocumentsConfig controls document question-answering.
type DocumentsConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	TopK         int    `yaml:"top_k"`
	Driver       string `yaml:"driver"` // database/sql driver for the per-session index
	Model        string `yaml:"model"`  // answering model (defaults to models.default)
}

// AgentConfig controls the agent loop.
type AgentConfig struct {
	// ContextWindow is how many recent messages accompany the system
	// message on every model call.
	ContextWindow  int    `yaml:"context_window"`
	DefaultPersona string `yaml:"default_persona"`
}

// SessionConfig controls session lifetime.
type SessionConfig struct {
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// UsageConfig controls per-turn token accounting.
type UsageConfig struct {
	// Database is the SQLite file usage is recorded in. Empty disables
	// usage accounting.
	Database string `yaml:"database"`

	// Pricing maps model names to token prices. Models not listed are
	// recorded as free.
	Pricing map[string]PricingEntry `yaml:"pricing"`
}

// PricingEntry is a model's cost in USD per million tokens.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Environment  string `yaml:"environment"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

// applyEnv fills empty secrets from the conventional environment
// variables so a bare config file still works in containers.
func (c *Config) applyEnv() {
	setFromEnv(&c.TMDB.APIKey, "TMDB_API_KEY")
	setFromEnv(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setFromEnv(&c.Search.Google.APIKey, "GOOGLE_API_KEY")
	setFromEnv(&c.Search.Google.CX, "GOOGLE_CSE_ID")
	setFromEnv(&c.Search.Brave.APIKey, "BRAVE_API_KEY")
}

func setFromEnv(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Listen.RateBurst == 0 && c.Listen.RateLimit > 0 {
		c.Listen.RateBurst = int(c.Listen.RateLimit) * 2
	}

	if c.Models.OllamaURL == "" {
		c.Models.OllamaURL = "http://localhost:11434"
	}
	if c.Models.Default == "" {
		c.Models.Default = "qwen3:8b"
	}
	for i := range c.Models.Available {
		if c.Models.Available[i].Provider == "" {
			c.Models.Available[i].Provider = "ollama"
		}
	}

	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = "https://api.themoviedb.org/3"
	}
	if c.TMDB.ImageBaseURL == "" {
		c.TMDB.ImageBaseURL = "https://image.tmdb.org/t/p"
	}
	if c.TMDB.Language == "" {
		c.TMDB.Language = "en"
	}
	if c.TMDB.RateLimit == 0 {
		c.TMDB.RateLimit = 20
	}

	if c.Search.Primary == "" {
		switch {
		case c.Search.SearXNG.URL != "":
			c.Search.Primary = "searxng"
		case c.Search.Google.APIKey != "" && c.Search.Google.CX != "":
			c.Search.Primary = "google"
		case c.Search.Brave.APIKey != "":
			c.Search.Primary = "brave"
		}
	}

	if c.Cinema.Site == "" {
		c.Cinema.Site = "jadwalnonton.com/now-playing"
	}
	if c.Cinema.ResultCount == 0 {
		c.Cinema.ResultCount = 1
	}

	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "nomic-embed-text"
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = c.Models.OllamaURL
	}

	if c.Documents.ChunkSize == 0 {
		c.Documents.ChunkSize = 1000
	}
	if c.Documents.ChunkOverlap == 0 {
		c.Documents.ChunkOverlap = 200
	}
	if c.Documents.TopK == 0 {
		c.Documents.TopK = 4
	}
	if c.Documents.Driver == "" {
		c.Documents.Driver = "sqlite3"
	}
	if c.Documents.Model == "" {
		c.Documents.Model = c.Models.Default
	}

	if c.Agent.ContextWindow == 0 {
		c.Agent.ContextWindow = 10
	}

	if c.Session.IdleTimeout == 0 {
		c.Session.IdleTimeout = 2 * time.Hour
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "cinebot"
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = "development"
	}

	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate reports configuration values that cannot work at runtime.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if c.Agent.ContextWindow < 1 {
		return fmt.Errorf("agent.context_window must be at least 1, got %d", c.Agent.ContextWindow)
	}
	for model, p := range c.Usage.Pricing {
		if p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
			return fmt.Errorf("usage.pricing %q: prices must not be negative", model)
		}
	}
	if c.Documents.ChunkOverlap >= c.Documents.ChunkSize {
		return fmt.Errorf("documents.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Documents.ChunkOverlap, c.Documents.ChunkSize)
	}
	for _, m := range c.Models.Available {
		switch strings.ToLower(m.Provider) {
		case "ollama", "anthropic":
		default:
			return fmt.Errorf("model %q: unknown provider %q", m.Name, m.Provider)
		}
	}
	switch c.Search.Primary {
	case "", "searxng", "brave", "google":
	default:
		return fmt.Errorf("search.primary: unknown provider %q", c.Search.Primary)
	}
	return nil
}
