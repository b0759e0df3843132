package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeConfig(t, "listen:\n  port: 9999\n")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("listen:\n  port: 8080\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "models:\n  default: llama3.1\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Listen.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Listen.Port)
	}
	if cfg.Agent.ContextWindow != 10 {
		t.Errorf("context_window = %d, want 10", cfg.Agent.ContextWindow)
	}
	if cfg.Documents.ChunkSize != 1000 || cfg.Documents.ChunkOverlap != 200 {
		t.Errorf("chunking = %d/%d, want 1000/200", cfg.Documents.ChunkSize, cfg.Documents.ChunkOverlap)
	}
	if cfg.Documents.Model != "llama3.1" {
		t.Errorf("documents.model = %q, want default model", cfg.Documents.Model)
	}
	if cfg.Embeddings.BaseURL != cfg.Models.OllamaURL {
		t.Errorf("embeddings.baseurl = %q, want %q", cfg.Embeddings.BaseURL, cfg.Models.OllamaURL)
	}
	if cfg.Session.IdleTimeout != 2*time.Hour {
		t.Errorf("idle_timeout = %v, want 2h", cfg.Session.IdleTimeout)
	}
	if cfg.Cinema.ResultCount != 1 {
		t.Errorf("cinema.result_count = %d, want 1", cfg.Cinema.ResultCount)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("CINEBOT_TEST_TMDB", "secret123")
	path := writeConfig(t, "tmdb:\n  api_key: ${CINEBOT_TEST_TMDB}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.TMDB.APIKey != "secret123" {
		t.Errorf("tmdb.api_key = %q, want %q", cfg.TMDB.APIKey, "secret123")
	}
}

func TestLoad_EnvFallbackForSecrets(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "from-env")
	path := writeConfig(t, "log_level: debug\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.TMDB.APIKey != "from-env" {
		t.Errorf("tmdb.api_key = %q, want env fallback", cfg.TMDB.APIKey)
	}
}

func TestLoad_SearchPrimaryInferred(t *testing.T) {
	path := writeConfig(t, "search:\n  searxng:\n    url: http://searx.local\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Search.Primary != "searxng" {
		t.Errorf("search.primary = %q, want searxng", cfg.Search.Primary)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad log level", "log_level: loud\n", "unknown log level"},
		{"bad log format", "log_format: xml\n", "log_format"},
		{"overlap too large", "documents:\n  chunk_size: 100\n  chunk_overlap: 100\n", "chunk_overlap"},
		{"unknown provider", "models:\n  available:\n    - name: x\n      provider: gemini\n", "unknown provider"},
		{"unknown search", "search:\n  primary: altavista\n", "search.primary"},
		{"negative price", "usage:\n  pricing:\n    claude:\n      input_per_million: -1\n", "usage.pricing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err, tt.want)
			}
		})
	}
}

func TestLoad_UsagePricing(t *testing.T) {
	body := `usage:
  database: /var/lib/cinebot/usage.db
  pricing:
    claude-sonnet-4-20250514:
      input_per_million: 3
      output_per_million: 15
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Usage.Database != "/var/lib/cinebot/usage.db" {
		t.Errorf("usage.database = %q", cfg.Usage.Database)
	}
	p, ok := cfg.Usage.Pricing["claude-sonnet-4-20250514"]
	if !ok || p.InputPerMillion != 3 || p.OutputPerMillion != 15 {
		t.Errorf("pricing = %+v", cfg.Usage.Pricing)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"TRACE", LevelTrace},
		{" debug ", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_RendersTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace, "text")
	logger.Log(t.Context(), LevelTrace, "payload")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("output = %q, want level=TRACE", buf.String())
	}
}
