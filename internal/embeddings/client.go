// Package embeddings turns document chunks and questions into vectors
// through Ollama and ranks vectors by cosine similarity.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/cinebot/internal/httpkit"
)

const (
	defaultModel     = "nomic-embed-text"
	defaultBatchSize = 32
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config for the Ollama embedding client.
type Config struct {
	BaseURL   string // Ollama base URL
	Model     string // defaults to nomic-embed-text
	BatchSize int    // inputs per request, defaults to 32
}

// Client calls Ollama's /api/embed endpoint.
type Client struct {
	baseURL   string
	model     string
	batchSize int
	http      *http.Client
}

// New creates an embedding client.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		// A full batch of long chunks on a CPU host is slow.
		http: httpkit.NewClient(httpkit.WithTimeout(2 * time.Minute)),
	}
}

// Model returns the embedding model name.
func (c *Client) Model() string { return c.model }

// Embed returns one vector per text. Long inputs are sent in batches so
// a whole screenplay never rides in a single request.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		batch := texts[start:min(start+c.batchSize, len(texts))]
		vecs, err := c.embedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed inputs %d-%d: %w", start, start+len(batch)-1, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{"model": c.model, "input": texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if err := httpkit.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(decoded.Embeddings), len(texts))
	}
	return decoded.Embeddings, nil
}
