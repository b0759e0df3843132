// Package documents answers questions about a document uploaded to a
// session. A document is reduced to text, split into overlapping
// chunks, embedded, and stored in the session's index. Questions are
// answered by the model from the chunks closest to the question.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nugget/cinebot/internal/embeddings"
	"github.com/nugget/cinebot/internal/llm"
	"github.com/nugget/cinebot/internal/prompts"
)

// ErrNotReady is returned by Ask before any document has been loaded.
var ErrNotReady = errors.New("no document loaded")

// Config controls chunking and retrieval.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	Model        string // model that answers questions
}

// Service is one session's document QA service.
type Service struct {
	cfg      Config
	index    *Index
	embedder embeddings.Embedder
	client   llm.Client
	logger   *slog.Logger

	mu   sync.RWMutex
	name string
}

// NewService creates a document service over index.
func NewService(cfg Config, index *Index, embedder embeddings.Embedder, client llm.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 0
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	return &Service{
		cfg:      cfg,
		index:    index,
		embedder: embedder,
		client:   client,
		logger:   logger,
	}
}

// Load replaces the session's document with content. It returns the
// number of chunks indexed. On failure the previous document, if any,
// stays loaded.
func (s *Service) Load(ctx context.Context, name string, content []byte) (int, error) {
	text, err := Extract(name, content)
	if err != nil {
		return 0, err
	}
	chunks := Split(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document %s has no text", name)
	}

	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed %s: %w", name, err)
	}
	if err := s.index.Replace(ctx, name, chunks, vectors); err != nil {
		return 0, fmt.Errorf("index %s: %w", name, err)
	}

	s.mu.Lock()
	s.name = name
	s.mu.Unlock()

	s.logger.Info("document loaded", "document", name, "chunks", len(chunks), "chars", len(text))
	return len(chunks), nil
}

// Ready reports whether a document has been loaded.
func (s *Service) Ready() bool {
	return s.DocumentName() != ""
}

// DocumentName returns the loaded document's name, or "".
func (s *Service) DocumentName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Ask answers question from the loaded document.
func (s *Service) Ask(ctx context.Context, question string) (string, error) {
	name := s.DocumentName()
	if name == "" {
		return "", ErrNotReady
	}

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return "", fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return "", fmt.Errorf("embed question: got %d vectors", len(vectors))
	}

	excerpts, err := s.index.Search(ctx, vectors[0], s.cfg.TopK)
	if err != nil {
		return "", fmt.Errorf("search index: %w", err)
	}
	s.logger.Debug("document question", "document", name, "excerpts", len(excerpts))

	resp, err := s.client.Chat(ctx, s.cfg.Model, []llm.Message{
		{Role: llm.RoleSystem, Content: prompts.DocumentQAPrompt(name, excerpts)},
		{Role: llm.RoleUser, Content: question},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("answer question: %w", err)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// Close releases the session's index.
func (s *Service) Close() error {
	return s.index.Close()
}
