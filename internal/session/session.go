// Package session builds isolated chat sessions and tracks the open
// ones. Each session owns its conversation, watchlist, document index,
// tool registry, and agent loop; only stateless services are shared.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/cinebot/internal/agent"
	"github.com/nugget/cinebot/internal/conversation"
	"github.com/nugget/cinebot/internal/documents"
	"github.com/nugget/cinebot/internal/embeddings"
	"github.com/nugget/cinebot/internal/llm"
	"github.com/nugget/cinebot/internal/movies"
	"github.com/nugget/cinebot/internal/observability"
	"github.com/nugget/cinebot/internal/persona"
	"github.com/nugget/cinebot/internal/tools"
	"github.com/nugget/cinebot/internal/usage"
	"github.com/nugget/cinebot/internal/watchlist"
)

// ErrDocumentsDisabled is returned by LoadDocument when no embedder is
// configured.
var ErrDocumentsDisabled = errors.New("document questions are disabled")

// UsageRecorder persists the token usage of completed turns.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Factory holds the shared services and builds sessions from them.
type Factory struct {
	LLM      llm.Client
	Movies   movies.Lookup          // nil disables movie tools
	Cinema   tools.ScheduleSearcher // nil disables the schedule tool
	Embedder embeddings.Embedder    // nil disables document loading
	Usage    UsageRecorder          // nil disables usage accounting
	Agent    agent.Config
	Docs     documents.Config
	Driver   string // database/sql driver for document indexes
	Persona  string // default persona name
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// Session is one user's isolated chat. Turns are serialized.
type Session struct {
	ID        string
	CreatedAt time.Time

	turn  sync.Mutex
	loop  *agent.Loop
	conv  *conversation.State
	list  *watchlist.Watchlist
	docs  *documents.Service
	usage UsageRecorder
	log   *slog.Logger

	mu         sync.Mutex
	lastActive time.Time
}

// New builds a session with the given ID.
func (f *Factory) New(id string) (*Session, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", id)

	conv := conversation.New(persona.Lookup(f.Persona))
	list := watchlist.New()

	var docs *documents.Service
	svc := tools.Services{Movies: f.Movies, Watchlist: list, Cinema: f.Cinema}
	if f.Embedder != nil {
		driver := f.Driver
		if driver == "" {
			driver = "sqlite3"
		}
		idx, err := documents.OpenMemoryIndex(driver)
		if err != nil {
			return nil, fmt.Errorf("open document index: %w", err)
		}
		docs = documents.NewService(f.Docs, idx, f.Embedder, f.LLM, logger)
		svc.Documents = docs
	}

	registry, err := tools.NewSessionRegistry(svc, logger)
	if err != nil {
		if docs != nil {
			docs.Close()
		}
		return nil, err
	}

	now := time.Now()
	return &Session{
		ID:         id,
		CreatedAt:  now,
		loop:       agent.NewLoop(f.LLM, registry, conv, f.Agent, logger, f.Metrics),
		conv:       conv,
		list:       list,
		docs:       docs,
		usage:      f.Usage,
		log:        logger,
		lastActive: now,
	}, nil
}

func (s *Session) markActive() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the time of the session's last request.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Send runs a blocking turn.
func (s *Session) Send(ctx context.Context, text string, images ...string) (*agent.Result, error) {
	s.turn.Lock()
	defer s.turn.Unlock()
	s.markActive()
	res, err := s.loop.Run(s.turnContext(ctx), llm.UserMessage(text, images...))
	if err != nil {
		return nil, err
	}
	s.recordUsage(ctx, agent.ModeBlocking, res)
	return res, nil
}

// Stream runs an incremental turn. The session is held for the whole
// iteration.
func (s *Session) Stream(ctx context.Context, text string, images ...string) iter.Seq2[agent.StreamEvent, error] {
	return func(yield func(agent.StreamEvent, error) bool) {
		s.turn.Lock()
		defer s.turn.Unlock()
		s.markActive()
		for ev, err := range s.loop.Stream(s.turnContext(ctx), llm.UserMessage(text, images...)) {
			if err == nil && ev.Kind == agent.EventDone {
				s.recordUsage(ctx, agent.ModeStream, ev.Result)
			}
			if !yield(ev, err) {
				return
			}
		}
	}
}

func (s *Session) turnContext(ctx context.Context) context.Context {
	return tools.WithTurn(ctx, tools.Turn{SessionID: s.ID, Persona: s.conv.Persona().Name})
}

func (s *Session) recordUsage(ctx context.Context, mode string, res *agent.Result) {
	if s.usage == nil || res == nil {
		return
	}
	err := s.usage.Record(context.WithoutCancel(ctx), usage.Record{
		SessionID:    s.ID,
		Model:        res.Model,
		Mode:         mode,
		ModelCalls:   res.ModelCalls,
		ToolCalls:    len(res.ToolResults),
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
	})
	if err != nil {
		s.log.Warn("usage not recorded", "error", err)
	}
}

// History returns the full conversation, system message first.
func (s *Session) History() []llm.Message {
	s.markActive()
	return s.conv.Messages()
}

// Reset clears the conversation, keeping the persona.
func (s *Session) Reset() {
	s.turn.Lock()
	defer s.turn.Unlock()
	s.markActive()
	s.conv.Reset()
	s.log.Info("conversation reset")
}

// Persona returns the active persona.
func (s *Session) Persona() persona.Persona {
	return s.conv.Persona()
}

// ChangePersona switches to the persona called name and starts the
// conversation over.
func (s *Session) ChangePersona(name string) (persona.Persona, error) {
	p, err := persona.Get(name)
	if err != nil {
		return persona.Persona{}, err
	}
	s.turn.Lock()
	defer s.turn.Unlock()
	s.markActive()
	s.conv.ChangePersona(p.Name)
	s.log.Info("persona changed", "persona", p.Name)
	return p, nil
}

// Watchlist returns the session's watchlist.
func (s *Session) Watchlist() *watchlist.Watchlist {
	s.markActive()
	return s.list
}

// ImportWatchlist replaces the watchlist from a JSON array. On failure
// the watchlist is unchanged.
func (s *Session) ImportWatchlist(data []byte) (int, error) {
	s.markActive()
	n, err := s.list.Import(data)
	if err != nil {
		s.log.Warn("watchlist import failed", "error", err)
		return 0, err
	}
	s.log.Info("watchlist imported", "movies", n)
	return n, nil
}

// LoadDocument indexes a document for ask_movie_script.
func (s *Session) LoadDocument(ctx context.Context, name string, content []byte) (int, error) {
	if s.docs == nil {
		return 0, ErrDocumentsDisabled
	}
	s.markActive()
	return s.docs.Load(ctx, name, content)
}

// DocumentName returns the loaded document's name, or "".
func (s *Session) DocumentName() string {
	if s.docs == nil {
		return ""
	}
	return s.docs.DocumentName()
}

// Close releases the session's resources.
func (s *Session) Close() error {
	if s.docs != nil {
		return s.docs.Close()
	}
	return nil
}
