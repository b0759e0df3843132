package session

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nugget/cinebot/internal/agent"
	"github.com/nugget/cinebot/internal/llm"
	"github.com/nugget/cinebot/internal/movies"
	"github.com/nugget/cinebot/internal/persona"
	"github.com/nugget/cinebot/internal/usage"
	"github.com/nugget/cinebot/internal/watchlist"
)

// scriptedLLM asks to add a movie whenever the last user message starts
// with "add ", and otherwise answers "ok".
type scriptedLLM struct {
	mu    sync.Mutex
	calls int
}

func (c *scriptedLLM) respond(msgs []llm.Message) llm.Message {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	last := msgs[len(msgs)-1]
	if last.Role == llm.RoleUser && strings.HasPrefix(last.Content, "add ") {
		return llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
			ID:       "call_1",
			Function: llm.ToolFunction{Name: "add_to_watchlist", Arguments: map[string]any{"query": strings.TrimPrefix(last.Content, "add ")}},
		}}}
	}
	return llm.Message{Role: llm.RoleAssistant, Content: "ok"}
}

func (c *scriptedLLM) Chat(_ context.Context, model string, msgs []llm.Message, _ []map[string]any) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Model: model, Message: c.respond(msgs)}, nil
}

func (c *scriptedLLM) Stream(_ context.Context, _ string, msgs []llm.Message, _ []map[string]any) iter.Seq2[llm.Chunk, error] {
	return func(yield func(llm.Chunk, error) bool) {
		msg := c.respond(msgs)
		chunk := llm.Chunk{Content: msg.Content, Done: true}
		for i, tc := range msg.ToolCalls {
			chunk.ToolCalls = append(chunk.ToolCalls, llm.ToolCallDelta{
				Index: i, ID: tc.ID, Name: tc.Function.Name,
				Arguments: `{"query":"` + tc.Function.Arguments["query"].(string) + `"}`,
			})
		}
		yield(chunk, nil)
	}
}

func (c *scriptedLLM) Ping(context.Context) error { return nil }

type tableLookup map[string]movies.Record

func (t tableLookup) Search(_ context.Context, q string) (*movies.Record, error) {
	if rec, ok := t[strings.ToLower(q)]; ok {
		return &rec, nil
	}
	return nil, movies.ErrNotFound
}

type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(len(texts[i]) % 7)}
	}
	return out, nil
}

type usageLog struct {
	mu   sync.Mutex
	recs []usage.Record
	err  error
}

func (u *usageLog) Record(_ context.Context, rec usage.Record) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.recs = append(u.recs, rec)
	return u.err
}

func newFactory() *Factory {
	return &Factory{
		LLM: &scriptedLLM{},
		Movies: tableLookup{
			"heat":  {ID: 949, Title: "Heat", Genres: "Crime", Rating: 7.9, Runtime: 170},
			"ronin": {ID: 8195, Title: "Ronin", Genres: "Action", Rating: 6.9, Runtime: 122},
		},
		Agent:  agent.Config{Model: "test"},
		Driver: "sqlite",
	}
}

func TestSessions_AreIsolated(t *testing.T) {
	m := NewManager(newFactory(), time.Hour)
	a, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.Send(t.Context(), "add heat"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !a.Watchlist().Contains(949) {
		t.Error("session a should have Heat")
	}
	if b.Watchlist().Len() != 0 {
		t.Error("session b shares session a's watchlist")
	}
	if len(b.History()) != 1 {
		t.Errorf("session b history = %d messages, want 1", len(b.History()))
	}
}

func TestSession_Stream(t *testing.T) {
	s, err := newFactory().New("s1")
	if err != nil {
		t.Fatal(err)
	}

	var done *agent.Result
	for ev, err := range s.Stream(t.Context(), "add ronin") {
		if err != nil {
			t.Fatal(err)
		}
		if ev.Kind == agent.EventDone {
			done = ev.Result
		}
	}
	if done == nil || len(done.ToolResults) != 1 {
		t.Fatalf("done = %+v", done)
	}
	if !s.Watchlist().Contains(8195) {
		t.Error("stream turn did not add Ronin")
	}

	// The turn lock is released once iteration ends.
	if _, err := s.Send(t.Context(), "thanks"); err != nil {
		t.Fatal(err)
	}
}

func TestSession_RecordsUsage(t *testing.T) {
	rec := &usageLog{}
	f := newFactory()
	f.Usage = rec
	s, err := f.New("s1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Send(t.Context(), "add heat"); err != nil {
		t.Fatal(err)
	}
	for _, err := range s.Stream(t.Context(), "thanks") {
		if err != nil {
			t.Fatal(err)
		}
	}

	if len(rec.recs) != 2 {
		t.Fatalf("records = %d, want 2", len(rec.recs))
	}
	first, second := rec.recs[0], rec.recs[1]
	if first.SessionID != "s1" || first.Mode != agent.ModeBlocking || first.ModelCalls != 2 || first.ToolCalls != 1 {
		t.Errorf("blocking record = %+v", first)
	}
	if second.Mode != agent.ModeStream || second.ModelCalls != 1 || second.ToolCalls != 0 {
		t.Errorf("streaming record = %+v", second)
	}
}

func TestSession_UsageFailureKeepsReply(t *testing.T) {
	f := newFactory()
	f.Usage = &usageLog{err: errors.New("disk full")}
	s, _ := f.New("s1")

	res, err := s.Send(t.Context(), "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Content != "ok" {
		t.Errorf("content = %q", res.Content)
	}
}

func TestSession_ChangePersona(t *testing.T) {
	s, _ := newFactory().New("s1")
	s.Send(t.Context(), "hello")

	if _, err := s.ChangePersona("Pirate"); !errors.Is(err, persona.ErrUnknown) {
		t.Errorf("err = %v, want ErrUnknown", err)
	}
	if len(s.History()) != 3 {
		t.Error("failed persona change altered history")
	}

	p, err := s.ChangePersona(persona.FilmCritic)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != persona.FilmCritic || s.Persona().Name != persona.FilmCritic {
		t.Errorf("persona = %q", s.Persona().Name)
	}
	if len(s.History()) != 1 {
		t.Errorf("history after switch = %d, want 1", len(s.History()))
	}
}

func TestSession_Reset(t *testing.T) {
	f := newFactory()
	f.Persona = persona.FilmCritic
	s, _ := f.New("s1")
	s.Send(t.Context(), "hello")
	s.Reset()
	if len(s.History()) != 1 || s.Persona().Name != persona.FilmCritic {
		t.Errorf("after reset: %d messages, persona %q", len(s.History()), s.Persona().Name)
	}
}

func TestSession_ImportWatchlist(t *testing.T) {
	s, _ := newFactory().New("s1")
	if _, err := s.ImportWatchlist([]byte(`[{"id":1,"title":"A"}]`)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ImportWatchlist([]byte(`{broken`)); !errors.Is(err, watchlist.ErrInvalidImport) {
		t.Errorf("err = %v", err)
	}
	if s.Watchlist().Len() != 1 {
		t.Error("failed import changed the watchlist")
	}
}

func TestSession_Documents(t *testing.T) {
	s, _ := newFactory().New("no-docs")
	if _, err := s.LoadDocument(t.Context(), "a.txt", []byte("text")); !errors.Is(err, ErrDocumentsDisabled) {
		t.Errorf("err = %v, want ErrDocumentsDisabled", err)
	}

	f := newFactory()
	f.Embedder = constEmbedder{}
	s, err := f.New("docs")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	n, err := s.LoadDocument(t.Context(), "heat.md", []byte("# Heat\n\nA heist film."))
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if n != 1 || s.DocumentName() != "heat.md" {
		t.Errorf("chunks = %d, name = %q", n, s.DocumentName())
	}
}

func TestManager_GetEnd(t *testing.T) {
	m := NewManager(newFactory(), time.Hour)
	s, _ := m.Create()

	got, err := m.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if m.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d", m.ActiveCount())
	}
	if err := m.End(s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after End err = %v", err)
	}
	if err := m.End(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second End err = %v", err)
	}
}

func TestManager_JanitorExpiresIdle(t *testing.T) {
	m := NewManager(newFactory(), 30*time.Millisecond)
	s, _ := m.Create()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(120 * time.Millisecond)
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("idle session still open: %v", err)
	}
	if m.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d", m.ActiveCount())
	}
}

func TestManager_CloseAll(t *testing.T) {
	m := NewManager(newFactory(), time.Hour)
	m.Create()
	m.Create()
	m.CloseAll()
	if m.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d", m.ActiveCount())
	}
}
