package documents

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/nugget/cinebot/internal/llm"
)

// keywordEmbedder maps text onto counts of a few fixed words, so
// similarity follows topic.
type keywordEmbedder struct {
	calls int
	err   error
}

var keywords = []string{"heist", "space", "love"}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		v := make([]float32, len(keywords))
		for j, kw := range keywords {
			v[j] = float32(strings.Count(lower, kw))
		}
		out[i] = v
	}
	return out, nil
}

type recordingClient struct {
	requests [][]llm.Message
	answer   string
}

func (c *recordingClient) Chat(_ context.Context, model string, messages []llm.Message, _ []map[string]any) (*llm.ChatResponse, error) {
	c.requests = append(c.requests, messages)
	return &llm.ChatResponse{Model: model, Message: llm.Message{Role: llm.RoleAssistant, Content: " " + c.answer + "\n"}}, nil
}

func (c *recordingClient) Stream(context.Context, string, []llm.Message, []map[string]any) iter.Seq2[llm.Chunk, error] {
	return func(yield func(llm.Chunk, error) bool) {}
}

func (c *recordingClient) Ping(context.Context) error { return nil }

func newTestService(t *testing.T, emb *keywordEmbedder, client llm.Client) *Service {
	t.Helper()
	idx, err := OpenMemoryIndex("sqlite")
	if err != nil {
		t.Fatalf("OpenMemoryIndex: %v", err)
	}
	svc := NewService(Config{ChunkSize: 60, ChunkOverlap: 10, TopK: 1, Model: "test-model"}, idx, emb, client, nil)
	t.Cleanup(func() { svc.Close() })
	return svc
}

const script = `The crew plans the heist at dawn. Every heist needs a getaway driver.

Far away, the space station drifts. The space crew waits for rescue.

At the end, a love letter arrives. It is a story of love after all.`

func TestService_AskBeforeLoad(t *testing.T) {
	emb := &keywordEmbedder{}
	svc := newTestService(t, emb, &recordingClient{})

	if svc.Ready() {
		t.Error("Ready before load")
	}
	if _, err := svc.Ask(t.Context(), "anything?"); !errors.Is(err, ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times before load", emb.calls)
	}
}

func TestService_LoadAndAsk(t *testing.T) {
	client := &recordingClient{answer: "They drift in space."}
	svc := newTestService(t, &keywordEmbedder{}, client)

	n, err := svc.Load(t.Context(), "script.txt", []byte(script))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n < 3 {
		t.Errorf("chunks = %d, want at least 3", n)
	}
	if !svc.Ready() || svc.DocumentName() != "script.txt" {
		t.Errorf("after load: ready=%v name=%q", svc.Ready(), svc.DocumentName())
	}

	answer, err := svc.Ask(t.Context(), "What happens in space?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != "They drift in space." {
		t.Errorf("answer = %q", answer)
	}

	if len(client.requests) != 1 {
		t.Fatalf("model calls = %d, want 1", len(client.requests))
	}
	req := client.requests[0]
	if req[0].Role != llm.RoleSystem || !strings.Contains(req[0].Content, "space station") {
		t.Errorf("system prompt missing the relevant excerpt: %q", req[0].Content)
	}
	if strings.Contains(req[0].Content, "love letter") {
		t.Error("system prompt included an irrelevant excerpt with top_k 1")
	}
	if req[1].Role != llm.RoleUser || req[1].Content != "What happens in space?" {
		t.Errorf("user message = %+v", req[1])
	}
}

func TestService_LoadReplacesDocument(t *testing.T) {
	svc := newTestService(t, &keywordEmbedder{}, &recordingClient{})

	if _, err := svc.Load(t.Context(), "a.txt", []byte(script)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Load(t.Context(), "b.txt", []byte("A short love story.")); err != nil {
		t.Fatal(err)
	}
	if svc.DocumentName() != "b.txt" {
		t.Errorf("name = %q, want b.txt", svc.DocumentName())
	}
	if n, _ := svc.index.Count(t.Context()); n != 1 {
		t.Errorf("chunks after replace = %d, want 1", n)
	}
	if name, _ := svc.index.DocumentName(t.Context()); name != "b.txt" {
		t.Errorf("index name = %q", name)
	}
}

func TestService_FailedLoadKeepsPrevious(t *testing.T) {
	emb := &keywordEmbedder{}
	svc := newTestService(t, emb, &recordingClient{})

	if _, err := svc.Load(t.Context(), "a.txt", []byte(script)); err != nil {
		t.Fatal(err)
	}
	emb.err = errors.New("embedder down")
	if _, err := svc.Load(t.Context(), "b.txt", []byte("other")); err == nil {
		t.Fatal("expected error")
	}
	if _, err := svc.Load(t.Context(), "c.pdf", []byte("%PDF-1.7")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("truncated pdf err = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := svc.Load(t.Context(), "d.txt", []byte("   ")); err == nil {
		t.Error("expected error for empty document")
	}
	if svc.DocumentName() != "a.txt" {
		t.Errorf("name = %q, want a.txt kept", svc.DocumentName())
	}
}

func TestIndex_VectorRoundTrip(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 3e-7}
	got := decodeVector(encodeVector(v))
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("decode = %v, want %v", got, v)
		}
	}
}

func TestIndex_ReplaceLengthMismatch(t *testing.T) {
	idx, err := OpenMemoryIndex("sqlite")
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	if err := idx.Replace(t.Context(), "x", []string{"a", "b"}, [][]float32{{1}}); err == nil {
		t.Error("expected error for mismatched lengths")
	}
	if name, err := idx.DocumentName(t.Context()); err != nil || name != "" {
		t.Errorf("DocumentName = %q, %v; want empty", name, err)
	}
}
