package llm

import (
	"context"
	"iter"
)

// Client is the interface that all model providers implement.
type Client interface {
	// Chat sends a blocking chat request and returns the full response.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Stream sends a streaming chat request. The request is issued when
	// iteration begins and each chunk is read from the wire only when
	// pulled. A transport or decode failure is yielded once as a
	// non-nil error, after which the sequence ends. Stopping iteration
	// early releases the underlying connection.
	Stream(ctx context.Context, model string, messages []Message, tools []map[string]any) iter.Seq2[Chunk, error]

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// errSeq returns a sequence that yields a single error.
func errSeq(err error) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		yield(Chunk{}, err)
	}
}
