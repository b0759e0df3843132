package agent

import (
	"context"
	"iter"

	"github.com/nugget/cinebot/internal/llm"
)

// EventKind identifies a StreamEvent.
type EventKind int

const (
	// EventChunk carries one model chunk.
	EventChunk EventKind = iota
	// EventToolResult carries the result of one executed tool.
	EventToolResult
	// EventDone ends a completed turn and carries its Result.
	EventDone
)

// String returns the wire name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventChunk:
		return "chunk"
	case EventToolResult:
		return "tool_result"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// StreamEvent is one item of a streamed turn.
type StreamEvent struct {
	Kind   EventKind
	Chunk  llm.Chunk   // EventChunk
	Tool   *ToolResult // EventToolResult
	Result *Result     // EventDone
}

// Stream processes one user message in incremental mode. Nothing
// happens until iteration begins. Model chunks are yielded as they are
// pulled from the provider and folded into a single response, which is
// appended to the conversation only once its chunk sequence is
// exhausted. Tool calls all run before their results are yielded.
// Stopping iteration early therefore leaves no partial response or
// unanswered tool call behind. A model failure is yielded once as an error and ends
// the sequence.
func (l *Loop) Stream(ctx context.Context, msg llm.Message) iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		ctx, span, start := l.startTurn(ctx, ModeStream)
		defer span.End()

		l.appendUser(msg)
		res := &Result{}

		resp, ok, err := l.streamPhase(ctx, phaseFirst, res, yield)
		if err != nil {
			yield(StreamEvent{}, l.failTurn(span, err))
			return
		}
		if !ok {
			return
		}
		l.conv.Append(resp.Message)

		if len(resp.Message.ToolCalls) > 0 {
			// Every result is in the conversation before the first event,
			// so a consumer leaving early cannot strand a tool call.
			res.ToolResults = l.executeTools(ctx, resp.Message.ToolCalls)
			for i := range res.ToolResults {
				if !yield(StreamEvent{Kind: EventToolResult, Tool: &res.ToolResults[i]}, nil) {
					return
				}
			}

			resp, ok, err = l.streamPhase(ctx, phaseFinal, res, yield)
			if err != nil {
				yield(StreamEvent{}, l.failTurn(span, err))
				return
			}
			if !ok {
				return
			}
			l.conv.Append(resp.Message)
			l.logDroppedCalls(resp.Message)
		}

		res.Content = resp.Message.Content
		l.finishTurn(span, ModeStream, start, res)
		yield(StreamEvent{Kind: EventDone, Result: res}, nil)
	}
}

// streamPhase runs one streamed model call, forwarding each chunk. ok is
// false when the consumer stopped iteration.
func (l *Loop) streamPhase(ctx context.Context, phase string, res *Result, yield func(StreamEvent, error) bool) (resp *llm.ChatResponse, ok bool, err error) {
	window := l.conv.Window(l.cfg.Window)
	l.logger.Debug("calling model",
		"mode", ModeStream, "phase", phase, "model", l.cfg.Model,
		"messages", len(window), "tools", len(l.tools.Names()))
	l.metrics.ModelCall(ModeStream, phase)

	var acc llm.Accumulator
	for chunk, err := range l.client.Stream(ctx, l.cfg.Model, window, l.tools.List()) {
		if err != nil {
			return nil, false, err
		}
		acc.Add(chunk)
		if !yield(StreamEvent{Kind: EventChunk, Chunk: chunk}, nil) {
			l.logger.Debug("stream consumer stopped", "phase", phase)
			return nil, false, nil
		}
	}

	resp = acc.Response()
	res.record(resp)
	return resp, true, nil
}
