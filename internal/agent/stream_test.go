package agent

import (
	"errors"
	"strings"
	"testing"

	"github.com/nugget/cinebot/internal/llm"
)

func collect(t *testing.T, loop *Loop, text string) ([]StreamEvent, error) {
	t.Helper()
	var events []StreamEvent
	for ev, err := range loop.Stream(t.Context(), llm.UserMessage(text)) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func TestStream_AccumulatesChunks(t *testing.T) {
	client := &mockLLM{responses: []llm.Message{assistant("Hello!")}}
	loop, _ := newTestLoop(t, client)

	events, err := collect(t, loop, "hi")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var text strings.Builder
	for _, ev := range events {
		if ev.Kind == EventChunk {
			text.WriteString(ev.Chunk.Content)
		}
	}
	if text.String() != "Hello!" {
		t.Errorf("streamed text = %q", text.String())
	}
	last := events[len(events)-1]
	if last.Kind != EventDone || last.Result.Content != "Hello!" {
		t.Errorf("last event = %+v", last)
	}

	msgs := loop.Conversation().Messages()
	if len(msgs) != 3 || msgs[2].Content != "Hello!" {
		t.Errorf("history = %+v", msgs)
	}
}

func TestStream_ToolRound(t *testing.T) {
	client := &mockLLM{responses: []llm.Message{
		assistant("Checking. ", toolCall("c1", "get_movie_info", "Heat"), toolCall("c2", "get_movie_info", "Ronin")),
		assistant("Both are great.", toolCall("c3", "get_movie_info", "Thief")),
	}}
	loop, rt := newTestLoop(t, client)

	events, err := collect(t, loop, "compare Heat and Ronin")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var toolEvents []*ToolResult
	for _, ev := range events {
		if ev.Kind == EventToolResult {
			toolEvents = append(toolEvents, ev.Tool)
		}
	}
	if len(toolEvents) != 2 || toolEvents[0].Content != "result:Heat" || toolEvents[1].Content != "result:Ronin" {
		t.Errorf("tool events = %+v", toolEvents)
	}
	if client.callCount() != 2 {
		t.Errorf("model calls = %d, want 2", client.callCount())
	}
	if len(rt.queries) != 2 {
		t.Errorf("tool invocations = %v", rt.queries)
	}
	if !client.calls[0].Stream || !client.calls[1].Stream {
		t.Error("both calls should use the streaming mode")
	}

	msgs := loop.Conversation().Messages()
	// system, user, assistant(2 calls), tool, tool, assistant(final)
	if len(msgs) != 6 {
		t.Fatalf("history length = %d, want 6", len(msgs))
	}
	first := msgs[2]
	if first.Content != "Checking. " || len(first.ToolCalls) != 2 {
		t.Errorf("accumulated first response = %+v", first)
	}
	if first.ToolCalls[1].Function.Arguments["query"] != "Ronin" {
		t.Errorf("merged arguments = %v", first.ToolCalls[1].Function.Arguments)
	}
	if msgs[5].Content != "Both are great." {
		t.Errorf("final = %q", msgs[5].Content)
	}
}

func TestStream_EarlyStopDoesNotAppend(t *testing.T) {
	client := &mockLLM{responses: []llm.Message{assistant("A long answer")}}
	loop, _ := newTestLoop(t, client)

	n := 0
	for ev, err := range loop.Stream(t.Context(), llm.UserMessage("hi")) {
		if err != nil {
			t.Fatal(err)
		}
		if ev.Kind == EventChunk {
			n++
		}
		if n == 3 {
			break
		}
	}

	msgs := loop.Conversation().Messages()
	if len(msgs) != 2 {
		t.Errorf("history length = %d, want system + user only", len(msgs))
	}
	for _, m := range msgs {
		if m.Role == llm.RoleAssistant {
			t.Errorf("partial response appended: %q", m.Content)
		}
	}
}

func TestStream_StopAfterToolEventAnswersEveryCall(t *testing.T) {
	client := &mockLLM{responses: []llm.Message{
		assistant("", toolCall("c1", "get_movie_info", "Heat"), toolCall("c2", "get_movie_info", "Ronin")),
		assistant("unused"),
	}}
	loop, rt := newTestLoop(t, client)

	for ev, err := range loop.Stream(t.Context(), llm.UserMessage("compare")) {
		if err != nil {
			t.Fatal(err)
		}
		if ev.Kind == EventToolResult {
			break
		}
	}

	if len(rt.queries) != 2 {
		t.Errorf("tool invocations = %v, want both", rt.queries)
	}
	if client.callCount() != 1 {
		t.Errorf("model calls = %d, want 1", client.callCount())
	}

	calls, results := 0, 0
	for _, m := range loop.Conversation().Messages() {
		calls += len(m.ToolCalls)
		if m.Role == llm.RoleTool {
			results++
		}
	}
	if calls != 2 || results != calls {
		t.Errorf("history tool calls = %d, tool results = %d", calls, results)
	}
}

func TestStream_LazyStart(t *testing.T) {
	client := &mockLLM{responses: []llm.Message{assistant("x")}}
	loop, _ := newTestLoop(t, client)

	seq := loop.Stream(t.Context(), llm.UserMessage("hi"))
	if client.callCount() != 0 || loop.Conversation().Len() != 1 {
		t.Error("Stream did work before iteration began")
	}
	for range seq {
	}
	if client.callCount() != 1 {
		t.Errorf("model calls = %d", client.callCount())
	}
}

func TestStream_ModelError(t *testing.T) {
	client := &mockLLM{err: errors.New("stream broke")}
	loop, _ := newTestLoop(t, client)

	events, err := collect(t, loop, "hi")
	if err == nil || !strings.Contains(err.Error(), "stream broke") {
		t.Errorf("err = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events before error = %d", len(events))
	}
}

func TestEventKindString(t *testing.T) {
	for kind, want := range map[EventKind]string{EventChunk: "chunk", EventToolResult: "tool_result", EventDone: "done", EventKind(9): "unknown"} {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
