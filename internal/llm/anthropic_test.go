package llm

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConvertToAnthropic(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "You are a movie assistant."},
		{Role: RoleUser, Content: "Hello!"},
		{Role: RoleAssistant, Content: "Hi there!"},
		{Role: RoleUser, Content: "Recommend a film."},
	}

	result, system := convertToAnthropic(messages)

	if system != "You are a movie assistant." {
		t.Errorf("expected system prompt extracted, got %q", system)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 messages (no system), got %d", len(result))
	}
	if result[0].Role != RoleUser {
		t.Errorf("expected first message to be user, got %s", result[0].Role)
	}
}

func TestConvertToAnthropic_ToolResultsGrouped(t *testing.T) {
	a := ToolCall{ID: "toolu_a", Function: ToolFunction{Name: "search_movie", Arguments: map[string]any{"title": "Dune"}}}
	b := ToolCall{ID: "toolu_b", Function: ToolFunction{Name: "search_movie", Arguments: map[string]any{"title": "Heat"}}}
	messages := []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "two films"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{a, b}},
		ToolMessage(a, "dune result"),
		ToolMessage(b, "heat result"),
	}

	result, _ := convertToAnthropic(messages)
	if len(result) != 3 { // user, assistant with tool_use, user with both tool_results
		t.Fatalf("expected 3 messages, got %d", len(result))
	}

	uses, ok := result[1].Content.([]anthropicContent)
	if !ok || len(uses) != 2 || uses[0].Type != "tool_use" || uses[1].ID != "toolu_b" {
		t.Fatalf("assistant blocks = %+v", result[1].Content)
	}

	results, ok := result[2].Content.([]anthropicContent)
	if !ok {
		t.Fatal("expected tool result content to be []anthropicContent")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 tool_result blocks, got %d", len(results))
	}
	if results[0].ToolUseID != "toolu_a" || results[1].ToolUseID != "toolu_b" {
		t.Errorf("tool_result order = %s, %s", results[0].ToolUseID, results[1].ToolUseID)
	}
}

func TestConvertToAnthropic_OrphanToolResultBecomesText(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleTool, Content: `{"found":true}`, ToolCallID: "gone", ToolName: "search_movie"},
		{Role: RoleAssistant, Content: "It is great."},
	}

	result, _ := convertToAnthropic(messages)
	blocks, ok := result[0].Content.([]anthropicContent)
	if !ok || len(blocks) != 1 {
		t.Fatalf("orphan content = %+v", result[0].Content)
	}
	if blocks[0].Type != "text" {
		t.Errorf("orphan tool result type = %q, want text", blocks[0].Type)
	}
}

func TestConvertToAnthropic_ImageParts(t *testing.T) {
	result, _ := convertToAnthropic([]Message{
		UserMessage("which film?", "data:image/jpeg;base64,QUJD", "https://img.example/a.png"),
	})
	blocks, ok := result[0].Content.([]anthropicContent)
	if !ok || len(blocks) != 3 {
		t.Fatalf("blocks = %+v", result[0].Content)
	}
	if blocks[1].Source == nil || blocks[1].Source.Type != "base64" || blocks[1].Source.MediaType != "image/jpeg" {
		t.Errorf("data URL source = %+v", blocks[1].Source)
	}
	if blocks[2].Source == nil || blocks[2].Source.Type != "url" {
		t.Errorf("http URL source = %+v", blocks[2].Source)
	}
}

func TestConvertToolsToAnthropic(t *testing.T) {
	tools := []map[string]any{{
		"type": "function",
		"function": map[string]any{
			"name":        "search_movie",
			"description": "Look up a film",
			"parameters":  map[string]any{"type": "object"},
		},
	}}
	got := convertToolsToAnthropic(tools)
	if len(got) != 1 || got[0].Name != "search_movie" || got[0].Description != "Look up a film" {
		t.Errorf("converted = %+v", got)
	}
}

func TestAnthropicStream_AccumulatesToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "k" {
			t.Errorf("missing api key header")
		}
		events := []string{
			`{"type":"message_start","message":{"model":"claude-test","usage":{"input_tokens":50}}}`,
			`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Checking "}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"now."}}`,
			`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"search_movie"}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"title\": "}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"Alien\"}"}}`,
			`{"type":"content_block_stop","index":1}`,
			`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":9}}`,
			`{"type":"message_stop"}`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "event: x\ndata: %s\n\n", e)
		}
	}))
	defer srv.Close()

	c := NewAnthropicClient("k", nil)
	c.url = srv.URL

	var acc Accumulator
	for chunk, err := range c.Stream(t.Context(), "claude-test", []Message{UserMessage("alien?")}, nil) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		acc.Add(chunk)
	}

	resp := acc.Response()
	if resp.Message.Content != "Checking now." {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "toolu_1" || tc.Function.Name != "search_movie" || tc.Function.Arguments["title"] != "Alien" {
		t.Errorf("tool call = %+v", tc)
	}
	if resp.Model != "claude-test" || resp.InputTokens != 50 || resp.OutputTokens != 9 {
		t.Errorf("metadata = %+v", resp)
	}
	if !acc.Done() {
		t.Error("message_stop not mapped to Done")
	}
}

func TestAnthropicStream_ErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	c := NewAnthropicClient("k", nil)
	c.url = srv.URL

	var gotErr error
	for _, err := range c.Stream(t.Context(), "m", nil, nil) {
		gotErr = err
	}
	if gotErr == nil {
		t.Fatal("expected stream error")
	}
}

func TestAnthropicChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"role":"assistant","model":"claude-test","content":[
			{"type":"text","text":"Sure."},
			{"type":"tool_use","id":"toolu_9","name":"add_to_watchlist","input":{"title":"Heat"}}],
			"usage":{"input_tokens":5,"output_tokens":2}}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient("k", nil)
	c.url = srv.URL

	resp, err := c.Chat(t.Context(), "claude-test", []Message{UserMessage("add heat")}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "Sure." || len(resp.Message.ToolCalls) != 1 {
		t.Errorf("response = %+v", resp.Message)
	}
	if resp.Message.ToolCalls[0].ID != "toolu_9" {
		t.Errorf("tool call id = %q", resp.Message.ToolCalls[0].ID)
	}
}
