package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/cinebot/internal/httpkit"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
	anthropicMaxTokens  = 4096
)

// AnthropicClient is a client for the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &AnthropicClient{
		apiKey: apiKey,
		url:    anthropicAPIURL,
		logger: logger.With("provider", "anthropic"),
		httpClient: httpkit.NewClient(
			// Streams are long-lived; ctx controls cancellation.
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream,omitempty"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []anthropicContent
}

type anthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     any             `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"` // for tool_result
	Source    *anthropicImage `json:"source,omitempty"`
}

type anthropicImage struct {
	Type      string `json:"type"` // base64 or url
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicStreamEvent struct {
	Type         string             `json:"type"`
	Index        int                `json:"index,omitempty"`
	ContentBlock *anthropicContent  `json:"content_block,omitempty"`
	Delta        *anthropicDelta    `json:"delta,omitempty"`
	Message      *anthropicResponse `json:"message,omitempty"`
	Usage        *anthropicUsage    `json:"usage,omitempty"`
	Error        *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type anthropicDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// Chat sends a blocking chat request.
func (c *AnthropicClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	resp, err := c.post(ctx, model, messages, tools, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	result := convertFromAnthropic(&wire)

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", result.Message.Content)
	return result, nil
}

// Stream sends a streaming chat request and yields a chunk per
// server-sent event that carries text, tool-call fragments, or usage.
func (c *AnthropicClient) Stream(ctx context.Context, model string, messages []Message, tools []map[string]any) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		resp, err := c.post(ctx, model, messages, tools, true)
		if err != nil {
			yield(Chunk{}, err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()

			// SSE format: "event: <type>" followed by "data: <json>"
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				c.logger.Debug("skipping malformed stream event", "error", err)
				continue
			}

			chunk, ok, err := streamEventChunk(&event)
			if err != nil {
				yield(Chunk{}, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
			if chunk.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield(Chunk{}, fmt.Errorf("read stream: %w", err))
		}
	}
}

// streamEventChunk maps one SSE event to a chunk. ok is false for
// events that carry nothing the accumulator needs.
func streamEventChunk(event *anthropicStreamEvent) (chunk Chunk, ok bool, err error) {
	switch event.Type {
	case "message_start":
		if event.Message == nil {
			return Chunk{}, false, nil
		}
		return Chunk{
			Model:       event.Message.Model,
			InputTokens: event.Message.Usage.InputTokens,
		}, true, nil

	case "content_block_start":
		if event.ContentBlock == nil || event.ContentBlock.Type != "tool_use" {
			return Chunk{}, false, nil
		}
		return Chunk{ToolCalls: []ToolCallDelta{{
			Index: event.Index,
			ID:    event.ContentBlock.ID,
			Name:  event.ContentBlock.Name,
		}}}, true, nil

	case "content_block_delta":
		if event.Delta == nil {
			return Chunk{}, false, nil
		}
		switch event.Delta.Type {
		case "text_delta":
			return Chunk{Content: event.Delta.Text}, true, nil
		case "input_json_delta":
			return Chunk{ToolCalls: []ToolCallDelta{{
				Index:     event.Index,
				Arguments: event.Delta.PartialJSON,
			}}}, true, nil
		}
		return Chunk{}, false, nil

	case "message_delta":
		if event.Usage == nil {
			return Chunk{}, false, nil
		}
		return Chunk{OutputTokens: event.Usage.OutputTokens}, true, nil

	case "message_stop":
		return Chunk{Done: true}, true, nil

	case "error":
		msg := "unknown stream error"
		if event.Error != nil {
			msg = event.Error.Type + ": " + event.Error.Message
		}
		return Chunk{}, false, fmt.Errorf("anthropic stream: %s", msg)
	}
	return Chunk{}, false, nil
}

func (c *AnthropicClient) post(ctx context.Context, model string, messages []Message, tools []map[string]any, stream bool) (*http.Response, error) {
	anthropicMsgs, systemPrompt := convertToAnthropic(messages)
	anthropicTools := convertToolsToAnthropic(tools)

	c.logger.Debug("preparing request",
		"model", model,
		"messages", len(anthropicMsgs),
		"tools", len(anthropicTools),
		"stream", stream,
		"system_len", len(systemPrompt),
	)

	req := anthropicRequest{
		Model:     model,
		Messages:  anthropicMsgs,
		System:    systemPrompt,
		MaxTokens: anthropicMaxTokens,
		Stream:    stream,
		Tools:     anthropicTools,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	resp, err := c.do(ctx, jsonData)
	if err != nil {
		return nil, err
	}
	if err := httpkit.CheckStatus(resp); err != nil {
		c.logger.Error("API error", "error", err)
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}
	return resp, nil
}

func (c *AnthropicClient) do(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Ping sends a one-token request to verify the API key.
func (c *AnthropicClient) Ping(ctx context.Context) error {
	body, err := json.Marshal(anthropicRequest{
		Model:     "claude-3-5-haiku-latest",
		Messages:  []anthropicMessage{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.do(ctx, body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		httpkit.DrainAndClose(resp.Body, 4096)
		return fmt.Errorf("invalid API key")
	}
	if err := httpkit.CheckStatus(resp); err != nil {
		return err
	}
	httpkit.DrainAndClose(resp.Body, 64*1024)
	return nil
}

// convertToAnthropic converts messages to Anthropic format, lifting
// system messages into the separate system prompt. Consecutive tool
// results share one user message. A tool result whose tool_use is not
// in the request (the window can cut it off) is sent as plain text,
// since the API rejects unmatched tool_result blocks.
func convertToAnthropic(messages []Message) ([]anthropicMessage, string) {
	var systemParts []string
	var result []anthropicMessage
	seenToolUse := make(map[string]bool)

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, msg.Content)

		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				result = append(result, anthropicMessage{Role: RoleAssistant, Content: msg.Content})
				continue
			}
			var blocks []anthropicContent
			if msg.Content != "" {
				blocks = append(blocks, anthropicContent{Type: "text", Text: msg.Content})
			}
			for i, tc := range msg.ToolCalls {
				args := tc.Function.Arguments
				if args == nil {
					args = map[string]any{}
				}
				id := tc.ID
				if id == "" {
					id = fmt.Sprintf("toolu_%s_%d", tc.Function.Name, i)
				}
				seenToolUse[id] = true
				blocks = append(blocks, anthropicContent{
					Type:  "tool_use",
					ID:    id,
					Name:  tc.Function.Name,
					Input: args,
				})
			}
			result = append(result, anthropicMessage{Role: RoleAssistant, Content: blocks})

		case RoleTool:
			block := anthropicContent{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.Content,
			}
			if !seenToolUse[msg.ToolCallID] {
				block = anthropicContent{
					Type: "text",
					Text: fmt.Sprintf("Result of %s: %s", msg.ToolName, msg.Content),
				}
			}
			if n := len(result); n > 0 && result[n-1].Role == RoleUser {
				if prev, ok := result[n-1].Content.([]anthropicContent); ok && isToolResultMessage(prev) {
					result[n-1].Content = append(prev, block)
					continue
				}
			}
			result = append(result, anthropicMessage{Role: RoleUser, Content: []anthropicContent{block}})

		case RoleUser:
			if len(msg.Parts) == 0 {
				result = append(result, anthropicMessage{Role: RoleUser, Content: msg.Content})
				continue
			}
			result = append(result, anthropicMessage{Role: RoleUser, Content: userBlocks(msg.Parts)})
		}
	}

	return result, strings.Join(systemParts, "\n\n")
}

func isToolResultMessage(blocks []anthropicContent) bool {
	for _, b := range blocks {
		if b.Type == "tool_result" {
			return true
		}
	}
	return false
}

func userBlocks(parts []Part) []anthropicContent {
	blocks := make([]anthropicContent, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case PartText:
			blocks = append(blocks, anthropicContent{Type: "text", Text: p.Text})
		case PartImage:
			blocks = append(blocks, anthropicContent{Type: "image", Source: imageSource(p.URL)})
		}
	}
	return blocks
}

func imageSource(url string) *anthropicImage {
	if payload, ok := dataURLPayload(url); ok {
		mediaType := strings.TrimPrefix(strings.SplitN(url, ";", 2)[0], "data:")
		return &anthropicImage{Type: "base64", MediaType: mediaType, Data: payload}
	}
	return &anthropicImage{Type: "url", URL: url}
}

// convertToolsToAnthropic converts OpenAI-format tool definitions to Anthropic format.
func convertToolsToAnthropic(tools []map[string]any) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}

	var result []anthropicTool
	for _, tool := range tools {
		fn, ok := tool["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		params := fn["parameters"]
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, anthropicTool{
			Name:        name,
			Description: desc,
			InputSchema: params,
		})
	}
	return result
}

// convertFromAnthropic converts a blocking response to the internal format.
func convertFromAnthropic(resp *anthropicResponse) *ChatResponse {
	var content strings.Builder
	var toolCalls []ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			args, ok := block.Input.(map[string]any)
			if !ok {
				args = map[string]any{}
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:       block.ID,
				Function: ToolFunction{Name: block.Name, Arguments: args},
			})
		}
	}

	return &ChatResponse{
		Model: resp.Model,
		Message: Message{
			Role:      RoleAssistant,
			Content:   content.String(),
			ToolCalls: toolCalls,
		},
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
}
