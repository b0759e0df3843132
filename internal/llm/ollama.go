package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/cinebot/internal/httpkit"
)

// OllamaClient is a client for the Ollama chat API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := httpkit.NewTransport()
	// Model load plus prompt evaluation can delay response headers.
	t.ResponseHeaderTimeout = 5 * time.Minute
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("provider", "ollama"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
}

type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Images    []string         `json:"images,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	ID       string `json:"id,omitempty"`
	Function struct {
		Index     int            `json:"index,omitempty"`
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"` // Ollama sends an object, not a string
	} `json:"function"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// Chat sends a blocking chat request to Ollama.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	resp, err := c.post(ctx, model, messages, tools, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if wire.Error != "" {
		return nil, fmt.Errorf("ollama: %s", wire.Error)
	}

	var acc Accumulator
	acc.Add(c.toChunk(&wire, 0))
	result := acc.Response()

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
	)
	return result, nil
}

// Stream sends a streaming chat request and yields NDJSON chunks as
// they are decoded.
func (c *OllamaClient) Stream(ctx context.Context, model string, messages []Message, tools []map[string]any) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		resp, err := c.post(ctx, model, messages, tools, true)
		if err != nil {
			yield(Chunk{}, err)
			return
		}
		defer resp.Body.Close()

		dec := json.NewDecoder(resp.Body)
		next := 0
		for {
			var wire ollamaResponse
			if err := dec.Decode(&wire); err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				yield(Chunk{}, fmt.Errorf("decode stream chunk: %w", err))
				return
			}
			if wire.Error != "" {
				yield(Chunk{}, fmt.Errorf("ollama: %s", wire.Error))
				return
			}

			chunk := c.toChunk(&wire, next)
			next += len(chunk.ToolCalls)
			if !yield(chunk, nil) {
				return
			}
			if wire.Done {
				return
			}
		}
	}
}

// toChunk converts one wire response. Ollama delivers each tool call
// whole, without an ID, so a call_<uuid> ID is synthesized for tool
// result correlation. firstIndex numbers calls across the stream.
func (c *OllamaClient) toChunk(wire *ollamaResponse, firstIndex int) Chunk {
	chunk := Chunk{
		Content: wire.Message.Content,
		Model:   wire.Model,
		Done:    wire.Done,
	}
	if wire.Done {
		chunk.InputTokens = wire.PromptEvalCount
		chunk.OutputTokens = wire.EvalCount
	}
	for i, tc := range wire.Message.ToolCalls {
		args, err := json.Marshal(tc.Function.Arguments)
		if err != nil || tc.Function.Arguments == nil {
			args = []byte("{}")
		}
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		chunk.ToolCalls = append(chunk.ToolCalls, ToolCallDelta{
			Index:     firstIndex + i,
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: string(args),
		})
	}
	return chunk
}

func (c *OllamaClient) post(ctx context.Context, model string, messages []Message, tools []map[string]any, stream bool) (*http.Response, error) {
	req := ollamaRequest{
		Model:    model,
		Messages: convertToOllama(messages),
		Stream:   stream,
		Tools:    tools,
	}

	c.logger.Debug("preparing request",
		"model", model,
		"messages", len(req.Messages),
		"tools", len(tools),
		"stream", stream,
	)

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if err := httpkit.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("ollama API error: %w", err)
	}
	return resp, nil
}

// convertToOllama maps messages to Ollama's wire format. Ollama takes
// images as bare base64 payloads, so only data URLs survive; other
// image URLs are referenced in the text instead.
func convertToOllama(messages []Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		om := ollamaMessage{
			Role:     m.Role,
			Content:  m.Text(),
			ToolName: m.ToolName,
		}
		for _, url := range m.Images() {
			if b64, ok := dataURLPayload(url); ok {
				om.Images = append(om.Images, b64)
			} else {
				om.Content += "\n[image: " + url + "]"
			}
		}
		for _, tc := range m.ToolCalls {
			var otc ollamaToolCall
			otc.ID = tc.ID
			otc.Function.Name = tc.Function.Name
			otc.Function.Arguments = tc.Function.Arguments
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		out = append(out, om)
	}
	return out
}

// dataURLPayload returns the base64 payload of a data URL.
func dataURLPayload(url string) (string, bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", false
	}
	_, payload, ok := strings.Cut(url, ";base64,")
	return payload, ok
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := httpkit.CheckStatus(resp); err != nil {
		return err
	}
	httpkit.DrainAndClose(resp.Body, 64*1024)
	return nil
}
