// Package llm defines the model-service boundary: provider-neutral
// messages, tool calls, blocking and streaming invocation, and the
// reducer that folds streamed chunks into one response.
package llm

import (
	"log/slog"
	"strings"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// PartKind tags the variant held by a Part.
type PartKind int

const (
	// PartText carries plain text in Part.Text.
	PartText PartKind = iota
	// PartImage carries an image reference in Part.URL. Data URLs
	// (data:image/png;base64,...) and http(s) URLs are both accepted.
	PartImage
)

func (k PartKind) String() string {
	switch k {
	case PartText:
		return "text"
	case PartImage:
		return "image"
	default:
		return "unknown"
	}
}

// Part is one element of mixed user content.
type Part struct {
	Kind PartKind `json:"kind"`
	Text string   `json:"text,omitempty"`
	URL  string   `json:"url,omitempty"`
}

// TextPart returns a text content part.
func TextPart(s string) Part { return Part{Kind: PartText, Text: s} }

// ImagePart returns an image content part.
func ImagePart(url string) Part { return Part{Kind: PartImage, URL: url} }

// Message is a single conversation entry.
//
// Content holds plain text. Parts is set only for user messages that
// carry images; when present it is the authoritative content and
// Content mirrors its joined text.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Parts      []Part     `json:"parts,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
	ToolName   string     `json:"tool_name,omitempty"`    // For tool responses
}

// UserMessage builds a user message from text and optional image URLs.
func UserMessage(text string, images ...string) Message {
	m := Message{Role: RoleUser, Content: text}
	if len(images) == 0 {
		return m
	}
	if text != "" {
		m.Parts = append(m.Parts, TextPart(text))
	}
	for _, url := range images {
		m.Parts = append(m.Parts, ImagePart(url))
	}
	return m
}

// ToolMessage builds the message that carries a tool result back to
// the model.
func ToolMessage(call ToolCall, result string) Message {
	return Message{
		Role:       RoleTool,
		Content:    result,
		ToolCallID: call.ID,
		ToolName:   call.Function.Name,
	}
}

// Text returns the message's textual content.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Kind == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Images returns the image URLs attached to the message.
func (m Message) Images() []string {
	var urls []string
	for _, p := range m.Parts {
		if p.Kind == PartImage {
			urls = append(urls, p.URL)
		}
	}
	return urls
}

// ToolCall is a model request to invoke a named tool.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Function ToolFunction `json:"function"`
}

// ToolFunction names the tool and carries its parsed arguments.
type ToolFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the unified response from any provider. Wire format
// conversion happens at provider boundaries (ollama.go, anthropic.go).
type ChatResponse struct {
	Model   string
	Message Message

	InputTokens  int
	OutputTokens int
}

// Chunk is one incremental piece of a streamed response.
type Chunk struct {
	// Content is a text delta. Deltas concatenate in arrival order.
	Content string

	// ToolCalls carries tool-call fragments.
	ToolCalls []ToolCallDelta

	// Model and token counts are set on whichever chunk the provider
	// reports them; later non-zero values win.
	Model        string
	InputTokens  int
	OutputTokens int

	// Done marks the provider's final chunk.
	Done bool
}

// ToolCallDelta is a fragment of a tool call. Fragments belong to the
// same call when they share an ID, or when an ID-less fragment shares
// the Index of an earlier fragment.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string // raw JSON fragment
}
