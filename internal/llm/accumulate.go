package llm

import (
	"encoding/json"
	"strings"
)

// Accumulator folds streamed chunks into one logical response.
//
// Text deltas concatenate in order. Tool-call fragments merge by
// correlation ID, or by stream index when a fragment carries no ID.
// Argument fragments concatenate and are parsed only when Message or
// Response is called, so a partially streamed argument string never
// has to be valid JSON. The zero value is ready to use.
type Accumulator struct {
	content strings.Builder
	calls   []*pendingCall
	byID    map[string]*pendingCall
	byIndex map[int]*pendingCall

	model        string
	inputTokens  int
	outputTokens int
	done         bool
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// Add merges one chunk.
func (a *Accumulator) Add(c Chunk) {
	a.content.WriteString(c.Content)
	for _, d := range c.ToolCalls {
		a.addToolDelta(d)
	}
	if c.Model != "" {
		a.model = c.Model
	}
	if c.InputTokens != 0 {
		a.inputTokens = c.InputTokens
	}
	if c.OutputTokens != 0 {
		a.outputTokens = c.OutputTokens
	}
	if c.Done {
		a.done = true
	}
}

func (a *Accumulator) addToolDelta(d ToolCallDelta) {
	if a.byID == nil {
		a.byID = make(map[string]*pendingCall)
		a.byIndex = make(map[int]*pendingCall)
	}

	var pc *pendingCall
	if d.ID != "" {
		pc = a.byID[d.ID]
	} else {
		pc = a.byIndex[d.Index]
	}
	if pc == nil {
		pc = &pendingCall{id: d.ID}
		a.calls = append(a.calls, pc)
		if d.ID != "" {
			a.byID[d.ID] = pc
		}
	}
	// The latest call to claim an index owns it, so ID-less fragments
	// attach to the most recent call started at that position.
	a.byIndex[d.Index] = pc

	if d.Name != "" {
		pc.name = d.Name
	}
	pc.args.WriteString(d.Arguments)
}

// Done reports whether a chunk marked Done has been seen.
func (a *Accumulator) Done() bool { return a.done }

// Message returns the accumulated assistant message.
func (a *Accumulator) Message() Message {
	msg := Message{
		Role:    RoleAssistant,
		Content: a.content.String(),
	}
	for _, pc := range a.calls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID: pc.id,
			Function: ToolFunction{
				Name:      pc.name,
				Arguments: parseArguments(pc.args.String()),
			},
		})
	}
	return msg
}

// Response returns the accumulated message plus provider metadata.
func (a *Accumulator) Response() *ChatResponse {
	return &ChatResponse{
		Model:        a.model,
		Message:      a.Message(),
		InputTokens:  a.inputTokens,
		OutputTokens: a.outputTokens,
	}
}

// Accumulate folds a complete chunk sequence into a message.
func Accumulate(chunks []Chunk) Message {
	var a Accumulator
	for _, c := range chunks {
		a.Add(c)
	}
	return a.Message()
}

// parseArguments decodes a tool-call argument string. Empty input
// yields an empty map; invalid JSON is preserved under "_raw".
func parseArguments(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{"_raw": raw}
	}
	return args
}
