// Package tools defines the tools available to the agent. Every tool
// wraps one service and returns a string result; failures become part
// of that result so the model can explain them to the user.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"
)

// ErrUnknownTool is returned by Execute for a name that is not
// registered. The agent loop skips such calls without a tool result.
var ErrUnknownTool = errors.New("unknown tool")

// Handler maps tool arguments to a result string.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     Handler        `json:"-"`
}

// Registry holds the tools of one session.
type Registry struct {
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds a tool to the registry. Names must be unique and every
// tool needs a handler.
func (r *Registry) Register(t *Tool) error {
	switch {
	case t == nil:
		return errors.New("register tool: nil tool")
	case t.Name == "":
		return errors.New("register tool: empty name")
	case t.Handler == nil:
		return fmt.Errorf("register tool %s: nil handler", t.Name)
	}
	if _, dup := r.tools[t.Name]; dup {
		return fmt.Errorf("register tool %s: already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all tools in the function-calling shape the model
// clients accept, sorted by name.
func (r *Registry) List() []map[string]any {
	result := make([]map[string]any, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs the named tool. The only error it returns wraps
// ErrUnknownTool. A handler error or
// panic is converted into a JSON error envelope and returned as the
// result.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result string, err error) {
	tool := r.tools[name]
	if tool == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	log := r.logger.With("tool", name)
	if turn, ok := TurnFrom(ctx); ok {
		log = log.With("session", turn.SessionID, "persona", turn.Persona)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("tool panicked", "panic", p, "stack", string(debug.Stack()))
			result, err = errorEnvelope(fmt.Sprintf("tool %s failed unexpectedly", name)), nil
		}
	}()

	out, herr := tool.Handler(ctx, args)
	if herr != nil {
		log.Warn("tool failed", "error", herr, "duration", time.Since(start).Round(time.Millisecond))
		return errorEnvelope(herr.Error()), nil
	}

	log.Debug("tool executed", "duration", time.Since(start).Round(time.Millisecond), "result_len", len(out))
	return out, nil
}

// Outcome classifies a tool result for metrics: "error" for a handler
// failure envelope, "failed" for a handled miss such as an unknown
// movie, "ok" otherwise.
func Outcome(result string) string {
	var env struct {
		Status string `json:"status"`
	}
	if json.Unmarshal([]byte(result), &env) != nil {
		return "ok"
	}
	switch env.Status {
	case "error", "failed":
		return env.Status
	}
	return "ok"
}

// errorEnvelope is the result of a tool whose handler failed.
func errorEnvelope(msg string) string {
	return mustJSON(map[string]any{"status": "error", "message": msg})
}

// mustJSON encodes v, which must be a plain JSON-safe value.
func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"status":"error","message":%q}`, err.Error())
	}
	return string(data)
}
