// Package agent implements the core agent loop: one user turn becomes
// at most two model calls with one round of tool execution between
// them.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nugget/cinebot/internal/conversation"
	"github.com/nugget/cinebot/internal/llm"
	"github.com/nugget/cinebot/internal/observability"
	"github.com/nugget/cinebot/internal/tools"
)

// Invocation modes, used as metric and log labels.
const (
	ModeBlocking = "blocking"
	ModeStream   = "stream"
)

// Model-call phases.
const (
	phaseFirst = "first"
	phaseFinal = "final"
)

// Config tunes a Loop.
type Config struct {
	Model  string // model passed to the client
	Window int    // recent messages sent with the system message
}

// Result describes a finished turn.
type Result struct {
	Content      string       `json:"content"`
	Model        string       `json:"model"`
	ToolResults  []ToolResult `json:"tool_results,omitempty"`
	ModelCalls   int          `json:"model_calls"`
	InputTokens  int          `json:"input_tokens"`
	OutputTokens int          `json:"output_tokens"`
}

// ToolResult is the output of one executed tool call.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Loop drives the model for one conversation. It is not safe for
// concurrent turns; callers serialize them.
type Loop struct {
	client  llm.Client
	tools   *tools.Registry
	conv    *conversation.State
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewLoop creates an agent loop over conv. metrics may be nil.
func NewLoop(client llm.Client, registry *tools.Registry, conv *conversation.State, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Window <= 0 {
		cfg.Window = conversation.DefaultWindow
	}
	return &Loop{
		client:  client,
		tools:   registry,
		conv:    conv,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  observability.Tracer(),
	}
}

// Conversation returns the state the loop appends to.
func (l *Loop) Conversation() *conversation.State {
	return l.conv
}

// Run processes one user message in blocking mode. It returns an error
// only when a model call fails; tool failures are part of the
// conversation.
func (l *Loop) Run(ctx context.Context, msg llm.Message) (*Result, error) {
	ctx, span, start := l.startTurn(ctx, ModeBlocking)
	defer span.End()

	l.appendUser(msg)

	res := &Result{}
	resp, err := l.chat(ctx, phaseFirst, res)
	if err != nil {
		return nil, l.failTurn(span, err)
	}
	l.conv.Append(resp.Message)

	if len(resp.Message.ToolCalls) > 0 {
		res.ToolResults = l.executeTools(ctx, resp.Message.ToolCalls)

		resp, err = l.chat(ctx, phaseFinal, res)
		if err != nil {
			return nil, l.failTurn(span, err)
		}
		l.conv.Append(resp.Message)
		l.logDroppedCalls(resp.Message)
	}

	res.Content = resp.Message.Content
	l.finishTurn(span, ModeBlocking, start, res)
	return res, nil
}

func (l *Loop) chat(ctx context.Context, phase string, res *Result) (*llm.ChatResponse, error) {
	window := l.conv.Window(l.cfg.Window)
	l.logger.Debug("calling model",
		"mode", ModeBlocking, "phase", phase, "model", l.cfg.Model,
		"messages", len(window), "tools", len(l.tools.Names()))
	l.metrics.ModelCall(ModeBlocking, phase)

	resp, err := l.client.Chat(ctx, l.cfg.Model, window, l.tools.List())
	if err != nil {
		return nil, err
	}
	if resp.Message.Role == "" {
		resp.Message.Role = llm.RoleAssistant
	}
	res.record(resp)
	return resp, nil
}

func (res *Result) record(resp *llm.ChatResponse) {
	res.ModelCalls++
	if resp.Model != "" {
		res.Model = resp.Model
	}
	res.InputTokens += resp.InputTokens
	res.OutputTokens += resp.OutputTokens
}

func (l *Loop) appendUser(msg llm.Message) {
	if msg.Role == "" {
		msg.Role = llm.RoleUser
	}
	l.conv.Append(msg)
}

// executeTools runs calls in emission order and appends one tool message
// per registered tool. Calls to unregistered tools are skipped.
func (l *Loop) executeTools(ctx context.Context, calls []llm.ToolCall) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		if r, ok := l.executeTool(ctx, call); ok {
			results = append(results, r)
		}
	}
	return results
}

func (l *Loop) executeTool(ctx context.Context, call llm.ToolCall) (ToolResult, bool) {
	name := call.Function.Name
	ctx, span := l.tracer.Start(ctx, "agent.tool", trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.call_id", call.ID),
	))
	defer span.End()

	start := time.Now()
	out, err := l.tools.Execute(ctx, name, call.Function.Arguments)

	if errors.Is(err, tools.ErrUnknownTool) {
		l.logger.Debug("skipping unregistered tool", "tool", name, "call_id", call.ID)
		l.metrics.SkippedToolCall()
		span.SetAttributes(attribute.Bool("tool.skipped", true))
		return ToolResult{}, false
	}

	outcome := tools.Outcome(out)
	l.conv.Append(llm.ToolMessage(call, out))
	l.metrics.ToolCall(name, outcome)
	if outcome != "ok" {
		span.SetAttributes(attribute.String("tool.outcome", outcome))
	}
	l.logger.Info("tool call",
		"tool", name,
		"outcome", outcome,
		"call_id", call.ID,
		"duration", time.Since(start).Round(time.Millisecond),
		"result_len", len(out))

	return ToolResult{CallID: call.ID, Name: name, Content: out}, true
}

// logDroppedCalls notes tool calls in a final response. They are kept in
// the conversation but never executed.
func (l *Loop) logDroppedCalls(msg llm.Message) {
	if n := len(msg.ToolCalls); n > 0 {
		l.logger.Debug("final response requested tools; not executed", "tool_calls", n)
	}
}

func (l *Loop) startTurn(ctx context.Context, mode string) (context.Context, trace.Span, time.Time) {
	turn, _ := tools.TurnFrom(ctx)
	ctx, span := l.tracer.Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.String("agent.mode", mode),
		attribute.String("agent.model", l.cfg.Model),
		attribute.String("session.id", turn.SessionID),
		attribute.String("agent.persona", turn.Persona),
	))
	l.logger.Info("turn started", "mode", mode, "persona", turn.Persona)
	return ctx, span, time.Now()
}

func (l *Loop) failTurn(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	l.logger.Error("model call failed", "error", err)
	return err
}

func (l *Loop) finishTurn(span trace.Span, mode string, start time.Time, res *Result) {
	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.Int("agent.model_calls", res.ModelCalls),
		attribute.Int("agent.tool_results", len(res.ToolResults)),
	)
	l.metrics.ObserveTurn(mode, elapsed)
	l.logger.Info("turn finished",
		"mode", mode,
		"model_calls", res.ModelCalls,
		"tools", len(res.ToolResults),
		"input_tokens", res.InputTokens,
		"output_tokens", res.OutputTokens,
		"duration", elapsed.Round(time.Millisecond))
}
