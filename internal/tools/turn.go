package tools

import "context"

// Turn identifies the chat turn a tool call runs in.
type Turn struct {
	SessionID string
	Persona   string
}

type turnKey struct{}

// WithTurn attaches the turn to ctx for tool handlers and logs.
func WithTurn(ctx context.Context, t Turn) context.Context {
	return context.WithValue(ctx, turnKey{}, t)
}

// TurnFrom returns the turn attached to ctx. Outside a session turn the
// zero Turn is returned with ok false.
func TurnFrom(ctx context.Context) (t Turn, ok bool) {
	t, ok = ctx.Value(turnKey{}).(Turn)
	return t, ok
}
