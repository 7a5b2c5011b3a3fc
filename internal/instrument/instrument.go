// Package instrument records what the persistence layer does: one span per
// statement or operation, plus counted events such as issued keys.
package instrument

import "context"

// Instrumenter starts spans and records events.
type Instrumenter interface {
	StartSpan(ctx context.Context, component, action string) (context.Context, Span)
	EmitEvent(component, action, entity string)
}

// Span is one timed unit of work.
type Span interface {
	End()
	SetStatus(status string)
	SetEntity(entity string)
}

type ctxKey struct{}

// WithInstrumenter stores inst in ctx.
func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, ctxKey{}, inst)
}

// GetInstrumenter returns the instrumenter stored in ctx, or a no-op one.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if inst, ok := ctx.Value(ctxKey{}).(Instrumenter); ok {
		return inst
	}
	return &NoopInstrumenter{}
}

// Status returns the span status for an operation result.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
