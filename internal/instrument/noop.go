package instrument

import "context"

// NoopInstrumenter discards all spans. Used when metrics are disabled.
type NoopInstrumenter struct{}

func (n *NoopInstrumenter) StartSpan(ctx context.Context, component, action string) (context.Context, Span) {
	return ctx, &NoopSpan{}
}

func (n *NoopInstrumenter) EmitEvent(component, action, entity string) {}

// NoopSpan discards all data.
type NoopSpan struct{}

func (n *NoopSpan) End()                    {}
func (n *NoopSpan) SetStatus(status string) {}
func (n *NoopSpan) SetEntity(entity string) {}
