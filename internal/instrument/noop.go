package instrument

import "context"

type NoopInstrumenter struct{}

func (NoopInstrumenter) StartSpan(ctx context.Context, _, _, _ string) (context.Context, Span) {
	return ctx, NoopSpan{}
}

type NoopSpan struct{}

func (NoopSpan) End()                      {}
func (NoopSpan) SetStatus(string)          {}
func (NoopSpan) SetMetadata(string, any)   {}
func (NoopSpan) SetSubject(string, string) {}
func (NoopSpan) TraceID() string           { return "" }
func (NoopSpan) SpanID() string            { return "" }
