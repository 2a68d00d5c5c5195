// Package instrument records request traces as rows in the _events table.
package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	parentSpanIDKey
	instrumenterKey
	userIDKey
)

// Instrumenter starts spans. The no-op implementation is used when tracing is
// disabled or the request was sampled out.
type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
}

type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	SetSubject(subject, recordID string)
	TraceID() string
	SpanID() string
}

// Event is one row of _events.
type Event struct {
	ID           string         `json:"id"`
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID *string        `json:"parent_span_id"`
	EventType    string         `json:"event_type"`
	Source       string         `json:"source"`
	Component    string         `json:"component"`
	Action       string         `json:"action"`
	Subject      *string        `json:"subject"`
	RecordID     *string        `json:"record_id"`
	UserID       *string        `json:"user_id"`
	DurationMs   *float64       `json:"duration_ms"`
	Status       *string        `json:"status"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

func withParentSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, parentSpanIDKey, spanID)
}

func getParentSpanID(ctx context.Context) string {
	v, _ := ctx.Value(parentSpanIDKey).(string)
	return v
}

func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// GetInstrumenter returns the request's instrumenter, or a no-op one.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if v, ok := ctx.Value(instrumenterKey).(Instrumenter); ok {
		return v
	}
	return NoopInstrumenter{}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func getUserID(ctx context.Context) *string {
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		return &v
	}
	return nil
}

// Start opens a span on whatever instrumenter the context carries.
func Start(ctx context.Context, component, action string) (context.Context, Span) {
	return GetInstrumenter(ctx).StartSpan(ctx, "service", component, action)
}

// Tracer enqueues finished spans on an EventBuffer.
type Tracer struct {
	buffer *EventBuffer
}

func NewTracer(buffer *EventBuffer) *Tracer {
	return &Tracer{buffer: buffer}
}

func (t *Tracer) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	span := &span{
		traceID:      GetTraceID(ctx),
		spanID:       uuid.NewString(),
		parentSpanID: getParentSpanID(ctx),
		source:       source,
		component:    component,
		action:       action,
		userID:       getUserID(ctx),
		startTime:    time.Now(),
		metadata:     make(map[string]any),
		buffer:       t.buffer,
	}
	return withParentSpanID(ctx, span.spanID), span
}

type span struct {
	mu           sync.Mutex
	traceID      string
	spanID       string
	parentSpanID string
	source       string
	component    string
	action       string
	subject      *string
	recordID     *string
	userID       *string
	status       *string
	startTime    time.Time
	metadata     map[string]any
	buffer       *EventBuffer
	ended        bool
}

func (s *span) TraceID() string { return s.traceID }
func (s *span) SpanID() string  { return s.spanID }

func (s *span) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = &status
}

func (s *span) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
}

func (s *span) SetSubject(subject, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subject = &subject
	if recordID != "" {
		s.recordID = &recordID
	}
}

// End enqueues the span. Calls after the first are ignored.
func (s *span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true

	durationMs := float64(time.Since(s.startTime).Microseconds()) / 1000.0
	event := Event{
		TraceID:    s.traceID,
		SpanID:     s.spanID,
		EventType:  "system",
		Source:     s.source,
		Component:  s.component,
		Action:     s.action,
		Subject:    s.subject,
		RecordID:   s.recordID,
		UserID:     s.userID,
		DurationMs: &durationMs,
		Status:     s.status,
		Metadata:   s.metadata,
		CreatedAt:  s.startTime.UTC(),
	}
	if s.parentSpanID != "" {
		event.ParentSpanID = &s.parentSpanID
	}
	s.buffer.Enqueue(event)
}
