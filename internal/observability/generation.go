package observability

import (
	"context"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Generation is one LLM call as reported to the tracing sink.
type Generation struct {
	Name      string
	Input     string
	Output    string
	Model     string
	SessionID string
	Metadata  map[string]string
}

// GenerationRecorder receives LLM generations. Implementations must not
// block the caller on sink failures.
type GenerationRecorder interface {
	RecordGeneration(ctx context.Context, gen Generation)
}

// NopGenerationRecorder discards generations.
type NopGenerationRecorder struct{}

func (NopGenerationRecorder) RecordGeneration(context.Context, Generation) {}

// maxGenerationPayload bounds the input/output attribute size on spans.
const maxGenerationPayload = 4096

// SpanGenerationRecorder emits each generation as a short span under the
// caller's active span.
type SpanGenerationRecorder struct {
	tracer *TracerProvider
}

// NewSpanGenerationRecorder builds a recorder on tp.
func NewSpanGenerationRecorder(tp *TracerProvider) *SpanGenerationRecorder {
	return &SpanGenerationRecorder{tracer: tp}
}

func (r *SpanGenerationRecorder) RecordGeneration(ctx context.Context, gen Generation) {
	if r == nil || r.tracer == nil {
		return
	}
	sessionID := gen.SessionID
	if sessionID == "" {
		sessionID = SessionIDFromContext(ctx)
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgent, gen.Name),
		attribute.String(AttrModel, gen.Model),
		attribute.String(AttrSessionID, sessionID),
		attribute.String("triage.llm.input", truncate(gen.Input, maxGenerationPayload)),
		attribute.String("triage.llm.output", truncate(gen.Output, maxGenerationPayload)),
	}
	for k, v := range gen.Metadata {
		attrs = append(attrs, attribute.String("triage.meta."+k, v))
	}
	_, span := r.tracer.Tracer().Start(ctx, SpanLLMGenerate, trace.WithAttributes(attrs...))
	span.End()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
