package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingProvider() (*TracerProvider, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return &TracerProvider{provider: provider, tracer: provider.Tracer(tracerName)}, recorder
}

func TestLoggerWithContextAddsIdentifiers(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: buf})

	ctx := ContextWithSessionID(context.Background(), "CUST-001")
	ctx = ContextWithTicketID(ctx, "TKT-ABCD1234")
	logger.InfoContext(ctx, "triage finished")

	out := buf.String()
	assert.Contains(t, out, `"session_id":"CUST-001"`)
	assert.Contains(t, out, `"ticket_id":"TKT-ABCD1234"`)
}

func TestLoggerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(LogConfig{Level: "warn", Format: "text", Output: buf})

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestStartSpanTagsSession(t *testing.T) {
	tp, recorder := newRecordingProvider()

	ctx := ContextWithSessionID(context.Background(), "CUST-007")
	_, span := tp.StartSpan(ctx, SpanWorkflow)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, SpanWorkflow, spans[0].Name())
	found := false
	for _, attr := range spans[0].Attributes() {
		if string(attr.Key) == AttrSessionID {
			found = attr.Value.AsString() == "CUST-007"
		}
	}
	assert.True(t, found, "session attribute missing")
}

func TestSpanGenerationRecorderTruncatesPayload(t *testing.T) {
	tp, recorder := newRecordingProvider()
	gen := NewSpanGenerationRecorder(tp)

	gen.RecordGeneration(context.Background(), Generation{
		Name:      "supervisor",
		Input:     strings.Repeat("x", maxGenerationPayload+100),
		Output:    `{"urgency":"high"}`,
		Model:     "gpt-4o-mini",
		SessionID: "CUST-1",
	})

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	for _, attr := range spans[0].Attributes() {
		if string(attr.Key) == "triage.llm.input" {
			assert.Len(t, attr.Value.AsString(), maxGenerationPayload)
		}
	}
}

func TestSpanGenerationRecorderKeepsRunesWhole(t *testing.T) {
	tp, recorder := newRecordingProvider()
	gen := NewSpanGenerationRecorder(tp)

	// Thai letters are three bytes each, so the cap lands inside a rune.
	thai := strings.Repeat("ก", maxGenerationPayload/3+10)
	gen.RecordGeneration(context.Background(), Generation{Name: "translator", Input: "x" + thai, Output: thai})

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	var checked int
	for _, attr := range spans[0].Attributes() {
		switch string(attr.Key) {
		case "triage.llm.input", "triage.llm.output":
			v := attr.Value.AsString()
			assert.True(t, utf8.ValidString(v), "%s is valid UTF-8", attr.Key)
			assert.LessOrEqual(t, len(v), maxGenerationPayload)
			assert.Greater(t, len(v), maxGenerationPayload-utf8.UTFMax)
			checked++
		}
	}
	assert.Equal(t, 2, checked)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "a", truncate("aกb", 3))
	assert.Equal(t, "aก", truncate("aกb", 4))
	assert.Equal(t, "", truncate("กข", 2))
}

func TestNilRecordersAreSafe(t *testing.T) {
	var gen *SpanGenerationRecorder
	gen.RecordGeneration(context.Background(), Generation{Name: "translator"})
	NopGenerationRecorder{}.RecordGeneration(context.Background(), Generation{})

	var metrics *MetricsCollector
	metrics.RecordTriageRun(context.Background(), "auto_respond", "ok", time.Second)
	(&MetricsCollector{}).RecordToolExecution(context.Background(), "kb_search", "ok", time.Millisecond)

	var store *StoreMetrics
	store.RecordPersistence("closed")
}

func TestStoreMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStoreMetricsWithRegisterer(reg)

	m.RecordPersistence("closed")
	m.RecordPersistence("closed")
	m.RecordPersistence("activated")
	m.RecordCheckpointWrite("translator")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.persisted.WithLabelValues("closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persisted.WithLabelValues("activated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkpointWrites.WithLabelValues("translator")))
}

func TestDisabledMetricsCollector(t *testing.T) {
	m, err := NewMetricsCollector(MetricsConfig{Enabled: false})
	require.NoError(t, err)
	assert.NotNil(t, m.Handler())
	assert.NoError(t, m.Shutdown(context.Background()))
}
