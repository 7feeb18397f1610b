package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector records triage workflow metrics. A zero value is valid
// and records nothing.
type MetricsCollector struct {
	provider *sdkmetric.MeterProvider

	// Workflow metrics
	triageRuns     metric.Int64Counter
	triageDuration metric.Float64Histogram
	nodeExecutions metric.Int64Counter
	nodeDuration   metric.Float64Histogram
	fallbacks      metric.Int64Counter

	// LLM metrics
	llmRequests     metric.Int64Counter
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	llmLatency      metric.Float64Histogram

	// Tool metrics
	toolExecutions metric.Int64Counter
	toolDuration   metric.Float64Histogram

	// Resolution metrics
	matcherDecisions metric.Int64Counter
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// NewMetricsCollector creates a metrics collector backed by the Prometheus
// exporter. Metrics are served by Handler on the API router.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("triage")

	m := &MetricsCollector{provider: provider}
	b := &instrumentBuilder{meter: meter}

	m.triageRuns = b.counter("triage.runs.total", "Completed triage runs by recommended action", "{run}")
	m.triageDuration = b.histogram("triage.run.duration", "Triage run duration in seconds", "s")
	m.nodeExecutions = b.counter("triage.node.executions.total", "Workflow node executions", "{execution}")
	m.nodeDuration = b.histogram("triage.node.duration", "Workflow node duration in seconds", "s")
	m.fallbacks = b.counter("triage.agent.fallbacks.total", "Agent outputs replaced by fallback values", "{fallback}")
	m.llmRequests = b.counter("triage.llm.requests.total", "Total number of LLM requests", "{request}")
	m.llmTokensInput = b.counter("triage.llm.tokens.input", "Total input tokens sent to LLM", "{token}")
	m.llmTokensOutput = b.counter("triage.llm.tokens.output", "Total output tokens from LLM", "{token}")
	m.llmLatency = b.histogram("triage.llm.latency", "LLM request latency in seconds", "s")
	m.toolExecutions = b.counter("triage.tool.executions.total", "Total number of tool executions", "{execution}")
	m.toolDuration = b.histogram("triage.tool.duration", "Tool execution duration in seconds", "s")
	m.matcherDecisions = b.counter("triage.matcher.decisions.total", "Ticket matcher decisions by confidence", "{decision}")

	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) counter(name, description, unit string) metric.Int64Counter {
	if b.err != nil {
		return nil
	}
	c, err := b.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s counter: %w", name, err)
	}
	return c
}

func (b *instrumentBuilder) histogram(name, description, unit string) metric.Float64Histogram {
	if b.err != nil {
		return nil
	}
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}

// Handler returns the Prometheus scrape handler.
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and stops the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordTriageRun records one finished workflow invocation.
func (m *MetricsCollector) RecordTriageRun(ctx context.Context, action, status string, duration time.Duration) {
	if m == nil || m.triageRuns == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("status", status),
	)
	m.triageRuns.Add(ctx, 1, attrs)
	m.triageDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordNodeExecution records one workflow node.
func (m *MetricsCollector) RecordNodeExecution(ctx context.Context, node, status string, duration time.Duration) {
	if m == nil || m.nodeExecutions == nil {
		return
	}
	m.nodeExecutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node", node),
		attribute.String("status", status),
	))
	m.nodeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("node", node)))
}

// RecordFallback records an agent falling back to its default output.
func (m *MetricsCollector) RecordFallback(ctx context.Context, agent, reason string) {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("reason", reason),
	))
}

// RecordLLMRequest records an LLM request
func (m *MetricsCollector) RecordLLMRequest(ctx context.Context, model, status string, latency time.Duration, inputTokens, outputTokens int) {
	if m == nil || m.llmRequests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("status", status),
	}
	m.llmRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmTokensInput.Add(ctx, int64(inputTokens), metric.WithAttributes(attribute.String("model", model)))
	m.llmTokensOutput.Add(ctx, int64(outputTokens), metric.WithAttributes(attribute.String("model", model)))
	m.llmLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
}

// RecordToolExecution records a tool execution
func (m *MetricsCollector) RecordToolExecution(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolExecutions == nil {
		return
	}
	m.toolExecutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool_name", toolName),
		attribute.String("status", status),
	))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("tool_name", toolName)))
}

// RecordMatcherDecision records a resolution outcome.
func (m *MetricsCollector) RecordMatcherDecision(ctx context.Context, confidence, source string) {
	if m == nil || m.matcherDecisions == nil {
		return
	}
	m.matcherDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("confidence", confidence),
		attribute.String("source", source),
	))
}
