package llm

import (
	"context"
	"strings"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/observability"
)

// instrumentedClient reports each completion to metrics and the generation
// recorder. Recording never affects the completion result.
type instrumentedClient struct {
	underlying ports.LLMClient
	metrics    *observability.MetricsCollector
	recorder   observability.GenerationRecorder
}

// WithInstrumentation wraps client with metrics and generation recording.
func WithInstrumentation(client ports.LLMClient, metrics *observability.MetricsCollector, recorder observability.GenerationRecorder) ports.LLMClient {
	if recorder == nil {
		recorder = observability.NopGenerationRecorder{}
	}
	return &instrumentedClient{underlying: client, metrics: metrics, recorder: recorder}
}

func (c *instrumentedClient) Model() string {
	return c.underlying.Model()
}

func (c *instrumentedClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	start := time.Now()
	resp, err := c.underlying.Complete(ctx, req)

	status := "success"
	var usage ports.TokenUsage
	output := ""
	if err != nil {
		status = "error"
		output = "error: " + err.Error()
	} else if resp != nil {
		usage = resp.Usage
		output = resp.Content
	}
	c.metrics.RecordLLMRequest(ctx, c.underlying.Model(), status, time.Since(start), usage.PromptTokens, usage.CompletionTokens)

	sessionID, _ := req.Metadata[ports.MetadataSessionID].(string)
	c.recorder.RecordGeneration(ctx, observability.Generation{
		Name:      req.Agent(),
		Input:     renderTranscript(req.Messages),
		Output:    output,
		Model:     c.underlying.Model(),
		SessionID: sessionID,
	})
	return resp, err
}

func renderTranscript(msgs []ports.Message) string {
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[")
		b.WriteString(msg.Role)
		b.WriteString("] ")
		b.WriteString(msg.Content)
	}
	return b.String()
}
