// Package agents implements the LLM-backed workflow nodes and the ticket
// matcher. Every collaborator failure ends in an explicit fallback value.
package agents

import (
	"context"
	"fmt"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/observability"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/prompts"

	"go.opentelemetry.io/otel/attribute"
)

// Agent names. They double as LLM request metadata and metric labels.
const (
	NameTranslator    = "translator"
	NameSupervisor    = "supervisor"
	NameBilling       = "billing"
	NameTechnical     = "technical"
	NameGeneral       = "general"
	NameTicketMatcher = "ticket_matcher"
)

// Deps are the collaborators shared by every agent.
type Deps struct {
	LLM     ports.LLMClient
	Prompts prompts.Source
	// PromptLabel selects the template version, "production" by default.
	PromptLabel   string
	MaxToolRounds int
	Tracer        *observability.TracerProvider
	Metrics       *observability.MetricsCollector
	Logger        logging.Logger
}

type base struct {
	name       string
	promptName string
	llm        ports.LLMClient
	prompts    prompts.Source
	label      string
	maxRounds  int
	tracer     *observability.TracerProvider
	metrics    *observability.MetricsCollector
	logger     logging.Logger
}

func newBase(name, promptName, component string, deps Deps) base {
	source := deps.Prompts
	if source == nil {
		source = prompts.NewEmbeddedSource()
	} else {
		source = prompts.WithFallback(source, prompts.NewEmbeddedSource(), deps.Logger)
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = observability.NewNoopTracerProvider()
	}
	label := deps.PromptLabel
	if label == "" {
		label = prompts.DefaultLabel
	}
	logger := deps.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger(component)
	}
	return base{
		name:       name,
		promptName: promptName,
		llm:        deps.LLM,
		prompts:    source,
		label:      label,
		maxRounds:  ClampToolRounds(deps.MaxToolRounds),
		tracer:     tracer,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

func (b *base) Name() string {
	return b.name
}

// systemPrompt resolves and compiles the agent's template.
func (b *base) systemPrompt(ctx context.Context, vars map[string]string) (string, error) {
	tmpl, err := b.prompts.GetTemplate(ctx, b.promptName, b.label)
	if err != nil {
		return "", fmt.Errorf("load prompt %s: %w", b.promptName, err)
	}
	return tmpl.Compile(vars), nil
}

// complete issues one LLM call tagged with the agent name and session.
func (b *base) complete(ctx context.Context, messages []ports.Message, tools []ports.ToolDefinition) (*ports.CompletionResponse, error) {
	if b.llm == nil {
		return nil, fmt.Errorf("%s: no LLM client configured", b.name)
	}
	ctx, span := b.tracer.StartSpan(ctx, observability.SpanLLMGenerate,
		attribute.String(observability.AttrAgent, b.name),
		attribute.String(observability.AttrModel, b.llm.Model()),
	)
	resp, err := b.llm.Complete(ctx, ports.CompletionRequest{
		Messages: messages,
		Tools:    tools,
		Metadata: map[string]any{
			ports.MetadataAgent:     b.name,
			ports.MetadataSessionID: observability.SessionIDFromContext(ctx),
		},
	})
	if err == nil && resp != nil {
		span.SetAttributes(observability.LLMAttrs(b.llm.Model(), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	}
	observability.EndSpan(span, err)
	if err == nil && resp == nil {
		err = fmt.Errorf("%s: empty LLM response", b.name)
	}
	return resp, err
}

// toolLoop returns a loop over tools bound to this agent's telemetry.
func (b *base) toolLoop(tools ...ports.ToolExecutor) *ToolLoop {
	return &ToolLoop{
		Tools:     tools,
		MaxRounds: b.maxRounds,
		Tracer:    b.tracer,
		Metrics:   b.metrics,
		Logger:    b.logger,
	}
}

// fellBack records that the agent replaced model output with defaults.
func (b *base) fellBack(ctx context.Context, reason string, err error) {
	b.metrics.RecordFallback(ctx, b.name, reason)
	b.logger.Warn("%s fallback (%s): %v", b.name, reason, err)
}
