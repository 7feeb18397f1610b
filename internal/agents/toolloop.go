package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	triageerrors "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/errors"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/observability"
)

// ErrToolRoundsExhausted is returned when the model still requests tools on
// the tool-free call that follows MaxRounds executions.
var ErrToolRoundsExhausted = errors.New("tool rounds exhausted")

const (
	DefaultToolRounds = 6
	maxToolRounds     = 10
)

// ClampToolRounds applies the default and bounds to a configured cap.
func ClampToolRounds(n int) int {
	switch {
	case n <= 0:
		return DefaultToolRounds
	case n > maxToolRounds:
		return maxToolRounds
	}
	return n
}

// CompleteFunc performs one model call with the given tool definitions.
type CompleteFunc func(ctx context.Context, messages []ports.Message, tools []ports.ToolDefinition) (*ports.CompletionResponse, error)

// ToolLoop alternates model calls and tool executions until the model
// answers without tool calls. After MaxRounds executions it makes one last
// call with no tools offered.
type ToolLoop struct {
	Tools     []ports.ToolExecutor
	MaxRounds int
	Tracer    *observability.TracerProvider
	Metrics   *observability.MetricsCollector
	Logger    logging.Logger
}

// Run drives the loop. It returns the final response and the transcript
// including assistant tool requests and tool results.
func (l *ToolLoop) Run(ctx context.Context, complete CompleteFunc, messages []ports.Message) (*ports.CompletionResponse, []ports.Message, error) {
	registry := make(map[string]ports.ToolExecutor, len(l.Tools))
	definitions := make([]ports.ToolDefinition, 0, len(l.Tools))
	for _, tool := range l.Tools {
		def := tool.Definition()
		registry[def.Name] = tool
		definitions = append(definitions, def)
	}
	maxRounds := ClampToolRounds(l.MaxRounds)
	transcript := append([]ports.Message(nil), messages...)

	for round := 0; ; round++ {
		var (
			resp *ports.CompletionResponse
			err  error
		)
		if round < maxRounds {
			resp, err = complete(ctx, transcript, definitions)
		} else {
			logging.OrNop(l.Logger).Warn("tool budget of %d rounds spent, asking for a final answer", maxRounds)
			resp, err = complete(ctx, withoutToolTurns(transcript), nil)
		}
		if err != nil {
			return nil, transcript, err
		}
		if len(resp.ToolCalls) == 0 {
			return resp, transcript, nil
		}
		if round >= maxRounds {
			return nil, transcript, fmt.Errorf("%w after %d rounds", ErrToolRoundsExhausted, maxRounds)
		}

		transcript = append(transcript, ports.Message{
			Role:      ports.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			transcript = append(transcript, ports.Message{
				Role:       ports.RoleTool,
				Content:    l.execute(ctx, registry, call),
				ToolCallID: call.ID,
			})
		}
	}
}

// finalAnswerPrompt closes a transcript whose tool budget is spent.
const finalAnswerPrompt = "No more tools are available. Answer now using the tool results above."

// withoutToolTurns rewrites tool requests and results as plain text so the
// transcript is valid for a request that defines no tools.
func withoutToolTurns(transcript []ports.Message) []ports.Message {
	names := make(map[string]string)
	out := make([]ports.Message, 0, len(transcript)+1)
	for _, msg := range transcript {
		switch {
		case msg.Role == ports.RoleAssistant && len(msg.ToolCalls) > 0:
			for _, call := range msg.ToolCalls {
				names[call.ID] = call.Name
			}
			if msg.Content != "" {
				out = append(out, ports.Message{Role: ports.RoleAssistant, Content: msg.Content})
			}
		case msg.Role == ports.RoleTool:
			name := names[msg.ToolCallID]
			if name == "" {
				name = "tool"
			}
			out = append(out, ports.Message{
				Role:    ports.RoleUser,
				Content: fmt.Sprintf("Result of %s: %s", name, msg.Content),
			})
		default:
			out = append(out, msg)
		}
	}
	return append(out, ports.Message{Role: ports.RoleUser, Content: finalAnswerPrompt})
}

// execute runs one call and renders its outcome for the model. Failures
// become text; they never abort the loop.
func (l *ToolLoop) execute(ctx context.Context, registry map[string]ports.ToolExecutor, call ports.ToolCall) string {
	tool, ok := registry[call.Name]
	if !ok {
		l.Metrics.RecordToolExecution(ctx, call.Name, "unknown", 0)
		return fmt.Sprintf("Error: unknown tool %q", call.Name)
	}

	tracer := l.Tracer
	if tracer == nil {
		tracer = observability.NewNoopTracerProvider()
	}
	ctx, span := tracer.StartSpan(ctx, observability.SpanToolExecute, observability.ToolAttrs(call.Name)...)
	start := time.Now()
	result, err := tool.Execute(ctx, call)
	if err == nil && result != nil && result.Error != nil {
		err = result.Error
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	l.Metrics.RecordToolExecution(ctx, call.Name, status, time.Since(start))
	observability.EndSpan(span, err)

	if err != nil {
		logging.OrNop(l.Logger).Warn("tool %s failed: %v", call.Name, err)
		return "Error: " + triageerrors.FormatForLLM(err)
	}
	if result == nil {
		return ""
	}
	return result.Content
}
