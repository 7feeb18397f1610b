package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	triageerrors "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/errors"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	jsonx "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/shared/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicClient struct {
	model  string
	config Config
	client anthropic.Client
	logger logging.Logger
}

// NewAnthropicClient constructs a Messages API client.
func NewAnthropicClient(model string, config Config) (ports.LLMClient, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("anthropic: model is required")
	}

	opts := []option.RequestOption{
		option.WithRequestTimeout(config.timeout()),
		option.WithMaxRetries(0),
	}
	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	for key, value := range config.Headers {
		opts = append(opts, option.WithHeader(key, value))
	}

	return &anthropicClient{
		model:  model,
		config: config,
		client: anthropic.NewClient(opts...),
		logger: logging.NewComponentLogger("AnthropicClient"),
	}, nil
}

func (c *anthropicClient) Model() string {
	return c.model
}

func (c *anthropicClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	system, messages := c.convertMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(c.config.maxTokensOr(req.MaxTokens)),
		Messages:    messages,
		Temperature: anthropic.Float(c.config.temperatureOr(req.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = c.convertTools(req.Tools)
	}

	c.logger.Debug("messages request model=%s agent=%s messages=%d tools=%d",
		c.model, req.Agent(), len(req.Messages), len(req.Tools))

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, triageerrors.ClassifyHTTPStatus(fmt.Errorf("anthropic: %w", err), apiErr.StatusCode)
		}
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	resp := &ports.CompletionResponse{
		StopReason: string(msg.StopReason),
		Usage: ports.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	var content strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if len(b.Input) > 0 {
				_ = jsonx.Unmarshal(b.Input, &args)
			}
			resp.ToolCalls = append(resp.ToolCalls, ports.ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	resp.Content = content.String()
	return resp, nil
}

// convertMessages lifts system messages into the system prompt and maps the
// rest onto user/assistant turns. Tool results travel as user turns.
func (c *anthropicClient) convertMessages(msgs []ports.Message) (string, []anthropic.MessageParam) {
	var system []string
	result := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case ports.RoleSystem:
			system = append(system, msg.Content)
		case ports.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    call.ID,
						Name:  call.Name,
						Input: call.Arguments,
					},
				})
			}
			if len(blocks) == 0 {
				continue
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		case ports.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return strings.Join(system, "\n\n"), result
}

func (c *anthropicClient) convertTools(tools []ports.ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.Parameters.SchemaProperties(),
					Required:   tool.Parameters.Required,
				},
			},
		})
	}
	return result
}
