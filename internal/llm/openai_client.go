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

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiClient speaks the chat completions API. It serves OpenAI itself and
// any compatible gateway (LiteLLM proxy, vLLM, Ollama) via BaseURL.
type openaiClient struct {
	model  string
	config Config
	client openai.Client
	logger logging.Logger
}

// NewOpenAIClient constructs an OpenAI-compatible chat client.
func NewOpenAIClient(model string, config Config) (ports.LLMClient, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("openai: model is required")
	}

	opts := []option.RequestOption{
		option.WithRequestTimeout(config.timeout()),
		option.WithMaxRetries(0),
	}
	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(config.BaseURL, "/")+"/"))
	}
	for key, value := range config.Headers {
		opts = append(opts, option.WithHeader(key, value))
	}

	return &openaiClient{
		model:  model,
		config: config,
		client: openai.NewClient(opts...),
		logger: logging.NewComponentLogger("OpenAIClient"),
	}, nil
}

func (c *openaiClient) Model() string {
	return c.model
}

func (c *openaiClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    c.convertMessages(req.Messages),
		Temperature: openai.Float(c.config.temperatureOr(req.Temperature)),
		MaxTokens:   openai.Int(int64(c.config.maxTokensOr(req.MaxTokens))),
	}
	if len(req.Tools) > 0 {
		params.Tools = c.convertTools(req.Tools)
	}

	c.logger.Debug("chat completion model=%s agent=%s messages=%d tools=%d",
		c.model, req.Agent(), len(req.Messages), len(req.Tools))

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, triageerrors.NewTransientError(errors.New("openai: empty choices"), "model returned no choices")
	}

	choice := completion.Choices[0]
	resp := &ports.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: ports.TokenUsage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	for _, call := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ports.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: decodeArguments(call.Function.Arguments),
		})
	}
	return resp, nil
}

func (c *openaiClient) convertMessages(msgs []ports.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case ports.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case ports.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				result = append(result, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(msg.Content),
				}
			}
			for _, call := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: encodeArguments(call.Arguments),
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case ports.RoleTool:
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}

func (c *openaiClient) convertTools(tools []ports.ToolDefinition) []openai.ChatCompletionToolParam {
	result := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, tool := range tools {
		parameters := openai.FunctionParameters{
			"type":       "object",
			"properties": tool.Parameters.SchemaProperties(),
		}
		if len(tool.Parameters.Required) > 0 {
			parameters["required"] = tool.Parameters.Required
		}
		result = append(result, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  parameters,
			},
		})
	}
	return result
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return triageerrors.ClassifyHTTPStatus(fmt.Errorf("openai: %w", err), apiErr.StatusCode)
	}
	return fmt.Errorf("openai: %w", err)
}

func decodeArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := jsonx.Unmarshal([]byte(raw), &args); err != nil {
		repaired, repairErr := jsonx.Repair(raw)
		if repairErr != nil || jsonx.Unmarshal([]byte(repaired), &args) != nil {
			return map[string]any{}
		}
	}
	return args
}

func encodeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := jsonx.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}
