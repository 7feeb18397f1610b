package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	triageerrors "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/errors"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
)

// retryClient wraps an LLM client with retry logic and circuit breaker
type retryClient struct {
	underlying     ports.LLMClient
	retryConfig    triageerrors.RetryConfig
	circuitBreaker *triageerrors.CircuitBreaker
	logger         logging.Logger
}

// NewRetryClient wraps an LLM client with retry and circuit breaker logic
func NewRetryClient(client ports.LLMClient, retryConfig triageerrors.RetryConfig, circuitBreaker *triageerrors.CircuitBreaker) ports.LLMClient {
	return &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		circuitBreaker: circuitBreaker,
		logger:         logging.NewComponentLogger("LLMRetry"),
	}
}

// WrapWithRetry wraps client with retries and a breaker named after its model.
func WrapWithRetry(client ports.LLMClient, retryConfig triageerrors.RetryConfig, circuitBreakerConfig triageerrors.CircuitBreakerConfig) ports.LLMClient {
	breaker := triageerrors.NewCircuitBreaker(fmt.Sprintf("llm-%s", client.Model()), circuitBreakerConfig)
	return NewRetryClient(client, retryConfig, breaker)
}

// Complete executes LLM completion with retry logic
func (c *retryClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	startTime := time.Now()

	resp, err := triageerrors.RetryWithResultAndLog(ctx, c.retryConfig, func(ctx context.Context) (*ports.CompletionResponse, error) {
		return triageerrors.ExecuteFunc(c.circuitBreaker, ctx, func(ctx context.Context) (*ports.CompletionResponse, error) {
			return c.underlying.Complete(ctx, req)
		})
	}, c.logger)

	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("LLM request for agent %q failed after %v: %v", req.Agent(), duration.Round(time.Millisecond), err)
		return nil, err
	}
	if duration > 10*time.Second {
		c.logger.Debug("LLM request for agent %q took %v", req.Agent(), duration.Round(time.Millisecond))
	}
	return resp, nil
}

// Model returns the underlying model name
func (c *retryClient) Model() string {
	return c.underlying.Model()
}
