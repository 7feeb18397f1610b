package llm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	triageerrors "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/errors"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Constructor builds a client for one provider.
type Constructor func(model string, config Config) (ports.LLMClient, error)

// Factory resolves provider names to clients. Each (provider, model) pair is
// built once and reused for the life of the process.
type Factory struct {
	mu                   sync.RWMutex
	constructors         map[string]Constructor
	cache                *lru.Cache[string, ports.LLMClient]
	enableRetry          bool
	retryConfig          triageerrors.RetryConfig
	circuitBreakerConfig triageerrors.CircuitBreakerConfig
}

const defaultLLMCacheSize = 16

// NewFactory returns a factory with the built-in providers registered.
func NewFactory() *Factory {
	cache, _ := lru.New[string, ports.LLMClient](defaultLLMCacheSize)
	f := &Factory{
		constructors:         map[string]Constructor{},
		cache:                cache,
		enableRetry:          true,
		retryConfig:          triageerrors.DefaultRetryConfig(),
		circuitBreakerConfig: triageerrors.DefaultCircuitBreakerConfig(),
	}
	f.Register(NewOpenAIClient, "openai")
	f.Register(newCompatibleConstructor("http://localhost:4000"), "litellm")
	f.Register(newCompatibleConstructor("http://localhost:11434/v1"), "ollama")
	f.Register(NewAnthropicClient, "anthropic", "claude")
	f.Register(func(model string, _ Config) (ports.LLMClient, error) {
		return NewScriptedClient(model), nil
	}, "mock")
	return f
}

// NewFactoryWithRetryConfig creates a factory with custom retry configuration
func NewFactoryWithRetryConfig(retryConfig triageerrors.RetryConfig, circuitBreakerConfig triageerrors.CircuitBreakerConfig) *Factory {
	f := NewFactory()
	f.retryConfig = retryConfig
	f.circuitBreakerConfig = circuitBreakerConfig
	return f
}

func newCompatibleConstructor(defaultBaseURL string) Constructor {
	return func(model string, config Config) (ports.LLMClient, error) {
		if config.BaseURL == "" {
			config.BaseURL = defaultBaseURL
		}
		return NewOpenAIClient(model, config)
	}
}

// Register adds a constructor under one or more provider names.
func (f *Factory) Register(constructor Constructor, names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range names {
		f.constructors[strings.ToLower(name)] = constructor
	}
}

// Supports reports whether name is a registered provider.
func (f *Factory) Supports(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.constructors[strings.ToLower(name)]
	return ok
}

// DisableRetry disables retry logic for all clients created by this factory
func (f *Factory) DisableRetry() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enableRetry = false
}

// GetClient returns the client for provider and model, building it on first use.
func (f *Factory) GetClient(provider, model string, config Config) (ports.LLMClient, error) {
	key := fmt.Sprintf("%s:%s", strings.ToLower(provider), model)

	f.mu.RLock()
	constructor, ok := f.constructors[strings.ToLower(provider)]
	enableRetry := f.enableRetry
	retryConfig := f.retryConfig
	breakerConfig := f.circuitBreakerConfig
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	if client, hit := f.cache.Get(key); hit {
		return client, nil
	}

	client, err := constructor(model, config)
	if err != nil {
		return nil, fmt.Errorf("build %s client: %w", provider, err)
	}
	if enableRetry {
		client = WrapWithRetry(client, retryConfig, breakerConfig)
	}
	f.cache.Add(key, client)
	return client, nil
}
