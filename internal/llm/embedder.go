package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	triageerrors "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// EmbedderConfig holds embedding configuration
type EmbedderConfig struct {
	Provider  string // openai, litellm, mock
	Model     string // text-embedding-3-small
	APIKey    string
	BaseURL   string
	CacheSize int // LRU cache size, default 10000
}

const maxEmbeddingBatch = 100

// openaiEmbedder calls the embeddings endpoint and caches vectors by text.
type openaiEmbedder struct {
	model       string
	client      openai.Client
	cache       *lru.Cache[string, []float32]
	retryConfig triageerrors.RetryConfig
}

// NewEmbedder builds the embedder named by config.Provider.
func NewEmbedder(config EmbedderConfig) (ports.Embedder, error) {
	switch strings.ToLower(config.Provider) {
	case "mock", "hash":
		return NewHashEmbedder(0), nil
	case "", "openai", "litellm":
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", config.Provider)
	}

	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 10000
	}
	cache, err := lru.New[string, []float32](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(config.BaseURL, "/")+"/"))
	}

	return &openaiEmbedder{
		model:       config.Model,
		client:      openai.NewClient(opts...),
		cache:       cache,
		retryConfig: triageerrors.DefaultRetryConfig(),
	}, nil
}

// Embed returns one vector per text, in order. Uncached texts are sent in
// batches of at most 100.
func (e *openaiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided")
	}

	results := make([][]float32, len(texts))
	var missingIdx []int
	var missing []string
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			results[i] = cached
			continue
		}
		missingIdx = append(missingIdx, i)
		missing = append(missing, text)
	}

	for start := 0; start < len(missing); start += maxEmbeddingBatch {
		end := min(start+maxEmbeddingBatch, len(missing))
		batch := missing[start:end]
		vectors, err := triageerrors.RetryWithResult(ctx, e.retryConfig, func(ctx context.Context) ([][]float32, error) {
			return e.callAPI(ctx, batch)
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		for i, vec := range vectors {
			idx := missingIdx[start+i]
			e.cache.Add(texts[idx], vec)
			results[idx] = vec
		}
	}
	return results, nil
}

func (e *openaiEmbedder) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(vectors) {
			return nil, fmt.Errorf("invalid embedding index: %d", item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vectors[item.Index] = vec
	}
	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return vectors, nil
}
