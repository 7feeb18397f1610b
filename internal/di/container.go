// Package di assembles the triage service from configuration.
package di

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/config"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/events"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/kb"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/observability"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/prompts"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/resolution"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/triage"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	StartedAt time.Time

	Logger       *observability.Logger
	Metrics      *observability.MetricsCollector
	Tracer       *observability.TracerProvider
	StoreMetrics *observability.StoreMetrics

	LLM      ports.LLMClient
	Embedder ports.Embedder
	Prompts  prompts.Source

	KBStore  *kb.Store
	Searcher *kb.Searcher

	Store       storage.Store
	Checkpoints graph.CheckpointStore
	Events      events.Publisher

	Workflow *graph.Workflow
	Resolver *resolution.Service
	Triage   *triage.Service

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Option customises a Build.
type Option func(*containerBuilder)

// WithLLMMiddleware wraps the instrumented LLM client before any agent sees
// it. Wrappers apply in the order given.
func WithLLMMiddleware(wrap func(ports.LLMClient) ports.LLMClient) Option {
	return func(b *containerBuilder) {
		if wrap != nil {
			b.llmMiddleware = append(b.llmMiddleware, wrap)
		}
	}
}

// Build wires every component named by cfg. Resources opened before a
// failure are released before returning the error.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	builder := newContainerBuilder(cfg)
	for _, opt := range opts {
		opt(builder)
	}
	c, err := builder.build(ctx)
	if err != nil {
		builder.logger.Error("container build failed: %v", err)
		_ = builder.release(context.WithoutCancel(ctx))
		return nil, err
	}
	return c, nil
}

// Cleanup gracefully shuts down all resources in reverse build order.
func (c *Container) Cleanup(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.closers[i].name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Ingest loads the markdown articles under dir into the knowledge base.
// Articles that fail to parse are logged and skipped.
func (c *Container) Ingest(ctx context.Context, dir string) (kb.IngestStats, error) {
	articles, skipped, err := kb.LoadArticles(resolveStorageDir(dir, ""))
	if err != nil {
		return kb.IngestStats{}, err
	}
	logger := logging.NewComponentLogger("KBIngest")
	for path, skipErr := range skipped {
		logger.Warn("skipping article %s: %v", path, skipErr)
	}
	chunker := kb.NewChunker(kb.ChunkerConfig{
		ChunkSize:    c.Config.KB.ChunkSize,
		ChunkOverlap: c.Config.KB.ChunkOverlap,
	})
	return kb.NewIngestor(chunker, c.Embedder, c.KBStore).Ingest(ctx, articles)
}

// resolveStorageDir resolves a storage path, handling ~ expansion and
// environment variables.
func resolveStorageDir(configured, defaultPath string) string {
	path := configured
	if path == "" {
		path = defaultPath
	}
	if path == "" {
		return path
	}

	if path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			switch {
			case len(path) == 1:
				path = home
			case path[1] == '/':
				path = filepath.Join(home, path[2:])
			default:
				// ~path is treated as relative to home
				path = filepath.Join(home, path[1:])
			}
		}
	}

	return os.ExpandEnv(path)
}
