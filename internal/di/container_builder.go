package di

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agents"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/checkpoint"
	checkpointpg "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/checkpoint/postgresstore"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/checkpoint/redisstore"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/config"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	triageerrors "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/errors"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/events"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/kb"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/llm"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/observability"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/prompts"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/resolution"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"
	storagepg "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage/postgresstore"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage/sqlitestore"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/triage"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/workflow"

	"github.com/jackc/pgx/v5/pgxpool"
)

type containerBuilder struct {
	config  *config.Config
	logger  logging.Logger
	pool    *pgxpool.Pool
	closers []closer

	llmMiddleware []func(ports.LLMClient) ports.LLMClient
}

func newContainerBuilder(cfg *config.Config) *containerBuilder {
	return &containerBuilder{
		config: cfg,
		logger: logging.NewComponentLogger("DI"),
	}
}

func (b *containerBuilder) onClose(name string, fn func(context.Context) error) {
	b.closers = append(b.closers, closer{name: name, fn: fn})
}

func (b *containerBuilder) release(ctx context.Context) error {
	c := &Container{closers: b.closers}
	b.closers = nil
	return c.Cleanup(ctx)
}

func (b *containerBuilder) build(ctx context.Context) (*Container, error) {
	c := &Container{Config: b.config, StartedAt: time.Now()}

	// Infrastructure Layer
	if err := b.buildObservability(c); err != nil {
		return nil, err
	}
	b.logger.Debug("building container llm=%s/%s checkpoint=%s database=%s events=%s",
		b.config.LLM.Provider, b.config.LLM.Model, b.config.Checkpoint.Provider,
		b.config.Database.Provider, b.config.Events.Provider)

	if err := b.buildLLM(c); err != nil {
		return nil, err
	}
	if err := b.buildKnowledgeBase(ctx, c); err != nil {
		return nil, err
	}
	if err := b.buildPrompts(c); err != nil {
		return nil, err
	}
	if err := b.buildStore(ctx, c); err != nil {
		return nil, err
	}
	if err := b.buildCheckpoints(ctx, c); err != nil {
		return nil, err
	}
	if err := b.buildEvents(c); err != nil {
		return nil, err
	}

	// Application Layer
	if err := b.buildServices(c); err != nil {
		return nil, err
	}

	c.closers = b.closers
	b.closers = nil
	b.logger.Info("container built successfully")
	return c, nil
}

func (b *containerBuilder) buildObservability(c *Container) error {
	obs := b.config.Observability
	c.Logger = observability.NewLogger(observability.LogConfig{
		Level:  obs.Logging.Level,
		Format: obs.Logging.Format,
	})
	logging.SetDefault(c.Logger)
	b.logger = logging.NewComponentLogger("DI")

	metrics, err := observability.NewMetricsCollector(obs.Metrics)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	c.Metrics = metrics
	b.onClose("metrics", metrics.Shutdown)

	tracer, err := observability.NewTracerProvider(obs.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	c.Tracer = tracer
	b.onClose("tracing", tracer.Shutdown)

	c.StoreMetrics = observability.NewStoreMetrics()
	return nil
}

func (b *containerBuilder) buildLLM(c *Container) error {
	llmCfg := b.config.LLM

	retry := triageerrors.DefaultRetryConfig()
	if llmCfg.Retry.MaxAttempts > 0 {
		retry.MaxAttempts = llmCfg.Retry.MaxAttempts
	}
	if llmCfg.Retry.BaseDelay > 0 {
		retry.BaseDelay = llmCfg.Retry.BaseDelay
	}
	if llmCfg.Retry.MaxDelay > 0 {
		retry.MaxDelay = llmCfg.Retry.MaxDelay
	}
	factory := llm.NewFactoryWithRetryConfig(retry, triageerrors.DefaultCircuitBreakerConfig())
	if !llmCfg.Retry.Enabled {
		factory.DisableRetry()
	}

	client, err := factory.GetClient(llmCfg.Provider, llmCfg.Model, llm.Config{
		APIKey:      llmCfg.APIKey,
		BaseURL:     llmCfg.BaseURL,
		Timeout:     llmCfg.Timeout,
		Temperature: llmCfg.Temperature,
		MaxTokens:   llmCfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("init llm client: %w", err)
	}
	var recorder observability.GenerationRecorder = observability.NopGenerationRecorder{}
	if b.config.Observability.Tracing.Enabled {
		recorder = observability.NewSpanGenerationRecorder(c.Tracer)
	}
	c.LLM = llm.WithInstrumentation(client, c.Metrics, recorder)
	for _, wrap := range b.llmMiddleware {
		c.LLM = wrap(c.LLM)
	}

	embCfg := b.config.Embedding
	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Provider:  embCfg.Provider,
		Model:     embCfg.Model,
		APIKey:    embCfg.APIKey,
		BaseURL:   embCfg.BaseURL,
		CacheSize: embCfg.CacheSize,
	})
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	c.Embedder = embedder
	return nil
}

func (b *containerBuilder) buildKnowledgeBase(ctx context.Context, c *Container) error {
	kbCfg := b.config.KB
	store, err := kb.NewStore(kb.StoreConfig{
		PersistPath: resolveStorageDir(kbCfg.PersistPath, ""),
		Collection:  kbCfg.Collection,
	}, c.Embedder)
	if err != nil {
		return fmt.Errorf("init knowledge base: %w", err)
	}
	c.KBStore = store
	c.Searcher = kb.NewSearcher(c.Embedder, store)

	if store.Count() > 0 || kbCfg.Source == "" {
		return nil
	}
	source := resolveStorageDir(kbCfg.Source, "")
	if _, err := os.Stat(source); err != nil {
		b.logger.Info("knowledge base is empty and %s is not readable, specialists will search an empty index", source)
		return nil
	}
	stats, err := c.Ingest(ctx, source)
	if err != nil {
		// An empty index degrades specialists to "No relevant articles found."
		b.logger.Warn("knowledge base seed from %s failed: %v", source, err)
		return nil
	}
	b.logger.Info("seeded knowledge base from %s: %d articles, %d chunks", source, stats.Articles, stats.Chunks)
	return nil
}

func (b *containerBuilder) buildPrompts(c *Container) error {
	source, err := NewPromptSource(b.config.Prompts)
	if err != nil {
		return fmt.Errorf("init prompts: %w", err)
	}
	c.Prompts = source
	return nil
}

// NewPromptSource opens the prompt source named by cfg.Provider. Unknown
// providers use the embedded templates.
func NewPromptSource(cfg config.PromptsConfig) (prompts.Source, error) {
	switch cfg.Provider {
	case config.ProviderFile:
		file, err := prompts.NewFileSource(resolveStorageDir(cfg.Path, ""))
		if err != nil {
			return nil, err
		}
		return file, nil
	case config.ProviderLangfuse:
		remote, err := NewLangfuseSource(cfg.Langfuse)
		if err != nil {
			return nil, err
		}
		return prompts.NewCachedSource(remote, cfg.CacheTTL), nil
	default:
		return prompts.NewEmbeddedSource(), nil
	}
}

// NewLangfuseSource opens the Langfuse prompt API without caching.
func NewLangfuseSource(cfg config.LangfuseConfig) (*prompts.LangfuseSource, error) {
	return prompts.NewLangfuseSource(prompts.LangfuseConfig{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Timeout:   cfg.Timeout,
	})
}

// postgresPool opens one pool shared by the relational and checkpoint stores.
func (b *containerBuilder) postgresPool(ctx context.Context) (*pgxpool.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}
	pool, err := pgxpool.New(ctx, b.config.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	b.pool = pool
	b.onClose("postgres", func(context.Context) error {
		pool.Close()
		return nil
	})
	return pool, nil
}

func (b *containerBuilder) buildStore(ctx context.Context, c *Container) error {
	dbCfg := b.config.Database
	switch dbCfg.Provider {
	case config.ProviderPostgres:
		pool, err := b.postgresPool(ctx)
		if err != nil {
			return err
		}
		store := storagepg.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("init relational store: %w", err)
		}
		c.Store = store
	case config.ProviderSQLite:
		store, err := sqlitestore.Open(ctx, resolveStorageDir(dbCfg.SQLitePath, "triage.db"))
		if err != nil {
			return fmt.Errorf("init relational store: %w", err)
		}
		c.Store = store
		b.onClose("sqlite", func(context.Context) error { return store.Close() })
	default:
		c.Store = storage.NewMemoryStore()
	}
	return nil
}

func (b *containerBuilder) buildCheckpoints(ctx context.Context, c *Container) error {
	cpCfg := b.config.Checkpoint
	switch cpCfg.Provider {
	case config.ProviderRedis:
		store, err := redisstore.Open(ctx, redisstore.Config{
			Addr:      cpCfg.Redis.Addr,
			Password:  cpCfg.Redis.Password,
			DB:        cpCfg.Redis.DB,
			TTL:       cpCfg.TTL,
			KeyPrefix: cpCfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("init checkpoint store: %w", err)
		}
		c.Checkpoints = store
		b.onClose("redis", func(context.Context) error { return store.Close() })
	case config.ProviderPostgres:
		pool, err := b.postgresPool(ctx)
		if err != nil {
			return err
		}
		store := checkpointpg.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("init checkpoint store: %w", err)
		}
		c.Checkpoints = store
	default:
		c.Checkpoints = checkpoint.NewMemoryStore()
	}
	return nil
}

func (b *containerBuilder) buildEvents(c *Container) error {
	evCfg := b.config.Events
	switch evCfg.Provider {
	case config.ProviderKafka:
		publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      evCfg.Kafka.Brokers,
			Topic:        evCfg.Kafka.Topic,
			WriteTimeout: evCfg.Kafka.WriteTimeout,
		}, logging.NewComponentLogger("KafkaEvents"))
		if err != nil {
			return fmt.Errorf("init events: %w", err)
		}
		c.Events = publisher
	case config.ProviderLog:
		c.Events = events.NewLogPublisher(logging.NewComponentLogger("TicketEvents"))
	default:
		c.Events = events.Nop{}
	}
	b.onClose("events", func(context.Context) error { return c.Events.Close() })
	return nil
}

func (b *containerBuilder) buildServices(c *Container) error {
	deps := agents.Deps{
		LLM:           c.LLM,
		Prompts:       c.Prompts,
		PromptLabel:   b.config.Agents.PromptLabel,
		MaxToolRounds: b.config.Agents.MaxToolRounds,
		Tracer:        c.Tracer,
		Metrics:       c.Metrics,
	}
	searcher := boundedSearcher{searcher: c.Searcher, maxK: b.config.KB.TopK}

	specialists := map[domain.TicketType]*agents.Specialist{}
	for _, kind := range []domain.TicketType{domain.TicketTypeBilling, domain.TicketTypeTechnical, domain.TicketTypeGeneral} {
		specialist, err := agents.NewSpecialist(kind, deps, searcher)
		if err != nil {
			return fmt.Errorf("init %s specialist: %w", kind, err)
		}
		specialists[kind] = specialist
	}

	nodeLogger := logging.NewComponentLogger("WorkflowRun")
	wf, err := graph.New(graph.Agents{
		Translator: agents.NewTranslator(deps),
		Supervisor: agents.NewSupervisor(deps, c.Store),
		Billing:    specialists[domain.TicketTypeBilling],
		Technical:  specialists[domain.TicketTypeTechnical],
		General:    specialists[domain.TicketTypeGeneral],
	}, graph.Options{
		Checkpoints:  c.Checkpoints,
		Tracer:       c.Tracer,
		Metrics:      c.Metrics,
		StoreMetrics: c.StoreMetrics,
		Listeners: []workflow.Listener{workflow.ListenerFunc(func(e workflow.Event) {
			if e.Node != nil && e.Type != workflow.EventRunUpdated {
				nodeLogger.Debug("run %s %s node=%s duration=%s", e.Run, e.Type, e.Node.ID, e.Node.Duration)
			}
		})},
	})
	if err != nil {
		return fmt.Errorf("init workflow: %w", err)
	}
	c.Workflow = wf

	c.Resolver = resolution.NewService(c.Checkpoints, agents.NewTicketMatcher(deps), resolution.Options{
		Tracer:       c.Tracer,
		Metrics:      c.Metrics,
		StoreMetrics: c.StoreMetrics,
		Tickets:      c.Store,
	})

	svc, err := triage.NewService(c.Resolver, c.Workflow, c.Store, triage.Options{
		Events:       c.Events,
		Tracer:       c.Tracer,
		StoreMetrics: c.StoreMetrics,
	})
	if err != nil {
		return fmt.Errorf("init triage service: %w", err)
	}
	c.Triage = svc
	return nil
}

// boundedSearcher caps kb_search results at kb.top_k.
type boundedSearcher struct {
	searcher *kb.Searcher
	maxK     int
}

func (s boundedSearcher) Search(ctx context.Context, query, category string, topK int) ([]kb.SearchResult, error) {
	if s.searcher == nil {
		return nil, errors.New("knowledge base is not configured")
	}
	return s.searcher.Search(ctx, query, category, boundedTopK(topK, s.maxK))
}

func boundedTopK(requested, maxK int) int {
	if maxK > 0 && (requested <= 0 || requested > maxK) {
		return maxK
	}
	return requested
}
