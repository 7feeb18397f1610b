package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: server.port is read from
// TRIAGE_SERVER_PORT.
const EnvPrefix = "TRIAGE"

// Provider names accepted by Validate.
const (
	ProviderMock     = "mock"
	ProviderMemory   = "memory"
	ProviderRedis    = "redis"
	ProviderPostgres = "postgres"
	ProviderSQLite   = "sqlite"
	ProviderEmbedded = "embedded"
	ProviderFile     = "file"
	ProviderLangfuse = "langfuse"
	ProviderNone     = "none"
	ProviderLog      = "log"
	ProviderKafka    = "kafka"
)

// Metadata describes how a Config was assembled.
type Metadata struct {
	// File is the config file that was read, empty when none.
	File     string
	LoadedAt time.Time
	// Notes records adjustments made while loading, such as a provider
	// switched to mock for lack of credentials.
	Notes []string
}

type loadOptions struct {
	file      string
	overrides map[string]any
}

// Option customizes Load.
type Option func(*loadOptions)

// WithFile reads path instead of searching for triage.yaml.
func WithFile(path string) Option {
	return func(o *loadOptions) { o.file = path }
}

// WithOverrides applies values after every other source, keyed by dotted
// path ("llm.provider").
func WithOverrides(values map[string]any) Option {
	return func(o *loadOptions) {
		if o.overrides == nil {
			o.overrides = map[string]any{}
		}
		for k, v := range values {
			o.overrides[k] = v
		}
	}
}

// envAliases lists conventional variable names honored after the
// TRIAGE_-prefixed one.
var envAliases = map[string][]string{
	"llm.api_key":                 {"LLM_API_KEY", "OPENAI_API_KEY"},
	"llm.base_url":                {"LLM_BASE_URL", "LITELLM_PROXY_URL"},
	"embedding.api_key":           {"OPENAI_API_KEY"},
	"prompts.langfuse.host":       {"LANGFUSE_HOST"},
	"prompts.langfuse.public_key": {"LANGFUSE_PUBLIC_KEY"},
	"prompts.langfuse.secret_key": {"LANGFUSE_SECRET_KEY"},
	"database.dsn":                {"DATABASE_URL"},
	"checkpoint.redis.addr":       {"REDIS_ADDR"},
	"checkpoint.redis.password":   {"REDIS_PASSWORD"},
}

// Load assembles the configuration.
func Load(opts ...Option) (*Config, Metadata, error) {
	options := loadOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	meta := Metadata{LoadedAt: time.Now()}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{envName(key)}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, meta, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if options.file != "" {
		v.SetConfigFile(options.file)
	} else {
		v.SetConfigName("triage")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".triage"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if options.file != "" || !errors.As(err, &notFound) {
			return nil, meta, fmt.Errorf("read config: %w", err)
		}
	} else {
		meta.File = v.ConfigFileUsed()
	}

	for key, value := range options.overrides {
		v.Set(key, value)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, meta, fmt.Errorf("decode config: %w", err)
	}
	normalize(cfg, &meta)
	return cfg, meta, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 180*time.Second)
	v.SetDefault("server.rate_limit.requests_per_minute", 120)
	v.SetDefault("server.rate_limit.burst", 20)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.retry.enabled", true)
	v.SetDefault("llm.retry.max_attempts", 3)
	v.SetDefault("llm.retry.base_delay", time.Second)
	v.SetDefault("llm.retry.max_delay", 30*time.Second)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.cache_size", 10000)

	v.SetDefault("agents.max_tool_rounds", 6)
	v.SetDefault("agents.prompt_label", "production")

	v.SetDefault("prompts.provider", ProviderEmbedded)
	v.SetDefault("prompts.path", "")
	v.SetDefault("prompts.cache_ttl", 5*time.Minute)
	v.SetDefault("prompts.langfuse.host", "https://cloud.langfuse.com")
	v.SetDefault("prompts.langfuse.public_key", "")
	v.SetDefault("prompts.langfuse.secret_key", "")
	v.SetDefault("prompts.langfuse.timeout", 10*time.Second)

	v.SetDefault("checkpoint.provider", ProviderMemory)
	v.SetDefault("checkpoint.ttl", 72*time.Hour)
	v.SetDefault("checkpoint.redis.addr", "localhost:6379")
	v.SetDefault("checkpoint.redis.password", "")
	v.SetDefault("checkpoint.redis.db", 0)
	v.SetDefault("checkpoint.redis.key_prefix", "triage:checkpoint:")

	v.SetDefault("database.provider", ProviderMemory)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.sqlite_path", "triage.db")

	v.SetDefault("kb.persist_path", "")
	v.SetDefault("kb.collection", "support_kb")
	v.SetDefault("kb.source", "knowledge_base")
	v.SetDefault("kb.top_k", 3)
	v.SetDefault("kb.chunk_size", 512)
	v.SetDefault("kb.chunk_overlap", 50)

	v.SetDefault("events.provider", ProviderNone)
	v.SetDefault("events.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("events.kafka.topic", "ticket-events")
	v.SetDefault("events.kafka.write_timeout", 10*time.Second)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.exporter", "otlp")
	v.SetDefault("observability.tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("observability.tracing.zipkin_endpoint", "http://localhost:9411/api/v2/spans")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.tracing.service_name", "support-ticket-triage")
	v.SetDefault("observability.tracing.service_version", "1.0.0")
}

// normalize trims values and falls back to the mock provider when a
// hosted provider has no credentials.
func normalize(cfg *Config, meta *Metadata) {
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.LLM.Model = strings.TrimSpace(cfg.LLM.Model)
	cfg.LLM.APIKey = strings.TrimSpace(cfg.LLM.APIKey)
	cfg.LLM.BaseURL = strings.TrimSpace(cfg.LLM.BaseURL)
	cfg.Embedding.Provider = strings.ToLower(strings.TrimSpace(cfg.Embedding.Provider))
	cfg.Embedding.APIKey = strings.TrimSpace(cfg.Embedding.APIKey)
	cfg.Prompts.Provider = strings.ToLower(strings.TrimSpace(cfg.Prompts.Provider))
	cfg.Checkpoint.Provider = strings.ToLower(strings.TrimSpace(cfg.Checkpoint.Provider))
	cfg.Database.Provider = strings.ToLower(strings.TrimSpace(cfg.Database.Provider))
	cfg.Events.Provider = strings.ToLower(strings.TrimSpace(cfg.Events.Provider))
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}

	if needsAPIKey(cfg.LLM.Provider) && cfg.LLM.APIKey == "" {
		meta.Notes = append(meta.Notes, fmt.Sprintf("llm.provider %s has no api key, using mock", cfg.LLM.Provider))
		cfg.LLM.Provider = ProviderMock
	}
	if needsAPIKey(cfg.Embedding.Provider) && cfg.Embedding.APIKey == "" {
		meta.Notes = append(meta.Notes, fmt.Sprintf("embedding.provider %s has no api key, using mock", cfg.Embedding.Provider))
		cfg.Embedding.Provider = ProviderMock
	}
}

func needsAPIKey(provider string) bool {
	switch provider {
	case "openai", "anthropic", "claude":
		return true
	}
	return false
}
