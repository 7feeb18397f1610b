package config

import (
	"errors"
	"fmt"
	"slices"
)

var (
	llmProviders        = []string{"openai", "litellm", "ollama", "anthropic", "claude", ProviderMock}
	embeddingProviders  = []string{"openai", "litellm", "ollama", ProviderMock}
	promptProviders     = []string{ProviderEmbedded, ProviderFile, ProviderLangfuse}
	checkpointProviders = []string{ProviderMemory, ProviderRedis, ProviderPostgres}
	databaseProviders   = []string{ProviderMemory, ProviderPostgres, ProviderSQLite}
	eventProviders      = []string{ProviderNone, ProviderLog, ProviderKafka}
)

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d out of range", c.Server.Port)
	check(c.Server.RateLimit.RequestsPerMinute >= 0, "server.rate_limit.requests_per_minute must not be negative")

	check(slices.Contains(llmProviders, c.LLM.Provider), "unknown llm.provider %q", c.LLM.Provider)
	check(c.LLM.Model != "", "llm.model is required")
	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "llm.temperature %.2f out of range [0, 2]", c.LLM.Temperature)
	check(c.LLM.MaxTokens > 0, "llm.max_tokens must be positive")

	check(slices.Contains(embeddingProviders, c.Embedding.Provider), "unknown embedding.provider %q", c.Embedding.Provider)
	check(c.Agents.MaxToolRounds >= 0 && c.Agents.MaxToolRounds <= 10, "agents.max_tool_rounds %d out of range [0, 10]", c.Agents.MaxToolRounds)

	check(slices.Contains(promptProviders, c.Prompts.Provider), "unknown prompts.provider %q", c.Prompts.Provider)
	if c.Prompts.Provider == ProviderFile {
		check(c.Prompts.Path != "", "prompts.path is required for the file provider")
	}
	if c.Prompts.Provider == ProviderLangfuse {
		check(c.Prompts.Langfuse.PublicKey != "" && c.Prompts.Langfuse.SecretKey != "", "langfuse prompts need public_key and secret_key")
	}

	check(slices.Contains(checkpointProviders, c.Checkpoint.Provider), "unknown checkpoint.provider %q", c.Checkpoint.Provider)
	if c.Checkpoint.Provider == ProviderRedis {
		check(c.Checkpoint.Redis.Addr != "", "checkpoint.redis.addr is required for the redis provider")
	}

	check(slices.Contains(databaseProviders, c.Database.Provider), "unknown database.provider %q", c.Database.Provider)
	if c.Database.Provider == ProviderPostgres || c.Checkpoint.Provider == ProviderPostgres {
		check(c.Database.DSN != "", "database.dsn is required for postgres")
	}
	if c.Database.Provider == ProviderSQLite {
		check(c.Database.SQLitePath != "", "database.sqlite_path is required for sqlite")
	}

	check(c.KB.TopK > 0, "kb.top_k must be positive")
	check(c.KB.ChunkSize > 0 && c.KB.ChunkOverlap >= 0 && c.KB.ChunkOverlap < c.KB.ChunkSize,
		"kb.chunk_overlap must be in [0, chunk_size)")

	check(slices.Contains(eventProviders, c.Events.Provider), "unknown events.provider %q", c.Events.Provider)
	if c.Events.Provider == ProviderKafka {
		check(len(c.Events.Kafka.Brokers) > 0 && c.Events.Kafka.Topic != "", "kafka events need brokers and a topic")
	}

	return errors.Join(errs...)
}
