// Package config loads the service configuration: defaults, then an
// optional YAML file, then TRIAGE_* environment variables, then caller
// overrides.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/observability"
)

// Config is the complete service configuration.
type Config struct {
	Server        ServerConfig         `mapstructure:"server" yaml:"server"`
	LLM           LLMConfig            `mapstructure:"llm" yaml:"llm"`
	Embedding     EmbeddingConfig      `mapstructure:"embedding" yaml:"embedding"`
	Agents        AgentsConfig         `mapstructure:"agents" yaml:"agents"`
	Prompts       PromptsConfig        `mapstructure:"prompts" yaml:"prompts"`
	Checkpoint    CheckpointConfig     `mapstructure:"checkpoint" yaml:"checkpoint"`
	Database      DatabaseConfig       `mapstructure:"database" yaml:"database"`
	KB            KBConfig             `mapstructure:"kb" yaml:"kb"`
	Events        EventsConfig         `mapstructure:"events" yaml:"events"`
	Observability observability.Config `mapstructure:"observability" yaml:"observability"`
}

type ServerConfig struct {
	Host         string          `mapstructure:"host" yaml:"host"`
	Port         int             `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout" yaml:"write_timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	CORSOrigins  []string        `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// RateLimitConfig bounds requests per client IP. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int `mapstructure:"burst" yaml:"burst"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retry       RetryConfig   `mapstructure:"retry" yaml:"retry"`
}

type RetryConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`
	Model     string `mapstructure:"model" yaml:"model"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	CacheSize int    `mapstructure:"cache_size" yaml:"cache_size"`
}

type AgentsConfig struct {
	MaxToolRounds int    `mapstructure:"max_tool_rounds" yaml:"max_tool_rounds"`
	PromptLabel   string `mapstructure:"prompt_label" yaml:"prompt_label"`
}

type PromptsConfig struct {
	// Provider is embedded, file or langfuse.
	Provider string         `mapstructure:"provider" yaml:"provider"`
	Path     string         `mapstructure:"path" yaml:"path"`
	CacheTTL time.Duration  `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	Langfuse LangfuseConfig `mapstructure:"langfuse" yaml:"langfuse"`
}

type LangfuseConfig struct {
	Host      string        `mapstructure:"host" yaml:"host"`
	PublicKey string        `mapstructure:"public_key" yaml:"public_key"`
	SecretKey string        `mapstructure:"secret_key" yaml:"secret_key"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type CheckpointConfig struct {
	// Provider is memory, redis or postgres.
	Provider string        `mapstructure:"provider" yaml:"provider"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Redis    RedisConfig   `mapstructure:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

type DatabaseConfig struct {
	// Provider is memory, postgres or sqlite.
	Provider   string `mapstructure:"provider" yaml:"provider"`
	DSN        string `mapstructure:"dsn" yaml:"dsn"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

type KBConfig struct {
	PersistPath  string `mapstructure:"persist_path" yaml:"persist_path"`
	Collection   string `mapstructure:"collection" yaml:"collection"`
	Source       string `mapstructure:"source" yaml:"source"`
	TopK         int    `mapstructure:"top_k" yaml:"top_k"`
	ChunkSize    int    `mapstructure:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap" yaml:"chunk_overlap"`
}

type EventsConfig struct {
	// Provider is none, log or kafka.
	Provider string      `mapstructure:"provider" yaml:"provider"`
	Kafka    KafkaConfig `mapstructure:"kafka" yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers" yaml:"brokers"`
	Topic        string        `mapstructure:"topic" yaml:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
