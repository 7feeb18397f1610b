// Package redisstore keeps checkpoints in Redis, one key per thread.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/checkpoint"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces checkpoint keys.
const DefaultKeyPrefix = "triage:checkpoint:"

const scanBatch = 100

// Config configures the store.
type Config struct {
	Addr     string
	Password string
	DB       int
	// TTL expires idle threads; zero keeps them forever.
	TTL       time.Duration
	KeyPrefix string
}

// Store implements checkpoint.Store on Redis.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger logging.Logger
}

var _ checkpoint.Store = (*Store)(nil)

// New wraps an existing client.
func New(client *redis.Client, cfg Config) *Store {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
		logger: logging.NewComponentLogger("RedisCheckpointStore"),
	}
}

// Open connects to cfg.Addr and pings it.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return New(client, cfg), nil
}

func (s *Store) key(thread graph.ThreadID) string {
	return s.prefix + thread.String()
}

func (s *Store) Get(ctx context.Context, thread graph.ThreadID) (*graph.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key(thread)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", thread, err)
	}
	return checkpoint.Decode(thread, data)
}

func (s *Store) Put(ctx context.Context, thread graph.ThreadID, state *graph.State, meta graph.Metadata) error {
	if err := thread.Validate(); err != nil {
		return err
	}
	data, err := checkpoint.Encode(state, meta)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(thread), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("put checkpoint %s: %w", thread, err)
	}
	return nil
}

// Scan walks the customer's key space with SCAN, never KEYS.
func (s *Store) Scan(ctx context.Context, customerID string) ([]string, error) {
	prefix := s.prefix + customerID + ":"
	iter := s.client.Scan(ctx, 0, escapeGlob(prefix)+"*", scanBatch).Iterator()

	seen := map[string]bool{}
	var ids []string
	for iter.Next(ctx) {
		ticketID := strings.TrimPrefix(iter.Val(), prefix)
		if ticketID == "" || strings.Contains(ticketID, ":") || seen[ticketID] {
			continue
		}
		seen[ticketID] = true
		ids = append(ids, ticketID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan checkpoints of %s: %w", customerID, err)
	}
	sort.Strings(ids)
	s.logger.Debug("customer %s has %d activated tickets", customerID, len(ids))
	return ids, nil
}

func (s *Store) Delete(ctx context.Context, thread graph.ThreadID) error {
	if err := s.client.Del(ctx, s.key(thread)).Err(); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", thread, err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}
