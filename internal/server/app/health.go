package app

import (
	"context"
	"sync"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/server/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"
)

// probeCustomerID is a customer id no real ticket uses.
const probeCustomerID = "__health__"

// HealthCheckerImpl aggregates health probes for all components
type HealthCheckerImpl struct {
	probes []ports.HealthProbe
	mu     sync.RWMutex
}

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthCheckerImpl {
	return &HealthCheckerImpl{
		probes: make([]ports.HealthProbe, 0),
	}
}

// RegisterProbe adds a health probe
func (h *HealthCheckerImpl) RegisterProbe(probe ports.HealthProbe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, probe)
}

// CheckAll returns health status for all components
func (h *HealthCheckerImpl) CheckAll(ctx context.Context) []ports.ComponentHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	results := make([]ports.ComponentHealth, 0, len(h.probes))
	for _, probe := range h.probes {
		results = append(results, probe.Check(ctx))
	}
	return results
}

// ProbeFunc adapts a function to ports.HealthProbe.
type ProbeFunc func(ctx context.Context) ports.ComponentHealth

func (f ProbeFunc) Check(ctx context.Context) ports.ComponentHealth { return f(ctx) }

// StoreProbe runs a cheap read against the relational store.
type StoreProbe struct {
	store    storage.Store
	provider string
}

// NewStoreProbe creates a relational store probe
func NewStoreProbe(store storage.Store, provider string) *StoreProbe {
	return &StoreProbe{store: store, provider: provider}
}

func (p *StoreProbe) Check(ctx context.Context) ports.ComponentHealth {
	health := ports.ComponentHealth{
		Name:    "database",
		Details: map[string]any{"provider": p.provider},
	}
	if p.store == nil {
		health.Status = ports.HealthStatusNotReady
		health.Message = "relational store not configured"
		return health
	}
	if _, err := p.store.GetOpenTickets(ctx, probeCustomerID); err != nil {
		health.Status = ports.HealthStatusError
		health.Message = err.Error()
		return health
	}
	health.Status = ports.HealthStatusReady
	return health
}

// CheckpointProbe scans a sentinel customer on the checkpoint store.
type CheckpointProbe struct {
	store    graph.CheckpointStore
	provider string
}

// NewCheckpointProbe creates a checkpoint store probe
func NewCheckpointProbe(store graph.CheckpointStore, provider string) *CheckpointProbe {
	return &CheckpointProbe{store: store, provider: provider}
}

func (p *CheckpointProbe) Check(ctx context.Context) ports.ComponentHealth {
	health := ports.ComponentHealth{
		Name:    "checkpoints",
		Details: map[string]any{"provider": p.provider},
	}
	if p.store == nil {
		health.Status = ports.HealthStatusNotReady
		health.Message = "checkpoint store not configured"
		return health
	}
	if _, err := p.store.Scan(ctx, probeCustomerID); err != nil {
		health.Status = ports.HealthStatusError
		health.Message = err.Error()
		return health
	}
	health.Status = ports.HealthStatusReady
	return health
}

// DocumentCounter reports the number of indexed knowledge base chunks.
type DocumentCounter interface {
	Count() int
}

// KnowledgeBaseProbe reports the knowledge base index size. An empty index
// is degraded, not broken: specialists still answer without articles.
type KnowledgeBaseProbe struct {
	index DocumentCounter
}

// NewKnowledgeBaseProbe creates a knowledge base probe
func NewKnowledgeBaseProbe(index DocumentCounter) *KnowledgeBaseProbe {
	return &KnowledgeBaseProbe{index: index}
}

func (p *KnowledgeBaseProbe) Check(context.Context) ports.ComponentHealth {
	if p.index == nil {
		return ports.ComponentHealth{Name: "knowledge_base", Status: ports.HealthStatusDisabled, Message: "knowledge base not configured"}
	}
	chunks := p.index.Count()
	health := ports.ComponentHealth{
		Name:    "knowledge_base",
		Status:  ports.HealthStatusReady,
		Details: map[string]any{"chunks": chunks},
	}
	if chunks == 0 {
		health.Status = ports.HealthStatusNotReady
		health.Message = "knowledge base is empty, run ingest"
	}
	return health
}

// LLMProbe reports the configured model without calling it.
type LLMProbe struct {
	provider string
	model    string
}

// NewLLMProbe creates a new LLM health probe
func NewLLMProbe(provider, model string) *LLMProbe {
	return &LLMProbe{provider: provider, model: model}
}

func (p *LLMProbe) Check(context.Context) ports.ComponentHealth {
	health := ports.ComponentHealth{
		Name:    "llm",
		Status:  ports.HealthStatusReady,
		Details: map[string]any{"provider": p.provider, "model": p.model},
	}
	if p.provider == "" || p.model == "" {
		health.Status = ports.HealthStatusNotReady
		health.Message = "llm provider or model not configured"
	} else if p.provider == "mock" {
		health.Message = "using the offline mock provider"
	}
	return health
}
