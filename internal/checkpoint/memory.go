package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
)

// MemoryStore keeps encoded checkpoints in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[graph.ThreadID][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: map[graph.ThreadID][]byte{}}
}

func (s *MemoryStore) Get(ctx context.Context, thread graph.ThreadID) (*graph.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.threads[thread]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return Decode(thread, data)
}

func (s *MemoryStore) Put(ctx context.Context, thread graph.ThreadID, state *graph.State, meta graph.Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := thread.Validate(); err != nil {
		return err
	}
	data, err := Encode(state, meta)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.threads[thread] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Scan(ctx context.Context, customerID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var ids []string
	for thread := range s.threads {
		if thread.CustomerID == customerID {
			ids = append(ids, thread.TicketID)
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Delete(ctx context.Context, thread graph.ThreadID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.threads, thread)
	s.mu.Unlock()
	return nil
}
