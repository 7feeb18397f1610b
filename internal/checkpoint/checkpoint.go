// Package checkpoint persists the latest workflow state per ticket thread.
package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
	jsonx "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/shared/json"
)

// Store is the checkpoint contract the workflow writes through.
type Store = graph.CheckpointStore

// ErrNotFound is returned by Load when a thread has no checkpoint.
var ErrNotFound = errors.New("checkpoint not found")

// Load is Get with absence reported as ErrNotFound.
func Load(ctx context.Context, store Store, thread graph.ThreadID) (*graph.Checkpoint, error) {
	cp, err := store.Get(ctx, thread)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("%s: %w", thread, ErrNotFound)
	}
	return cp, nil
}

type envelope struct {
	State    *graph.State   `json:"state"`
	Metadata graph.Metadata `json:"metadata"`
}

// Encode serializes a checkpoint payload.
func Encode(state *graph.State, meta graph.Metadata) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("encode checkpoint: nil state")
	}
	data, err := jsonx.Marshal(envelope{State: state, Metadata: meta})
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

// Decode is the inverse of Encode.
func Decode(thread graph.ThreadID, data []byte) (*graph.Checkpoint, error) {
	var env envelope
	if err := jsonx.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", thread, err)
	}
	if env.State == nil {
		return nil, fmt.Errorf("decode checkpoint %s: missing state", thread)
	}
	return &graph.Checkpoint{Thread: thread, State: env.State, Metadata: env.Metadata}, nil
}
