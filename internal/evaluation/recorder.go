package evaluation

import (
	"context"
	"slices"
	"sync"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
)

// ToolRecorder remembers which tools the model asked for, per session. The
// workflow uses the customer id as session, so concurrent scenarios with
// distinct customers never mix.
type ToolRecorder struct {
	mu    sync.Mutex
	calls map[string][]string
}

// NewToolRecorder creates an empty recorder.
func NewToolRecorder() *ToolRecorder {
	return &ToolRecorder{calls: map[string][]string{}}
}

// Wrap returns a client that records tool calls before returning them.
func (r *ToolRecorder) Wrap(client ports.LLMClient) ports.LLMClient {
	return &recordingClient{LLMClient: client, recorder: r}
}

// Take returns the distinct tools requested in session, in first-call
// order, and forgets them.
func (r *ToolRecorder) Take(session string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tools := r.calls[session]
	delete(r.calls, session)
	return tools
}

func (r *ToolRecorder) record(session string, calls []ports.ToolCall) {
	if len(calls) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, call := range calls {
		if !slices.Contains(r.calls[session], call.Name) {
			r.calls[session] = append(r.calls[session], call.Name)
		}
	}
}

type recordingClient struct {
	ports.LLMClient
	recorder *ToolRecorder
}

func (c *recordingClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	resp, err := c.LLMClient.Complete(ctx, req)
	if err == nil && resp != nil {
		session, _ := req.Metadata[ports.MetadataSessionID].(string)
		c.recorder.record(session, resp.ToolCalls)
	}
	return resp, err
}
