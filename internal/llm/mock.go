package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
)

// ScriptedStep is one queued reply: either a response or an error.
type ScriptedStep struct {
	Response *ports.CompletionResponse
	Err      error
}

// Reply is a shorthand for a final text response.
func Reply(content string) ScriptedStep {
	return ScriptedStep{Response: &ports.CompletionResponse{Content: content, StopReason: "stop"}}
}

// CallTool is a shorthand for a response requesting one tool call.
func CallTool(id, name string, args map[string]any) ScriptedStep {
	return ScriptedStep{Response: &ports.CompletionResponse{
		StopReason: "tool_calls",
		ToolCalls:  []ports.ToolCall{{ID: id, Name: name, Arguments: args}},
	}}
}

// Fail is a shorthand for an error reply.
func Fail(err error) ScriptedStep {
	return ScriptedStep{Err: err}
}

// ScriptedClient replays queued replies per calling agent (taken from
// request metadata). When an agent's queue holds one step it is repeated.
// Agents without a script get the heuristic offline reply.
type ScriptedClient struct {
	model string

	mu      sync.Mutex
	scripts map[string][]ScriptedStep
	calls   []ports.CompletionRequest
}

// NewScriptedClient creates an offline client.
func NewScriptedClient(model string) *ScriptedClient {
	if model == "" {
		model = "mock"
	}
	return &ScriptedClient{model: model, scripts: map[string][]ScriptedStep{}}
}

// On queues steps for agent.
func (c *ScriptedClient) On(agent string, steps ...ScriptedStep) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[agent] = append(c.scripts[agent], steps...)
	return c
}

func (c *ScriptedClient) Model() string {
	return c.model
}

func (c *ScriptedClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	agent := req.Agent()

	c.mu.Lock()
	c.calls = append(c.calls, req)
	queue := c.scripts[agent]
	var step *ScriptedStep
	if len(queue) > 0 {
		head := queue[0]
		step = &head
		if len(queue) > 1 {
			c.scripts[agent] = queue[1:]
		}
	}
	c.mu.Unlock()

	if step == nil {
		return heuristicReply(req), nil
	}
	if step.Err != nil {
		return nil, step.Err
	}
	resp := *step.Response
	return &resp, nil
}

// Calls returns every recorded request in order.
func (c *ScriptedClient) Calls() []ports.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ports.CompletionRequest(nil), c.calls...)
}

// CallCount returns how many requests agent made.
func (c *ScriptedClient) CallCount(agent string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Agent() == agent {
			n++
		}
	}
	return n
}

// HashEmbedder produces deterministic bag-of-words vectors. Texts sharing
// words land close together, which is enough for offline retrieval tests.
type HashEmbedder struct {
	Dimensions int
}

// NewHashEmbedder returns an embedder with dims dimensions (default 256).
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{Dimensions: dims}
}

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embedOne(text)
	}
	return vectors, nil
}

func (e *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.Dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, word := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%uint32(e.Dimensions)] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
