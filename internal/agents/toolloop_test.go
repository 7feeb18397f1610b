package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct {
	name  string
	err   error
	calls int
}

func (e *echoTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{Name: e.name, Description: "echo"}
}

func (e *echoTool) Execute(_ context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	e.calls++
	if e.err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: e.err}, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: "echo:" + call.StringArg("text")}, nil
}

// scripted returns the queued responses in order, recording transcripts.
func scripted(responses ...*ports.CompletionResponse) (CompleteFunc, *[][]ports.Message) {
	var seen [][]ports.Message
	i := 0
	return func(_ context.Context, msgs []ports.Message, _ []ports.ToolDefinition) (*ports.CompletionResponse, error) {
		seen = append(seen, msgs)
		if i >= len(responses) {
			return responses[len(responses)-1], nil
		}
		r := responses[i]
		i++
		return r, nil
	}, &seen
}

func toolCall(id, name string) *ports.CompletionResponse {
	return &ports.CompletionResponse{ToolCalls: []ports.ToolCall{{ID: id, Name: name, Arguments: map[string]any{"text": id}}}}
}

func TestToolLoopExecutesUntilFinalAnswer(t *testing.T) {
	tool := &echoTool{name: "echo"}
	complete, seen := scripted(toolCall("a", "echo"), toolCall("b", "echo"), &ports.CompletionResponse{Content: "done"})

	loop := &ToolLoop{Tools: []ports.ToolExecutor{tool}}
	resp, transcript, err := loop.Run(context.Background(), complete, []ports.Message{{Role: ports.RoleUser, Content: "go"}})
	require.NoError(t, err)

	assert.Equal(t, "done", resp.Content)
	assert.Equal(t, 2, tool.calls)
	assert.Len(t, *seen, 3)
	require.Len(t, transcript, 5)
	assert.Equal(t, ports.RoleAssistant, transcript[1].Role)
	assert.Equal(t, "echo:a", transcript[2].Content)
	assert.Equal(t, "b", transcript[4].ToolCallID)
}

func TestToolLoopFeedsErrorsBack(t *testing.T) {
	broken := &echoTool{name: "lookup", err: errors.New("connection refused")}
	complete, _ := scripted(
		&ports.CompletionResponse{ToolCalls: []ports.ToolCall{{ID: "1", Name: "lookup"}, {ID: "2", Name: "missing"}}},
		&ports.CompletionResponse{Content: "ok"},
	)
	loop := &ToolLoop{Tools: []ports.ToolExecutor{broken}}
	_, transcript, err := loop.Run(context.Background(), complete, nil)
	require.NoError(t, err)

	require.Len(t, transcript, 3)
	assert.Equal(t, "Error: The backing service is unavailable. Continue without this information.", transcript[1].Content)
	assert.Equal(t, `Error: unknown tool "missing"`, transcript[2].Content)
}

func TestToolLoopStopsAtCap(t *testing.T) {
	tool := &echoTool{name: "echo"}
	complete, seen := scripted(toolCall("x", "echo"))

	loop := &ToolLoop{Tools: []ports.ToolExecutor{tool}, MaxRounds: 2}
	_, _, err := loop.Run(context.Background(), complete, nil)
	require.ErrorIs(t, err, ErrToolRoundsExhausted)
	assert.Equal(t, 2, tool.calls)
	assert.Len(t, *seen, 3, "cap rounds of tools plus the final call")
}

func TestToolLoopFinalCallHasNoTools(t *testing.T) {
	tool := &echoTool{name: "echo"}
	responses := []*ports.CompletionResponse{toolCall("x", "echo"), toolCall("y", "echo"), {Content: "final answer"}}
	var (
		offered  [][]ports.ToolDefinition
		lastSent []ports.Message
	)
	complete := func(_ context.Context, msgs []ports.Message, tools []ports.ToolDefinition) (*ports.CompletionResponse, error) {
		offered = append(offered, tools)
		lastSent = msgs
		return responses[len(offered)-1], nil
	}

	loop := &ToolLoop{Tools: []ports.ToolExecutor{tool}, MaxRounds: 2}
	resp, transcript, err := loop.Run(context.Background(), complete, []ports.Message{{Role: ports.RoleUser, Content: "go"}})
	require.NoError(t, err)
	assert.Equal(t, "final answer", resp.Content)
	assert.Equal(t, 2, tool.calls)

	require.Len(t, offered, 3)
	assert.Len(t, offered[0], 1)
	assert.Len(t, offered[1], 1)
	assert.Empty(t, offered[2])

	for _, msg := range lastSent {
		assert.NotEqual(t, ports.RoleTool, msg.Role)
		assert.Empty(t, msg.ToolCalls)
	}
	assert.Equal(t, "Result of echo: echo:x", lastSent[1].Content)
	assert.Equal(t, finalAnswerPrompt, lastSent[len(lastSent)-1].Content)
	assert.Len(t, transcript, 5, "the returned transcript keeps the tool turns")
}

func TestToolLoopPropagatesModelErrors(t *testing.T) {
	loop := &ToolLoop{}
	_, _, err := loop.Run(context.Background(), func(context.Context, []ports.Message, []ports.ToolDefinition) (*ports.CompletionResponse, error) {
		return nil, errors.New("down")
	}, nil)
	assert.EqualError(t, err, "down")
}

func TestClampToolRounds(t *testing.T) {
	assert.Equal(t, DefaultToolRounds, ClampToolRounds(0))
	assert.Equal(t, DefaultToolRounds, ClampToolRounds(-3))
	assert.Equal(t, 1, ClampToolRounds(1))
	assert.Equal(t, 10, ClampToolRounds(50))
}
