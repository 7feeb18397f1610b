package ports

import "context"

// ToolExecutor executes a single tool call
type ToolExecutor interface {
	// Execute runs the tool with given arguments
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)

	// Definition returns the tool's schema for LLM
	Definition() ToolDefinition
}

// ToolCall represents a request to execute a tool
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// StringArg returns a string argument or "".
func (c ToolCall) StringArg(name string) string {
	if c.Arguments == nil {
		return ""
	}
	value, _ := c.Arguments[name].(string)
	return value
}

// IntArg returns an integer argument, accepting JSON numbers, or fallback.
func (c ToolCall) IntArg(name string, fallback int) int {
	if c.Arguments == nil {
		return fallback
	}
	switch v := c.Arguments[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return fallback
}

// ToolResult is the execution result
type ToolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	Error   error  `json:"-"`
}

// ToolDefinition describes a tool to the LLM
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ParameterSchema is a JSON-schema object for tool arguments
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single parameter
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Enum        []any  `json:"enum,omitempty"`
}

// SchemaProperties renders Properties as a plain map for provider SDKs.
func (s ParameterSchema) SchemaProperties() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, prop := range s.Properties {
		entry := map[string]any{"type": prop.Type}
		if prop.Description != "" {
			entry["description"] = prop.Description
		}
		if len(prop.Enum) > 0 {
			entry["enum"] = prop.Enum
		}
		props[name] = entry
	}
	return props
}
