// Package model defines the capability interface every language model
// adapter must satisfy, together with the provider-neutral message shapes
// exchanged with the agent loop. Providers are adapters over their official
// SDKs; the loop itself never touches a provider wire format.
package model

import (
	"context"
	"encoding/json"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single conversation turn.
type Message struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Usage      map[string]any `json:"usage,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ArgsJSON renders the call arguments as canonical JSON. encoding/json
// sorts map keys, so equal argument sets produce equal strings.
func (tc ToolCall) ArgsJSON() string {
	if len(tc.Args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(tc.Args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ToolSpec describes a tool to the model provider.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request is a single model invocation.
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	MaxTokens   int
	Temperature float64
}

// Response carries the assistant message plus the raw provider usage object.
// Usage is left in the provider's shape; the usage package normalizes it.
type Response struct {
	Message Message
	Usage   map[string]any
}

// Model is the capability interface for a chat model. Invoke must be safe
// to call repeatedly within one session; adapters own retries and auth.
type Model interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolMessage builds a tool response message addressed to a tool call.
func ToolMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, Name: name, ToolCallID: toolCallID}
}
