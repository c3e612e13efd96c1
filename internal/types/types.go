// Package types provides shared type definitions used across memchat packages.
// This package exists to break import cycles between perception, protocol,
// policy, and session. Types in this package should be foundational data
// structures with no complex dependencies.
package types

import (
	"context"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in the conversation transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ToolCallID correlates a tool-result message with the call that
	// produced it. Empty for ordinary messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// Name is the tool name for tool-result messages.
	Name string `json:"name,omitempty"`
}

// OperationType is the classification of the latest user message.
type OperationType string

const (
	OperationRead    OperationType = "READ"
	OperationWrite   OperationType = "WRITE"
	OperationGeneral OperationType = "GENERAL"
)

// ToolDefinition describes a tool that the LLM can invoke.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"` // JSON Schema for parameters
}

// ToolCall represents a native tool invocation requested by the LLM.
type ToolCall struct {
	ID    string                 `json:"id"`    // Unique ID for this tool use
	Name  string                 `json:"name"`  // Tool name to invoke
	Input map[string]interface{} `json:"input"` // Tool arguments
}

// UsageMetadata captures token usage metrics from the LLM.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// LLMToolResponse contains both text response and tool calls from one
// inference call.
type LLMToolResponse struct {
	Text       string        `json:"text"`        // Text response (may be empty if only tool calls)
	ToolCalls  []ToolCall    `json:"tool_calls"`  // Native tool invocations requested by the LLM
	StopReason string        `json:"stop_reason"` // "end_turn", "tool_calls", etc.
	Usage      UsageMetadata `json:"usage"`       // Token usage metrics
}

// LLMClient defines the interface for the external inference endpoint.
// The endpoint is treated as a single fallible operation: a failed call is
// surfaced to the coordinator, which decides whether to retry the turn.
// Implementations may apply transport-level backoff only.
type LLMClient interface {
	// Complete sends the conversation and returns the full completion text.
	Complete(ctx context.Context, messages []Message) (string, error)

	// CompleteWithTools sends the conversation with tool definitions
	// attached and returns the response including any native tool calls.
	CompleteWithTools(ctx context.Context, messages []Message, tools []ToolDefinition) (*LLMToolResponse, error)

	// CompleteWithStreaming sends the conversation with streaming enabled
	// and returns channels of incremental content deltas. The error channel
	// yields at most one error and both channels are closed when the
	// stream ends.
	CompleteWithStreaming(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

// CallOrigin records which pass of a turn produced a tool invocation.
type CallOrigin string

const (
	OriginNative CallOrigin = "native" // structured call list on the response
	OriginTagged CallOrigin = "tagged" // converted from tagged-text encoding
)

// Argument is a single named argument of a canonical tool invocation.
// Arguments keep their wire order; values are uncoerced strings until the
// dispatcher applies the descriptor schema.
type Argument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ToolInvocationRequest is the canonical, format-agnostic representation of
// one tool invocation. It is immutable: a new request is created per attempt.
type ToolInvocationRequest struct {
	ToolName  string     `json:"tool_name"`
	Arguments []Argument `json:"arguments"`
	Origin    CallOrigin `json:"origin"`
}

// Argument returns the value of the named argument and whether it was
// supplied.
func (r ToolInvocationRequest) Argument(name string) (string, bool) {
	for _, a := range r.Arguments {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// ArgumentMap returns the arguments as a map for handler consumption.
// Later duplicates win, matching the tagged-text wire behavior.
func (r ToolInvocationRequest) ArgumentMap() map[string]string {
	m := make(map[string]string, len(r.Arguments))
	for _, a := range r.Arguments {
		m[a.Name] = a.Value
	}
	return m
}

// Fingerprint returns a stable identity for the request, used to match
// recorded human approvals against the exact call they approved.
func (r ToolInvocationRequest) Fingerprint() string {
	s := r.ToolName
	for _, a := range r.Arguments {
		s += "\x1f" + a.Name + "\x1e" + a.Value
	}
	return s
}
