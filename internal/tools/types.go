// Package tools provides the tool registry and the dispatcher that executes
// policy-approved invocations. Tools are registered by the concrete handler
// packages (memory, file, shell); the registry is frozen into a per-turn view
// by the coordinator.
package tools

import (
	"context"

	"memchat/internal/policy"
	"memchat/internal/types"
)

// Category groups tools by effect. Read-only tools may run in any pass;
// side-effecting tools are the reason the dual-pass strategies exist.
type Category string

const (
	CategoryReadOnly      Category = "read_only"
	CategorySideEffecting Category = "side_effecting"
)

// ExecuteFunc is the signature all tool handlers implement. Arguments arrive
// already coerced per the tool schema. Handlers must honor ctx cancellation;
// the dispatcher enforces the deadline.
type ExecuteFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// Property describes one schema parameter.
type Property struct {
	Type        string `json:"type"` // "string", "integer", "number", "boolean"
	Description string `json:"description,omitempty"`
}

// Schema declares a tool's parameters: which exist, which are required, and
// what type each coerces to.
type Schema struct {
	Properties map[string]Property
	Required   []string
}

// Tool is a registered capability.
type Tool struct {
	Name        string
	Description string
	Category    Category
	Schema      Schema
	Execute     ExecuteFunc

	// Target tells the policy engine which argument carries a path or
	// command; TargetNone for tools that touch neither.
	Target          policy.TargetKind
	TargetParameter string
}

// Definition exposes the tool to the inference endpoint as a JSON-Schema
// declaration.
func (t *Tool) Definition() types.ToolDefinition {
	props := make(map[string]interface{}, len(t.Schema.Properties))
	for name, p := range t.Schema.Properties {
		prop := map[string]interface{}{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[name] = prop
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(t.Schema.Required) > 0 {
		schema["required"] = t.Schema.Required
	}
	return types.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

// ToolResult is the structured outcome of one dispatched invocation. A failed
// call is data fed back into the conversation, never a crash.
type ToolResult struct {
	ToolName   string `json:"tool_name"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	TimedOut   bool   `json:"timed_out,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// OK reports whether the invocation succeeded.
func (r ToolResult) OK() bool {
	return r.Error == "" && !r.TimedOut
}
