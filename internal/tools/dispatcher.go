package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"memchat/internal/logging"
	"memchat/internal/policy"
	"memchat/internal/types"
)

// Dispatcher executes policy-approved invocations against the registry view.
// It validates and coerces arguments, enforces the decision's deadline with
// real cancellation, and wraps every handler fault into a structured result:
// one failing tool call never aborts the surrounding turn.
type Dispatcher struct {
	view *View
}

// NewDispatcher creates a dispatcher over a per-turn registry view.
func NewDispatcher(view *View) *Dispatcher {
	return &Dispatcher{view: view}
}

// Dispatch runs one invocation. The decision must come from the policy
// engine for this exact request; the dispatcher never re-runs policy, but it
// refuses anything not explicitly handed a passing decision.
func (d *Dispatcher) Dispatch(ctx context.Context, req types.ToolInvocationRequest, decision policy.SecurityDecision) ToolResult {
	if !decision.Allowed {
		return ToolResult{
			ToolName: req.ToolName,
			Error:    fmt.Sprintf("%v: %s", ErrNotAuthorized, decision.Reason),
		}
	}
	if decision.EffectiveTimeout <= 0 {
		// A passing decision always carries a timeout; its absence means
		// this decision never went through the engine.
		return ToolResult{
			ToolName: req.ToolName,
			Error:    fmt.Sprintf("%v: decision carries no timeout", ErrNotAuthorized),
		}
	}

	tool, err := d.view.Tool(req.ToolName)
	if err != nil {
		return ToolResult{ToolName: req.ToolName, Error: err.Error()}
	}

	args, err := coerceArguments(req, tool.Schema)
	if err != nil {
		return ToolResult{ToolName: req.ToolName, Error: err.Error()}
	}
	// Handlers must use the policy-resolved path, not re-resolve their own.
	if tool.Target == policy.TargetPath && decision.ResolvedTarget != "" {
		args[tool.TargetParameter] = decision.ResolvedTarget
	}

	logging.Tools("dispatch %s (origin=%s, timeout=%v)", req.ToolName, req.Origin, decision.EffectiveTimeout)
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditToolInvoke,
		Target:    req.ToolName,
		Action:    string(req.Origin),
		Success:   true,
	})

	start := time.Now()
	result := d.run(ctx, tool, args, decision.EffectiveTimeout)
	result.ToolName = req.ToolName
	result.DurationMs = time.Since(start).Milliseconds()

	switch {
	case result.TimedOut:
		logging.ToolsError("%s timed out after %v", req.ToolName, decision.EffectiveTimeout)
		logging.Audit(logging.AuditEvent{
			EventType:  logging.AuditToolTimeout,
			Target:     req.ToolName,
			DurationMs: result.DurationMs,
			Error:      result.Error,
		})
	case result.Error != "":
		logging.ToolsError("%s failed: %s", req.ToolName, result.Error)
		logging.Audit(logging.AuditEvent{
			EventType:  logging.AuditToolError,
			Target:     req.ToolName,
			DurationMs: result.DurationMs,
			Error:      result.Error,
		})
	default:
		logging.ToolsDebug("%s completed in %dms (%d bytes)", req.ToolName, result.DurationMs, len(result.Result))
		logging.Audit(logging.AuditEvent{
			EventType:  logging.AuditToolComplete,
			Target:     req.ToolName,
			Success:    true,
			DurationMs: result.DurationMs,
		})
	}
	return result
}

// run executes the handler under the hard deadline. The handler goroutine
// receives a context that is cancelled on timeout; well-behaved handlers
// (exec.CommandContext kills its child) terminate promptly, and the result of
// a late-finishing handler is discarded via the buffered channel.
func (d *Dispatcher) run(ctx context.Context, tool *Tool, args map[string]interface{}, timeout time.Duration) ToolResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		result, err := tool.Execute(ctx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return timeoutResult(timeout)
			}
			return ToolResult{Error: out.err.Error()}
		}
		return ToolResult{Result: out.result}
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return timeoutResult(timeout)
		}
		return ToolResult{Error: fmt.Sprintf("cancelled: %v", ctx.Err())}
	}
}

// timeoutResult is distinct from a handler fault and always names the limit
// that was exceeded so operators can retune it.
func timeoutResult(limit time.Duration) ToolResult {
	return ToolResult{
		TimedOut: true,
		Error:    fmt.Sprintf("execution exceeded the configured timeout of %v", limit),
	}
}

// coerceArguments validates the request against the schema and converts the
// string argument values to their declared types. Coercion failure is a
// request-level error, not a crash.
func coerceArguments(req types.ToolInvocationRequest, schema Schema) (map[string]interface{}, error) {
	raw := req.ArgumentMap()

	for _, name := range schema.Required {
		if v, ok := raw[name]; !ok || strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingArgument, name)
		}
	}

	args := make(map[string]interface{}, len(raw))
	for name, value := range raw {
		prop, declared := schema.Properties[name]
		if !declared {
			// Undeclared arguments pass through as strings; models pad
			// calls with extras and rejecting them helps nobody.
			args[name] = value
			continue
		}
		coerced, err := coerceValue(value, prop.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadArgument, name, err)
		}
		args[name] = coerced
	}
	return args, nil
}

func coerceValue(value, typ string) (interface{}, error) {
	switch typ {
	case "", "string":
		return value, nil
	case "integer":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", value)
		}
		return n, nil
	case "number":
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", value)
		}
		return f, nil
	case "boolean":
		b, err := strconv.ParseBool(strings.TrimSpace(strings.ToLower(value)))
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", value)
		}
		return b, nil
	default:
		return value, nil
	}
}
