// Package policy is the security gate between normalized tool invocations and
// execution. Every call passes through Engine.Authorize, which applies a fixed
// ordered sequence of checks and returns a SecurityDecision. The engine is
// stateless apart from the approval recorder; decisions are recomputed per
// call and never persisted.
package policy

import (
	"fmt"
	"time"

	"memchat/internal/logging"
	"memchat/internal/types"
)

// Reason explains a SecurityDecision.
type Reason string

const (
	ReasonWhitelisted       Reason = "whitelisted"
	ReasonNotWhitelisted    Reason = "not-whitelisted"
	ReasonDisabled          Reason = "disabled"
	ReasonDangerousApproval Reason = "dangerous-requires-approval"
	ReasonTimeoutExceeded   Reason = "timeout-exceeded"
)

// Timeout bounds for approved calls. The configured per-tool value is used
// when present but never beyond the ceiling.
const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 300 * time.Second
)

// TargetKind says which kind of sensitive target a tool's arguments carry,
// selecting the checks that apply.
type TargetKind string

const (
	TargetNone    TargetKind = "none"    // no path/command argument (memory ops)
	TargetPath    TargetKind = "path"    // filesystem path argument
	TargetCommand TargetKind = "command" // shell command argument
)

// Descriptor is the static declaration of one invocable capability, built
// from the tool registration plus its configuration entry. Immutable once
// constructed; the coordinator builds a fresh set from each turn's config
// snapshot.
type Descriptor struct {
	Name             string
	SideEffecting    bool
	Enabled          bool
	RequiresApproval bool

	// Target describes which argument the whitelist/containment/dangerous
	// checks inspect. TargetNone skips those checks entirely.
	Target          TargetKind
	TargetParameter string

	// Whitelist is the closed set of glob patterns the target must match.
	// Empty means no access (fail-closed).
	Whitelist []string

	// RootDirectory anchors relative path targets. Resolved paths escaping
	// it are denied regardless of whitelist.
	RootDirectory string

	TimeoutSeconds int
}

// SecurityDecision is the outcome for one invocation. Recomputed per call.
type SecurityDecision struct {
	Allowed          bool
	Reason           Reason
	EffectiveTimeout time.Duration
	// Detail is a human-readable explanation suitable for the structured
	// refusal shown in conversation.
	Detail string
	// ResolvedTarget is the normalized absolute path (path targets only),
	// which handlers must use instead of re-resolving.
	ResolvedTarget string
}

// Engine applies the policy checks. Safe for concurrent use.
type Engine struct {
	approvals *ApprovalRecorder
}

// NewEngine creates an Engine with an empty approval record.
func NewEngine() *Engine {
	return &Engine{approvals: NewApprovalRecorder()}
}

// Approvals exposes the recorder so the conversation surface can record
// human-in-the-loop grants.
func (e *Engine) Approvals() *ApprovalRecorder {
	return e.approvals
}

// Authorize runs the fixed check sequence, short-circuiting on first failure:
//
//  1. enablement — disabled tools are invisible, not merely denied
//  2. whitelist — the target must match a configured pattern (fail-closed)
//  3. containment — the resolved path must stay under the root directory
//  4. dangerous-target detection — forces approval, cannot be whitelisted away
//  5. approval gate — denied unless a matching approval was recorded
//  6. timeout stamping — configured value clamped to the ceiling
//
// Identical requests under unchanged configuration yield identical decisions.
func (e *Engine) Authorize(req types.ToolInvocationRequest, desc Descriptor) SecurityDecision {
	decision := e.authorize(req, desc)

	logging.Policy("%s %s: allowed=%v reason=%s", desc.Name, req.Origin, decision.Allowed, decision.Reason)
	logging.Audit(logging.AuditEvent{
		EventType: auditEventFor(decision),
		Target:    desc.Name,
		Action:    string(decision.Reason),
		Success:   decision.Allowed,
		Message:   decision.Detail,
	})
	return decision
}

func (e *Engine) authorize(req types.ToolInvocationRequest, desc Descriptor) SecurityDecision {
	// 1. Enablement.
	if !desc.Enabled {
		return SecurityDecision{
			Allowed: false,
			Reason:  ReasonDisabled,
			Detail:  fmt.Sprintf("tool %q is not enabled", desc.Name),
		}
	}

	needsApproval := desc.RequiresApproval
	resolved := ""

	if desc.Target != TargetNone {
		target, ok := req.Argument(desc.TargetParameter)
		if !ok || target == "" {
			return SecurityDecision{
				Allowed: false,
				Reason:  ReasonNotWhitelisted,
				Detail:  fmt.Sprintf("missing required %s argument %q", desc.Target, desc.TargetParameter),
			}
		}

		switch desc.Target {
		case TargetPath:
			// 3 runs inside resolution: a path that escapes the root can
			// never reach the whitelist with its unresolved spelling.
			var err error
			resolved, err = resolveWithinRoot(target, desc.RootDirectory)
			if err != nil {
				return SecurityDecision{
					Allowed: false,
					Reason:  ReasonNotWhitelisted,
					Detail:  err.Error(),
				}
			}
			// 2. Whitelist against both spellings: patterns may be written
			// relative to the root or absolute.
			if !matchesWhitelist(target, desc.Whitelist) && !matchesWhitelist(resolved, desc.Whitelist) {
				return SecurityDecision{
					Allowed: false,
					Reason:  ReasonNotWhitelisted,
					Detail:  fmt.Sprintf("path %q matches no whitelist pattern", target),
				}
			}
			// 4. Dangerous paths force approval even when whitelisted.
			if frag, hit := dangerousPath(resolved); hit {
				needsApproval = true
				logging.PolicyWarn("%s: dangerous path %q (matched %q)", desc.Name, resolved, frag)
			}

		case TargetCommand:
			if !matchesWhitelist(target, desc.Whitelist) {
				return SecurityDecision{
					Allowed: false,
					Reason:  ReasonNotWhitelisted,
					Detail:  "command matches no whitelist pattern",
				}
			}
			if verb, hit := dangerousCommand(target); hit {
				needsApproval = true
				logging.PolicyWarn("%s: dangerous command verb %q", desc.Name, verb)
			}
		}
	}

	// 5. Approval gate.
	if needsApproval && !e.approvals.Approved(req) {
		return SecurityDecision{
			Allowed: false,
			Reason:  ReasonDangerousApproval,
			Detail:  fmt.Sprintf("tool %q requires explicit approval for this call", desc.Name),
		}
	}

	// 6. Timeout stamping.
	return SecurityDecision{
		Allowed:          true,
		Reason:           ReasonWhitelisted,
		EffectiveTimeout: effectiveTimeout(desc.TimeoutSeconds),
		ResolvedTarget:   resolved,
	}
}

// effectiveTimeout converts the configured seconds to the enforced deadline:
// zero/absent means the default, anything above the ceiling is clamped.
func effectiveTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return DefaultTimeout
	}
	d := time.Duration(seconds) * time.Second
	if d > MaxTimeout {
		return MaxTimeout
	}
	return d
}

func auditEventFor(d SecurityDecision) logging.AuditEventType {
	if d.Allowed {
		return logging.AuditSafetyAllow
	}
	return logging.AuditSafetyBlock
}
