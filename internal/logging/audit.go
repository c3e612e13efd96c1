// Package logging: audit.go provides the append-only audit trail.
// Audit events are structured JSONL records written regardless of debug mode,
// so that every security decision and tool execution is reconstructible
// after the fact.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event.
type AuditEventType string

const (
	// Security/policy events
	AuditSafetyCheck AuditEventType = "safety_check"
	AuditSafetyBlock AuditEventType = "safety_block"
	AuditSafetyAllow AuditEventType = "safety_allow"

	// Tool execution events
	AuditToolInvoke   AuditEventType = "tool_invoke"
	AuditToolComplete AuditEventType = "tool_complete"
	AuditToolError    AuditEventType = "tool_error"
	AuditToolTimeout  AuditEventType = "tool_timeout"

	// Memory operations
	AuditMemoryStore  AuditEventType = "memory_store"
	AuditMemoryRecall AuditEventType = "memory_recall"
	AuditMemoryDelete AuditEventType = "memory_delete"

	// LLM API events
	AuditLLMRequest  AuditEventType = "llm_request"
	AuditLLMResponse AuditEventType = "llm_response"
	AuditLLMError    AuditEventType = "llm_error"

	// Session events
	AuditTurnStart AuditEventType = "turn_start"
	AuditTurnEnd   AuditEventType = "turn_end"
	AuditPassStart AuditEventType = "pass_start"
	AuditPassEnd   AuditEventType = "pass_end"
)

// AuditEvent represents a structured audit log entry.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"` // Unix milliseconds
	EventType  AuditEventType         `json:"event"`
	TurnID     string                 `json:"turn,omitempty"`
	Target     string                 `json:"target,omitempty"` // target of the operation (tool, path, entry id)
	Action     string                 `json:"action,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// AuditLogger writes audit events as JSONL to a single file.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

var (
	auditMu     sync.RWMutex
	globalAudit *AuditLogger
)

// InitializeAudit opens (or creates) the audit trail under the state
// directory. Unlike category logging, the audit trail is always on.
func InitializeAudit(stateDir string) error {
	dir := filepath.Join(stateDir, "audit")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	path := filepath.Join(dir, "audit.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if globalAudit != nil {
		globalAudit.Close()
	}
	globalAudit = &AuditLogger{file: file, path: path}
	return nil
}

// Audit emits an event to the global audit trail. Safe to call before
// InitializeAudit; events are then dropped silently (tests, tooling).
func Audit(ev AuditEvent) {
	auditMu.RLock()
	a := globalAudit
	auditMu.RUnlock()
	if a == nil {
		return
	}
	a.Write(ev)
}

// Write appends one event. Marshal failures fall back to a minimal record
// rather than losing the event entirely.
func (a *AuditLogger) Write(ev AuditEvent) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		fmt.Fprintf(a.file, `{"ts":%d,"event":%q,"error":"marshal failure"}`+"\n", ev.Timestamp, ev.EventType)
		return
	}
	a.file.Write(append(data, '\n'))
}

// Close flushes and closes the audit file.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// CloseAudit closes the global audit trail (call at shutdown).
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if globalAudit != nil {
		globalAudit.Close()
		globalAudit = nil
	}
}
