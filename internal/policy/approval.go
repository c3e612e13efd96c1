package policy

import (
	"sync"

	"memchat/internal/types"
)

// ApprovalRecorder stores human-in-the-loop grants. An approval is keyed by
// the request fingerprint, so it covers exactly one tool-plus-arguments
// combination; a model retrying with different arguments needs a fresh grant.
// The engine defines the gate only — prompting the human is the conversation
// surface's job.
type ApprovalRecorder struct {
	mu      sync.Mutex
	granted map[string]bool
}

// NewApprovalRecorder creates an empty recorder.
func NewApprovalRecorder() *ApprovalRecorder {
	return &ApprovalRecorder{granted: make(map[string]bool)}
}

// Record registers an approval for this exact request.
func (a *ApprovalRecorder) Record(req types.ToolInvocationRequest) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.granted[req.Fingerprint()] = true
}

// Approved reports whether this exact request has a recorded approval.
func (a *ApprovalRecorder) Approved(req types.ToolInvocationRequest) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.granted[req.Fingerprint()]
}

// Revoke removes a previously recorded approval.
func (a *ApprovalRecorder) Revoke(req types.ToolInvocationRequest) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.granted, req.Fingerprint())
}

// Clear drops all recorded approvals, typically at turn end so grants never
// outlive the conversation moment they were given in.
func (a *ApprovalRecorder) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.granted = make(map[string]bool)
}
