package core

import (
	"fmt"
	"time"
)

// HandoffStatus is the lifecycle state of one delegation.
type HandoffStatus string

const (
	// HandoffPending exists only inside Initiate; a delegated session id is
	// minted immediately and the record advances to HandoffInProgress
	// before it becomes observable.
	HandoffPending HandoffStatus = "pending"
	// HandoffInProgress marks an active delegation awaiting execution.
	HandoffInProgress HandoffStatus = "in_progress"
	// HandoffWorkflowExecuting marks an in-flight capability invocation
	// performed on behalf of the handoff.
	HandoffWorkflowExecuting HandoffStatus = "workflow_executing"
	// HandoffCompleted is terminal: the delegation produced a result.
	HandoffCompleted HandoffStatus = "completed"
	// HandoffFailed is terminal: the delegation's invocation failed. A
	// failed handoff is never retried; a fresh decision must re-initiate.
	HandoffFailed HandoffStatus = "failed"
	// HandoffCancelled is terminal and reachable only through an explicit
	// external cancellation request.
	HandoffCancelled HandoffStatus = "cancelled"
)

// Terminal reports whether s is a final state. Terminal records are
// relocated from the active collection to history and become read-only.
func (s HandoffStatus) Terminal() bool {
	switch s {
	case HandoffCompleted, HandoffFailed, HandoffCancelled:
		return true
	}
	return false
}

// handoffTransitions is the closed transition table of the handoff state
// machine. Auto-trigger behavior is a per-type flag consulted by the
// coordinator, not a special transition.
var handoffTransitions = map[HandoffStatus][]HandoffStatus{
	HandoffPending:           {HandoffInProgress},
	HandoffInProgress:        {HandoffWorkflowExecuting, HandoffCompleted, HandoffCancelled},
	HandoffWorkflowExecuting: {HandoffCompleted, HandoffFailed, HandoffCancelled},
}

// HandoffRecord tracks one delegation of a conversation turn to a
// specialized capability. Records are owned exclusively by the handoff
// coordinator and move from its active collection to its history
// collection on completion; they are never deleted.
type HandoffRecord struct {
	// ID is a fresh unique identifier minted per handoff.
	ID string `json:"id"`
	// OriginSessionID is the coordinating session that delegated.
	OriginSessionID string `json:"origin_session_id"`
	// DelegatedSessionID is derived from the origin session id, the target
	// type and a unique suffix; it scopes the specialized conversation.
	DelegatedSessionID string `json:"delegated_session_id"`
	// Target is the capability type the turn was delegated to.
	Target CapabilityType `json:"target"`
	// Status is the current state machine position.
	Status HandoffStatus `json:"status"`
	// UserMessage is the message that triggered the delegation.
	UserMessage string `json:"user_message,omitempty"`
	// Intent is the signal that drove the handoff decision.
	Intent IntentSignal `json:"intent"`
	// Context carries caller supplied delegation context.
	Context map[string]any `json:"context,omitempty"`
	// Result holds the delegated capability's payload once terminal. For
	// failed handoffs the error description is stored under "error".
	Result      map[string]any `json:"result,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Advance moves the record to the requested status, enforcing the
// transition table. Terminal states can never be left.
func (r *HandoffRecord) Advance(to HandoffStatus) error {
	for _, next := range handoffTransitions[r.Status] {
		if next == to {
			r.Status = to
			if to.Terminal() {
				now := time.Now()
				r.CompletedAt = &now
			}
			return nil
		}
	}
	return fmt.Errorf("handoff %s: invalid transition %s -> %s", r.ID, r.Status, to)
}

// Clone returns a copy safe for callers to retain while the coordinator
// keeps mutating the original.
func (r *HandoffRecord) Clone() *HandoffRecord {
	clone := *r
	if r.Context != nil {
		clone.Context = make(map[string]any, len(r.Context))
		for k, v := range r.Context {
			clone.Context[k] = v
		}
	}
	if r.Result != nil {
		clone.Result = make(map[string]any, len(r.Result))
		for k, v := range r.Result {
			clone.Result[k] = v
		}
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}

// HandoffOutcome is the turn-level summary of a delegation surfaced to the
// engine and its callers.
type HandoffOutcome struct {
	HandoffID          string         `json:"handoff_id"`
	DelegatedSessionID string         `json:"delegated_session_id"`
	Target             CapabilityType `json:"target"`
	Status             HandoffStatus  `json:"status"`
	// Message is the user facing transfer (or hand-back) announcement.
	Message string `json:"message"`
	// AutoTriggered indicates the target type ran its default invocation
	// inside Initiate.
	AutoTriggered bool           `json:"auto_triggered"`
	Result        map[string]any `json:"result,omitempty"`
}
