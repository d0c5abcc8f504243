// Package handoff manages delegating an in-progress conversation turn to a
// specialized capability: the per-record lifecycle state machine, the
// delegation decision, and reconciliation of results back into the
// coordinating session.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowrelay/flowrelay/core"
	"github.com/flowrelay/flowrelay/logging"
)

var (
	// ErrNotFound is returned when a handoff id is not in the active
	// collection (it may have already completed into history).
	ErrNotFound = errors.New("handoff not found")
	// ErrNoHandles is returned when a delegation targets a capability type
	// with zero registered handles; delegation never targets an empty type.
	ErrNoHandles = errors.New("no capability handles available")
)

// DefaultConfidenceThreshold gates handoff decisions when the caller does
// not supply a threshold.
const DefaultConfidenceThreshold = 0.7

// Options configures a Coordinator.
type Options struct {
	// ConfidenceThreshold is the minimum intent confidence for delegation.
	ConfidenceThreshold float64
	// IntentMap is the static intent-type to capability-type mapping used
	// after the literal-name override.
	IntentMap map[string]core.CapabilityType
	// AutoTrigger flags capability types that run one default invocation
	// inside Initiate, landing the record in a terminal state immediately.
	AutoTrigger map[core.CapabilityType]bool
	// InvokeTimeout bounds handoff-driven invocations.
	InvokeTimeout time.Duration
	// Logger receives lifecycle diagnostics.
	Logger logging.Logger
}

// DefaultIntentMap returns the built-in intent-type mapping.
func DefaultIntentMap() map[string]core.CapabilityType {
	return map[string]core.CapabilityType{
		"data_analysis":       core.TypeDataAnalysis,
		"document_processing": core.TypeDocumentProcessing,
		"task_management":     core.TypeTaskManagement,
		"approval_request":    core.TypeApproval,
		"report_generation":   core.TypeReportGeneration,
		"home_automation":     core.TypeHomeAutomation,
	}
}

// DefaultAutoTrigger returns the built-in auto-trigger flags. Data
// analysis and home automation workflows answer the delegating message
// directly, so their default action runs during Initiate.
func DefaultAutoTrigger() map[core.CapabilityType]bool {
	return map[core.CapabilityType]bool{
		core.TypeDataAnalysis:   true,
		core.TypeHomeAutomation: true,
	}
}

// Coordinator owns every HandoffRecord. Terminal records relocate from the
// active collection to history and are never deleted.
type Coordinator struct {
	core.LoggerAdapter
	registry core.Registry
	invoker  core.Invoker
	opts     Options

	mu      sync.RWMutex
	active  map[string]*core.HandoffRecord
	history map[string]*core.HandoffRecord
}

// New constructs a Coordinator deciding against the given registry and
// executing through the given invoker.
func New(reg core.Registry, inv core.Invoker, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		IntentMap:           DefaultIntentMap(),
		AutoTrigger:         DefaultAutoTrigger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Coordinator{
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
		registry:      reg,
		invoker:       inv,
		opts:          opts,
		active:        map[string]*core.HandoffRecord{},
		history:       map[string]*core.HandoffRecord{},
	}
}

// ShouldHandoff decides whether the turn should be delegated and to which
// capability type. Below-threshold confidence always declines. A literal
// mention of a registered workflow name in the raw text overrides the
// static intent mapping, and a resolved type with zero registered handles
// declines regardless of intent.
func (c *Coordinator) ShouldHandoff(ctx context.Context, signal core.IntentSignal, threshold float64) (core.CapabilityType, bool) {
	if threshold <= 0 {
		threshold = c.opts.ConfidenceThreshold
	}
	if signal.Confidence < threshold {
		return "", false
	}

	index := c.registry.Refresh(ctx, false)

	if text := strings.ToLower(signal.RawText); text != "" {
		for t, handles := range index {
			for _, h := range handles {
				if name := strings.ToLower(h.Name); name != "" && strings.Contains(text, name) {
					return t, true
				}
			}
		}
	}

	target, ok := c.opts.IntentMap[signal.IntentType]
	if !ok || len(index[target]) == 0 {
		return "", false
	}
	return target, true
}

// Initiate creates a handoff record for the delegation decision. The
// record is Pending only inside this call: a delegated session id is
// minted immediately and the record advances to InProgress before it is
// stored. Auto-triggering target types additionally run one default
// invocation, recording its outcome into the same record, so the returned
// outcome is already terminal for those types.
func (c *Coordinator) Initiate(ctx context.Context, originSessionID, message string, signal core.IntentSignal, target core.CapabilityType, extra map[string]any) (*core.HandoffOutcome, error) {
	index := c.registry.Refresh(ctx, false)
	handles := index[target]
	if len(handles) == 0 {
		return nil, fmt.Errorf("%w for type %s", ErrNoHandles, target)
	}

	rec := &core.HandoffRecord{
		ID:              uuid.NewString(),
		OriginSessionID: originSessionID,
		Target:          target,
		Status:          core.HandoffPending,
		UserMessage:     message,
		Intent:          signal,
		Context:         extra,
		CreatedAt:       time.Now(),
	}
	rec.DelegatedSessionID = fmt.Sprintf("%s_%s_%s", originSessionID, target, rec.ID)
	if err := rec.Advance(core.HandoffInProgress); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.active[rec.ID] = rec
	c.mu.Unlock()

	activeNames := make([]string, 0, len(handles))
	for _, h := range handles {
		if h.Active {
			activeNames = append(activeNames, h.Name)
		}
	}

	outcome := &core.HandoffOutcome{
		HandoffID:          rec.ID,
		DelegatedSessionID: rec.DelegatedSessionID,
		Target:             target,
		Status:             rec.Status,
		Message:            transferMessage(target, activeNames),
	}
	c.LogInfo("handoff initiated", "handoff_id", rec.ID, "target", target, "origin", originSessionID)

	if !c.opts.AutoTrigger[target] {
		return outcome, nil
	}

	outcome.AutoTriggered = true
	res := c.runWorkflow(ctx, rec, map[string]any{
		"message": message,
		"trigger": "auto_handoff",
	})
	outcome.Status = rec.Status
	outcome.Result = rec.Result
	if res.Success {
		if text := responseText(res.Payload); text != "" {
			outcome.Message = text
		}
	}
	return outcome, nil
}

// Execute explicitly runs the target capability on behalf of an active
// handoff (the non-auto-trigger path). The record moves through
// WorkflowExecuting into Completed or Failed and relocates to history.
func (c *Coordinator) Execute(ctx context.Context, handoffID string, userData map[string]any) (*core.HandoffOutcome, error) {
	c.mu.RLock()
	rec, ok := c.active[handoffID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handoffID)
	}

	payload := map[string]any{
		"message": rec.UserMessage,
		"intent":  rec.Intent.IntentType,
	}
	for k, v := range userData {
		payload[k] = v
	}
	res := c.runWorkflow(ctx, rec, payload)

	outcome := &core.HandoffOutcome{
		HandoffID:          rec.ID,
		DelegatedSessionID: rec.DelegatedSessionID,
		Target:             rec.Target,
		Status:             rec.Status,
		Result:             rec.Result,
	}
	if res.Success {
		outcome.Message = fmt.Sprintf("Workflow for %s executed successfully.", rec.Target)
	} else {
		outcome.Message = fmt.Sprintf("Workflow for %s failed: %s", rec.Target, res.Error)
	}
	return outcome, nil
}

// runWorkflow drives one invocation through the state machine: the record
// enters WorkflowExecuting, the capability is invoked once with the
// delegated session id, and the terminal outcome is recorded and the
// record relocated. No automatic retry exists; a failed handoff is
// terminal and must be re-initiated by a fresh decision.
func (c *Coordinator) runWorkflow(ctx context.Context, rec *core.HandoffRecord, payload map[string]any) core.StepResult {
	if err := rec.Advance(core.HandoffWorkflowExecuting); err != nil {
		return core.FailedStep(rec.Target, 0, "%v", err)
	}

	payload["handoff_id"] = rec.ID
	sessionCtx := map[string]any{"session_id": rec.DelegatedSessionID}
	res := c.invoker.Invoke(ctx, rec.Target, payload, sessionCtx, c.opts.InvokeTimeout)

	if res.Success {
		rec.Result = res.Payload
		_ = rec.Advance(core.HandoffCompleted)
	} else {
		rec.Result = map[string]any{"error": res.Error}
		_ = rec.Advance(core.HandoffFailed)
	}
	c.relocate(rec)
	c.Logger().Info("handoff workflow finished", "handoff_id", rec.ID, "status", string(rec.Status), "elapsed", res.Elapsed)
	return res
}

// Complete finalizes an active handoff with an externally produced result
// and hands control back to the coordinating session. A workflow result
// already recorded on the record wins over a nil result argument.
func (c *Coordinator) Complete(handoffID string, result map[string]any) (*core.HandoffOutcome, error) {
	c.mu.RLock()
	rec, ok := c.active[handoffID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handoffID)
	}

	if result != nil {
		rec.Result = result
	}
	if err := rec.Advance(core.HandoffCompleted); err != nil {
		return nil, err
	}
	c.relocate(rec)
	c.LogInfo("handoff completed", "handoff_id", rec.ID, "origin", rec.OriginSessionID)

	return &core.HandoffOutcome{
		HandoffID:          rec.ID,
		DelegatedSessionID: rec.DelegatedSessionID,
		Target:             rec.Target,
		Status:             rec.Status,
		Result:             rec.Result,
		Message:            "Handoff completed. Returning control to the coordinating assistant.",
	}, nil
}

// Cancel terminates an active handoff on explicit external request. It is
// the only path into the Cancelled state.
func (c *Coordinator) Cancel(handoffID string) error {
	c.mu.RLock()
	rec, ok := c.active[handoffID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, handoffID)
	}
	if err := rec.Advance(core.HandoffCancelled); err != nil {
		return err
	}
	c.relocate(rec)
	c.LogInfo("handoff cancelled", "handoff_id", rec.ID)
	return nil
}

// Status returns a copy of the record for the id, searching the active
// collection first and history second.
func (c *Coordinator) Status(handoffID string) (*core.HandoffRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if rec, ok := c.active[handoffID]; ok {
		return rec.Clone(), true
	}
	if rec, ok := c.history[handoffID]; ok {
		return rec.Clone(), true
	}
	return nil, false
}

// ListActive returns copies of all in-flight handoff records.
func (c *Coordinator) ListActive() []*core.HandoffRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*core.HandoffRecord, 0, len(c.active))
	for _, rec := range c.active {
		out = append(out, rec.Clone())
	}
	return out
}

// History returns copies of all terminal handoff records.
func (c *Coordinator) History() []*core.HandoffRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*core.HandoffRecord, 0, len(c.history))
	for _, rec := range c.history {
		out = append(out, rec.Clone())
	}
	return out
}

// relocate moves a terminal record from the active collection to history.
func (c *Coordinator) relocate(rec *core.HandoffRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, rec.ID)
	c.history[rec.ID] = rec
}

// transferMessage builds the user facing delegation announcement.
func transferMessage(target core.CapabilityType, activeNames []string) string {
	if len(activeNames) == 0 {
		return fmt.Sprintf("Transferring you to the %s capability. Note: no active workflows are currently available.", target)
	}
	return fmt.Sprintf("Transferring you to the %s capability with %d active workflow(s): %s.",
		target, len(activeNames), strings.Join(activeNames, ", "))
}

// responseText extracts a conversational reply from a workflow payload.
func responseText(payload map[string]any) string {
	for _, key := range []string{"response", "message", "output"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
