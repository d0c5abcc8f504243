package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flowrelay/flowrelay/core"
	"github.com/flowrelay/flowrelay/logging"
)

// Orchestrator executes named capability pipelines. Implemented by
// sequence.Orchestrator.
type Orchestrator interface {
	Register(name string, steps []core.CapabilityType) error
	Execute(ctx context.Context, name string, payload map[string]any, sessionID string, parallel bool) core.SequenceResult
}

// HandoffCoordinator decides and manages delegations. Implemented by
// handoff.Coordinator.
type HandoffCoordinator interface {
	ShouldHandoff(ctx context.Context, signal core.IntentSignal, threshold float64) (core.CapabilityType, bool)
	Initiate(ctx context.Context, originSessionID, message string, signal core.IntentSignal, target core.CapabilityType, extra map[string]any) (*core.HandoffOutcome, error)
	Complete(handoffID string, result map[string]any) (*core.HandoffOutcome, error)
	Cancel(handoffID string) error
	Status(handoffID string) (*core.HandoffRecord, bool)
}

// Options configures an Engine.
type Options struct {
	// Classifier supplies intent signals. Nil degrades every turn to a
	// zero-confidence signal (no delegation, no pipelines).
	Classifier core.Classifier
	// ConfidenceThreshold gates handoff decisions (0 selects the handoff
	// coordinator's default).
	ConfidenceThreshold float64
	// FallbackResponse answers turns no capability or pipeline claims.
	FallbackResponse string
	// Logger receives turn processing diagnostics.
	Logger logging.Logger
}

// intentBinding routes an intent type to a registered pipeline.
type intentBinding struct {
	sequence string
	parallel bool
}

// Engine processes conversation turns against the registry, orchestrator,
// handoff coordinator and session store it was wired with. All methods are
// safe for concurrent use across sessions; the caller serializes turns for
// one session id.
type Engine struct {
	core.LoggerAdapter
	registry     core.Registry
	orchestrator Orchestrator
	handoffs     HandoffCoordinator
	sessions     core.SessionStore
	opts         Options

	mu       sync.RWMutex
	bindings map[string]intentBinding
}

// New wires an Engine from its collaborating services.
func New(reg core.Registry, orch Orchestrator, hc HandoffCoordinator, store core.SessionStore, optFns ...func(o *Options)) *Engine {
	opts := Options{
		FallbackResponse: "I don't have a specialized workflow for that yet, but I'm happy to help directly.",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
		registry:      reg,
		orchestrator:  orch,
		handoffs:      hc,
		sessions:      store,
		opts:          opts,
		bindings:      map[string]intentBinding{},
	}
}

// RegisterSequence registers a named pipeline with the orchestrator.
func (e *Engine) RegisterSequence(name string, steps []core.CapabilityType) error {
	return e.orchestrator.Register(name, steps)
}

// BindIntentSequence routes an intent type to a registered pipeline so
// matching turns execute it. Re-binding an intent type replaces the route.
func (e *Engine) BindIntentSequence(intentType, sequenceName string, parallel bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bindings[intentType] = intentBinding{sequence: sequenceName, parallel: parallel}
}

// RegisterCapabilityHandle pins an external workflow id to a capability
// type, overriding automatic classification.
func (e *Engine) RegisterCapabilityHandle(t core.CapabilityType, externalID string) {
	e.registry.RegisterHandle(t, externalID)
}

// ListCapabilities returns the current registry snapshot.
func (e *Engine) ListCapabilities(ctx context.Context) map[core.CapabilityType][]core.CapabilityHandle {
	return e.registry.Refresh(ctx, false)
}

// ProcessTurn handles one inbound user turn: classify, decide handoff,
// run a bound pipeline, or answer conversationally. The returned result
// always carries a response and turn+1; capability failures degrade the
// response instead of failing the turn.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, message string, turn int) (*core.TurnResult, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	sess.Append(core.Message{Role: "user", Content: message, Turn: turn})

	signal := e.classify(ctx, message, sess)
	result := &core.TurnResult{
		Status:    core.TurnChat,
		SessionID: sessionID,
		Turn:      turn + 1,
		Intent:    signal,
	}

	if target, ok := e.handoffs.ShouldHandoff(ctx, signal, e.opts.ConfidenceThreshold); ok {
		e.processHandoff(ctx, sess, message, signal, target, result)
	} else if binding, ok := e.bindingFor(signal.IntentType); ok {
		seqRes := e.orchestrator.Execute(ctx, binding.sequence, map[string]any{"message": message}, sessionID, binding.parallel)
		result.Status = core.TurnSequenceExecuted
		result.Sequence = &seqRes
		result.Response = summarizeSequence(seqRes)
	} else {
		result.Response = e.opts.FallbackResponse
	}

	sess.Append(core.Message{Role: "assistant", Content: result.Response, Turn: turn})
	if err := e.sessions.Save(sess); err != nil {
		e.LogWarn("session write-back failed", "session_id", sessionID, "error", err)
	}
	return result, nil
}

// processHandoff delegates the turn, reconciling the outcome into the
// session. A delegation that cannot start (for example the target lost its
// last handle between decision and initiation) degrades to a chat turn.
func (e *Engine) processHandoff(ctx context.Context, sess *core.Session, message string, signal core.IntentSignal, target core.CapabilityType, result *core.TurnResult) {
	outcome, err := e.handoffs.Initiate(ctx, sess.ID, message, signal, target, map[string]any{"origin_turn": result.Turn - 1})
	if err != nil {
		e.LogWarn("handoff initiation failed", "session_id", sess.ID, "target", target, "error", err)
		result.Response = e.opts.FallbackResponse
		return
	}
	result.Status = core.TurnHandoffInitiated
	result.Handoff = outcome
	result.Response = outcome.Message
	if outcome.Status.Terminal() {
		sess.ClearActiveHandoff()
	} else {
		sess.SetActiveHandoff(outcome.HandoffID)
	}
}

// CompleteHandoff finalizes an active handoff and unlinks it from its
// originating session.
func (e *Engine) CompleteHandoff(handoffID string, result map[string]any) (*core.HandoffOutcome, error) {
	outcome, err := e.handoffs.Complete(handoffID, result)
	if err != nil {
		return nil, err
	}
	e.unlinkSession(handoffID)
	return outcome, nil
}

// CancelHandoff cancels an active handoff and unlinks it from its
// originating session.
func (e *Engine) CancelHandoff(handoffID string) error {
	rec, ok := e.handoffs.Status(handoffID)
	if err := e.handoffs.Cancel(handoffID); err != nil {
		return err
	}
	if ok {
		e.unlinkSessionID(rec.OriginSessionID, handoffID)
	}
	return nil
}

func (e *Engine) unlinkSession(handoffID string) {
	rec, ok := e.handoffs.Status(handoffID)
	if !ok {
		return
	}
	e.unlinkSessionID(rec.OriginSessionID, handoffID)
}

func (e *Engine) unlinkSessionID(sessionID, handoffID string) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil || sess.ActiveHandoffID != handoffID {
		return
	}
	sess.ClearActiveHandoff()
	if err := e.sessions.Save(sess); err != nil {
		e.LogWarn("session write-back failed", "session_id", sessionID, "error", err)
	}
}

// classify obtains the intent signal, degrading to a zero-confidence
// general inquiry when no classifier is wired or classification fails.
func (e *Engine) classify(ctx context.Context, message string, sess *core.Session) core.IntentSignal {
	degraded := core.IntentSignal{IntentType: "general_inquiry", Confidence: 0, RawText: message}
	if e.opts.Classifier == nil {
		return degraded
	}
	signal, err := e.opts.Classifier.Classify(ctx, message, sess.Messages())
	if err != nil {
		e.LogWarn("intent classification failed", "session_id", sess.ID, "error", err)
		return degraded
	}
	signal.RawText = message
	return signal
}

func (e *Engine) bindingFor(intentType string) (intentBinding, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.bindings[intentType]
	return b, ok
}

// summarizeSequence renders a pipeline outcome as a conversational reply.
func summarizeSequence(res core.SequenceResult) string {
	succeeded := 0
	for _, sr := range res.Results {
		if sr.Success {
			succeeded++
		}
	}
	if res.Success {
		return fmt.Sprintf("Pipeline %q completed: %d step(s) succeeded in %s.",
			res.Name, succeeded, res.TotalElapsed.Round(time.Millisecond))
	}
	if len(res.Results) == 0 {
		return fmt.Sprintf("Pipeline %q could not be executed: %s", res.Name, res.Errors[0])
	}
	return fmt.Sprintf("Pipeline %q finished with partial results: %d of %d step(s) succeeded. Issues: %s",
		res.Name, succeeded, len(res.Results), strings.Join(res.Errors, "; "))
}
