package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptySequence is returned when a pipeline with zero steps is registered.
	ErrEmptySequence = errors.New("sequence must declare at least one step")
	// ErrUnknownSequence is reported inside a failed SequenceResult when a
	// caller references a pipeline name that was never registered.
	ErrUnknownSequence = errors.New("unknown sequence")
)

// SequenceDefinition is a named, ordered pipeline template of capability
// types. Definitions are immutable after registration; re-registering the
// same name replaces the previous definition (last write wins).
type SequenceDefinition struct {
	Name  string           `json:"name"`
	Steps []CapabilityType `json:"steps"`
}

// Validate rejects definitions that cannot be executed.
func (d SequenceDefinition) Validate() error {
	if d.Name == "" {
		return errors.New("sequence name must not be empty")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("sequence %q: %w", d.Name, ErrEmptySequence)
	}
	for _, s := range d.Steps {
		if !s.Valid() {
			return fmt.Errorf("sequence %q: invalid capability type %q", d.Name, s)
		}
	}
	return nil
}

// StepResult is the outcome of one capability invocation. It is created
// once per attempt and never mutated afterwards.
type StepResult struct {
	Type    CapabilityType `json:"type"`
	Success bool           `json:"success"`
	// Payload holds the opaque result data on success (possibly the raw
	// response body when the remote side returned non-JSON).
	Payload map[string]any `json:"payload,omitempty"`
	// Error is the human readable failure description, present iff
	// Success is false.
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// FailedStep builds a StepResult describing a failed invocation attempt.
func FailedStep(t CapabilityType, elapsed time.Duration, format string, args ...any) StepResult {
	return StepResult{Type: t, Elapsed: elapsed, Error: fmt.Sprintf(format, args...)}
}

// SequenceResult aggregates one pipeline run. Results preserves declared
// step order in sequential mode and declared step *indexing* in parallel
// mode. Success is true iff every step succeeded; Errors collects
// "<type> failed: <message>" entries in step order.
type SequenceResult struct {
	Name         string        `json:"name"`
	Success      bool          `json:"success"`
	Results      []StepResult  `json:"results"`
	Errors       []string      `json:"errors,omitempty"`
	TotalElapsed time.Duration `json:"total_elapsed"`
	Parallel     bool          `json:"parallel"`
}

// Invoker executes a single capability invocation: payload enrichment,
// dispatch to the resolved webhook address, elapsed-time measurement and
// normalization of transport outcomes into a StepResult. Invoke never
// returns an error; every failure mode is captured in the result.
//
// timeout bounds the single dispatch; a non-positive value selects the
// implementation default.
type Invoker interface {
	Invoke(ctx context.Context, t CapabilityType, payload, sessionCtx map[string]any, timeout time.Duration) StepResult
}

// Enricher supplies a best-effort contextual metadata block for a
// capability type and optional entity reference. A failed or empty lookup
// must never fail the invocation that requested it.
type Enricher interface {
	Enrich(ctx context.Context, t CapabilityType, entityRef string) (map[string]any, error)
}
