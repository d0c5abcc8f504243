package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/flowrelay/flowrelay/core"
)

// Invocation records one Invoke call observed by a ScriptedInvoker.
type Invocation struct {
	Type       core.CapabilityType
	Payload    map[string]any
	SessionCtx map[string]any
}

// ScriptedInvoker returns pre-scripted step results per capability type
// and records every invocation, so tests can assert payload shaping and
// ordering without a live webhook host. Unscripted types succeed with an
// empty payload.
type ScriptedInvoker struct {
	mu      sync.Mutex
	results map[core.CapabilityType]core.StepResult
	delays  map[core.CapabilityType]time.Duration
	calls   []Invocation
}

var _ core.Invoker = (*ScriptedInvoker)(nil)

// NewScriptedInvoker creates an empty ScriptedInvoker.
func NewScriptedInvoker() *ScriptedInvoker {
	return &ScriptedInvoker{
		results: map[core.CapabilityType]core.StepResult{},
		delays:  map[core.CapabilityType]time.Duration{},
	}
}

// Script sets the result returned for a capability type.
func (s *ScriptedInvoker) Script(t core.CapabilityType, res core.StepResult) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[t] = res
	return s
}

// Succeed scripts a successful result carrying the given payload.
func (s *ScriptedInvoker) Succeed(t core.CapabilityType, payload map[string]any) *ScriptedInvoker {
	return s.Script(t, core.StepResult{Type: t, Success: true, Payload: payload})
}

// Fail scripts a failing result with the given error message.
func (s *ScriptedInvoker) Fail(t core.CapabilityType, errMsg string) *ScriptedInvoker {
	return s.Script(t, core.StepResult{Type: t, Success: false, Error: errMsg})
}

// Delay makes invocations of a capability type sleep before returning,
// so tests can observe wall-clock differences between sequential and
// parallel runs.
func (s *ScriptedInvoker) Delay(t core.CapabilityType, d time.Duration) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[t] = d
	return s
}

// Invoke implements core.Invoker.
func (s *ScriptedInvoker) Invoke(_ context.Context, t core.CapabilityType, payload, sessionCtx map[string]any, _ time.Duration) core.StepResult {
	s.mu.Lock()
	delay := s.delays[t]
	res, ok := s.results[t]
	s.calls = append(s.calls, Invocation{
		Type:       t,
		Payload:    clone(payload),
		SessionCtx: clone(sessionCtx),
	})
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	start := time.Now()
	if !ok {
		res = core.StepResult{Type: t, Success: true, Payload: map[string]any{}}
	}
	res.Elapsed = delay + time.Since(start)

	return res
}

// Calls returns the recorded invocations in call order.
func (s *ScriptedInvoker) Calls() []Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Invocation, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsFor returns recorded invocations for one capability type.
func (s *ScriptedInvoker) CallsFor(t core.CapabilityType) []Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Invocation
	for _, c := range s.calls {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

func clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
