// Package sequence holds named capability pipelines and executes them
// sequentially or in parallel, aggregating per-step results, timings and
// partial failures into one sequence outcome.
package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowrelay/flowrelay/core"
	"github.com/flowrelay/flowrelay/logging"
)

// Options configures an Orchestrator.
type Options struct {
	// StepTimeout bounds each individual invocation. There is no
	// whole-run deadline; timeouts are strictly per step.
	StepTimeout time.Duration
	// Logger receives execution diagnostics.
	Logger logging.Logger
}

// Orchestrator is the pipeline registry and executor. Registration and
// execution are safe for concurrent use.
type Orchestrator struct {
	core.LoggerAdapter
	invoker core.Invoker
	opts    Options

	mu        sync.RWMutex
	sequences map[string]core.SequenceDefinition
}

// New constructs an Orchestrator executing steps through the given invoker.
func New(inv core.Invoker, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
		invoker:       inv,
		opts:          opts,
		sequences:     map[string]core.SequenceDefinition{},
	}
}

// Register validates and stores a pipeline definition. Re-registering a
// name replaces the previous definition (last write wins); zero-step
// pipelines are rejected.
func (o *Orchestrator) Register(name string, steps []core.CapabilityType) error {
	def := core.SequenceDefinition{Name: name, Steps: steps}
	if err := def.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sequences[name] = def
	return nil
}

// Definitions returns a copy of the registered pipelines keyed by name.
func (o *Orchestrator) Definitions() map[string]core.SequenceDefinition {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]core.SequenceDefinition, len(o.sequences))
	for k, v := range o.sequences {
		out[k] = v
	}
	return out
}

// Execute runs the named pipeline. Unknown names yield an immediate failed
// result with zero steps executed. TotalElapsed is measured end-to-end for
// the whole call, not summed over steps, so parallel runs show their
// wall-clock savings.
func (o *Orchestrator) Execute(ctx context.Context, name string, payload map[string]any, sessionID string, parallel bool) core.SequenceResult {
	start := time.Now()

	o.mu.RLock()
	def, ok := o.sequences[name]
	o.mu.RUnlock()
	if !ok {
		return core.SequenceResult{
			Name:         name,
			Parallel:     parallel,
			Errors:       []string{fmt.Sprintf("%s: %q", core.ErrUnknownSequence, name)},
			TotalElapsed: time.Since(start),
		}
	}

	sessionCtx := map[string]any{"session_id": sessionID, "sequence": name}

	var results []core.StepResult
	if parallel {
		results = o.runParallel(ctx, def, payload, sessionCtx)
	} else {
		results = o.runSequential(ctx, def, payload, sessionCtx)
	}

	res := core.SequenceResult{
		Name:         name,
		Success:      true,
		Results:      results,
		Parallel:     parallel,
		TotalElapsed: time.Since(start),
	}
	for _, sr := range results {
		if !sr.Success {
			res.Success = false
			res.Errors = append(res.Errors, fmt.Sprintf("%s failed: %s", sr.Type, sr.Error))
		}
	}
	o.LogInfo("sequence executed", "sequence", name, "parallel", parallel,
		"steps", len(results), "failed", len(res.Errors), "elapsed", res.TotalElapsed)
	return res
}

// runSequential executes steps one at a time in declared order. Each step
// after the first receives the accumulated prior payloads under
// "previous_results", and a failing step never halts its successors: the
// pipeline always attempts every declared step to maximize partial progress.
func (o *Orchestrator) runSequential(ctx context.Context, def core.SequenceDefinition, payload, sessionCtx map[string]any) []core.StepResult {
	results := make([]core.StepResult, 0, len(def.Steps))
	for i, step := range def.Steps {
		stepPayload := clonePayload(payload)
		if i > 0 {
			previous := make([]map[string]any, 0, i)
			for _, prior := range results {
				previous = append(previous, prior.Payload)
			}
			stepPayload["previous_results"] = previous
		}
		results = append(results, o.invoker.Invoke(ctx, step, stepPayload, sessionCtx, o.opts.StepTimeout))
	}
	return results
}

// runParallel dispatches every step concurrently with the identical base
// payload (no inter-step context exists in parallel mode) and waits for
// all to finish before aggregating. Results keep declared step indexing.
func (o *Orchestrator) runParallel(ctx context.Context, def core.SequenceDefinition, payload, sessionCtx map[string]any) []core.StepResult {
	results := make([]core.StepResult, len(def.Steps))
	g, gctx := errgroup.WithContext(ctx)
	for i, step := range def.Steps {
		g.Go(func() error {
			results[i] = o.invoker.Invoke(gctx, step, clonePayload(payload), sessionCtx, o.opts.StepTimeout)
			return nil
		})
	}
	// Invoke never returns an error; Wait is purely the join barrier.
	_ = g.Wait()
	return results
}

func clonePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	return out
}
