// Package flowrelay provides a high-level façade over the core engine and
// its collaborating services (capability registry, webhook invoker,
// sequence orchestrator, handoff coordinator, session store). Most
// applications interact with this package by:
//  1. Creating a FlowRelay via New() (optionally overriding the catalog,
//     classifier, stores or logger)
//  2. Registering pipelines and intent bindings
//  3. Processing conversation turns via ProcessTurn
//
// The façade delegates turn handling to engine.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development against a
// workflow host on localhost; production deployments typically supply a
// model-backed classifier and a structured logger.
package flowrelay

import (
	"context"
	"time"

	"github.com/flowrelay/flowrelay/catalog"
	"github.com/flowrelay/flowrelay/core"
	"github.com/flowrelay/flowrelay/engine"
	"github.com/flowrelay/flowrelay/handoff"
	"github.com/flowrelay/flowrelay/invoker"
	"github.com/flowrelay/flowrelay/logging"
	"github.com/flowrelay/flowrelay/registry"
	"github.com/flowrelay/flowrelay/sequence"
	"github.com/flowrelay/flowrelay/session"
)

// Options configures the FlowRelay instance.
type Options struct {
	// BaseURL is the workflow host's base URL, used for both the catalog
	// API and webhook target fallbacks. Defaults to the conventional
	// local port.
	BaseURL string

	// CatalogAPIKey authenticates catalog requests when the workflow host
	// requires it.
	CatalogAPIKey string

	// Catalog overrides the HTTP catalog built from BaseURL and
	// CatalogAPIKey.
	Catalog core.Catalog

	// RegistryTTL is the capability index cache lifetime. Zero selects
	// registry.DefaultTTL.
	RegistryTTL time.Duration

	// StepTimeout bounds each capability invocation inside a pipeline.
	// Zero selects the invoker default.
	StepTimeout time.Duration

	// Classifier supplies intent signals for turn processing. Nil means
	// no delegation: every turn falls through to the fallback response.
	Classifier core.Classifier

	// ConfidenceThreshold gates handoff decisions. Zero selects the
	// coordinator default.
	ConfidenceThreshold float64

	// Enricher contributes contextual metadata to invocation payloads.
	Enricher core.Enricher

	// SessionStore defaults to an in-memory TTL store.
	SessionStore core.SessionStore

	// SessionTTL configures the default in-memory store. Ignored when
	// SessionStore is supplied.
	SessionTTL time.Duration

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// FlowRelay is the high-level façade aggregating the engine and services.
type FlowRelay struct {
	opts         Options
	registry     *registry.Registry
	orchestrator *sequence.Orchestrator
	handoffs     *handoff.Coordinator
	engine       *engine.Engine
}

// New creates a FlowRelay instance with optional overrides. Any unset
// service is initialized with its default implementation, and the built-in
// pipelines (discovery, reporting, full_pipeline) are pre-registered.
func New(optFns ...func(o *Options)) *FlowRelay {
	opts := Options{
		BaseURL: catalog.DefaultBaseURL,
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	cat := opts.Catalog
	if cat == nil {
		cat = catalog.New(opts.BaseURL, func(o *catalog.Options) {
			o.APIKey = opts.CatalogAPIKey
			o.Logger = opts.Logger
		})
	}

	reg := registry.New(cat, func(o *registry.Options) {
		if opts.RegistryTTL > 0 {
			o.TTL = opts.RegistryTTL
		}
		o.BaseWebhookURL = opts.BaseURL
		o.Logger = opts.Logger
	})

	inv := invoker.New(reg, func(o *invoker.Options) {
		o.Enricher = opts.Enricher
		if opts.StepTimeout > 0 {
			o.DefaultTimeout = opts.StepTimeout
		}
		o.Logger = opts.Logger
	})

	orch := sequence.New(inv, func(o *sequence.Options) {
		if opts.StepTimeout > 0 {
			o.StepTimeout = opts.StepTimeout
		}
		o.Logger = opts.Logger
	})

	hc := handoff.New(reg, inv, func(o *handoff.Options) {
		if opts.ConfidenceThreshold > 0 {
			o.ConfidenceThreshold = opts.ConfidenceThreshold
		}
		if opts.StepTimeout > 0 {
			o.InvokeTimeout = opts.StepTimeout
		}
		o.Logger = opts.Logger
	})

	store := opts.SessionStore
	if store == nil {
		store = session.NewInMemoryStore(func(o *session.Options) {
			if opts.SessionTTL > 0 {
				o.TTL = opts.SessionTTL
			}
		})
	}

	eng := engine.New(reg, orch, hc, store, func(o *engine.Options) {
		o.Classifier = opts.Classifier
		o.ConfidenceThreshold = opts.ConfidenceThreshold
		o.Logger = opts.Logger
	})

	r := &FlowRelay{
		opts:         opts,
		registry:     reg,
		orchestrator: orch,
		handoffs:     hc,
		engine:       eng,
	}

	for name, def := range defaultSequences() {
		_ = orch.Register(name, def)
	}

	return r
}

// defaultSequences returns the built-in pipeline templates.
func defaultSequences() map[string][]core.CapabilityType {
	return map[string][]core.CapabilityType{
		"discovery": {
			core.TypeDataAnalysis,
			core.TypeDocumentProcessing,
		},
		"reporting": {
			core.TypeDataAnalysis,
			core.TypeReportGeneration,
		},
		"full_pipeline": {
			core.TypeDataAnalysis,
			core.TypeDocumentProcessing,
			core.TypeTaskManagement,
			core.TypeReportGeneration,
		},
	}
}

// ProcessTurn runs one conversation turn for the given session.
func (r *FlowRelay) ProcessTurn(ctx context.Context, sessionID, message string, turn int) (*core.TurnResult, error) {
	return r.engine.ProcessTurn(ctx, sessionID, message, turn)
}

// RegisterSequence registers (or replaces) a named pipeline.
func (r *FlowRelay) RegisterSequence(name string, steps []core.CapabilityType) error {
	return r.engine.RegisterSequence(name, steps)
}

// BindIntentSequence routes an intent type to a registered pipeline so
// matching turns execute it instead of falling back to chat.
func (r *FlowRelay) BindIntentSequence(intentType, sequenceName string, parallel bool) {
	r.engine.BindIntentSequence(intentType, sequenceName, parallel)
}

// ExecuteSequence runs a registered pipeline directly, outside turn
// processing.
func (r *FlowRelay) ExecuteSequence(ctx context.Context, name string, payload map[string]any, sessionID string, parallel bool) core.SequenceResult {
	return r.orchestrator.Execute(ctx, name, payload, sessionID, parallel)
}

// RegisterCapabilityHandle pins an external workflow id to a capability
// type regardless of name classification.
func (r *FlowRelay) RegisterCapabilityHandle(t core.CapabilityType, externalID string) {
	r.engine.RegisterCapabilityHandle(t, externalID)
}

// ListCapabilities returns the current capability index, refreshing it if
// the cache has expired.
func (r *FlowRelay) ListCapabilities(ctx context.Context) map[core.CapabilityType][]core.CapabilityHandle {
	return r.engine.ListCapabilities(ctx)
}

// CompleteHandoff finishes an active handoff with the given result and
// unlinks it from its origin session.
func (r *FlowRelay) CompleteHandoff(handoffID string, result map[string]any) (*core.HandoffOutcome, error) {
	return r.engine.CompleteHandoff(handoffID, result)
}

// CancelHandoff aborts an active handoff.
func (r *FlowRelay) CancelHandoff(handoffID string) error {
	return r.engine.CancelHandoff(handoffID)
}

// ExecuteHandoff pushes additional user data into an active handoff's
// workflow.
func (r *FlowRelay) ExecuteHandoff(ctx context.Context, handoffID string, userData map[string]any) (*core.HandoffOutcome, error) {
	return r.handoffs.Execute(ctx, handoffID, userData)
}

// HandoffStatus reports the record for an active or historical handoff.
func (r *FlowRelay) HandoffStatus(handoffID string) (*core.HandoffRecord, bool) {
	return r.handoffs.Status(handoffID)
}

// ActiveHandoffs lists all non-terminal handoff records.
func (r *FlowRelay) ActiveHandoffs() []*core.HandoffRecord {
	return r.handoffs.ListActive()
}
