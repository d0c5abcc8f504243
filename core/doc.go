// Package core defines the shared data model and service interfaces of
// FlowRelay: capability handles and their catalog boundary, step and
// sequence results, the handoff record state machine, conversational
// sessions and the stores/classifiers the engine is wired with.
//
// Concrete implementations live in the leaf packages (registry, invoker,
// sequence, handoff, session, engine, intent/...); core intentionally has
// no dependencies on them so implementations stay swappable.
package core
