// Package engine implements the turn processing layer of FlowRelay.
//
// The Engine is the coordination hub behind ProcessTurn: it loads the
// conversational session, consults the intent classifier, decides between
// delegating the turn to a specialized capability (handoff), running a
// bound pipeline (sequence), or answering conversationally, and reconciles
// the outcome back into the session store.
//
// Turn processing is deliberately best-effort: a capability failure is
// reported inside the TurnResult, never as a failed turn. Each user turn
// is one short-lived task; the only background activity in the system is
// the registry's lazy on-demand refresh.
package engine
