package core

// TurnStatus labels the path a processed turn took through the engine.
type TurnStatus string

const (
	// TurnChat indicates no delegation or pipeline applied; the engine
	// produced a conversational fallback response.
	TurnChat TurnStatus = "chat"
	// TurnSequenceExecuted indicates a pipeline was run for the turn.
	TurnSequenceExecuted TurnStatus = "sequence_executed"
	// TurnHandoffInitiated indicates the turn was delegated to a
	// specialized capability.
	TurnHandoffInitiated TurnStatus = "handoff_initiated"
)

// TurnResult is the boundary response of ProcessTurn. Turn is always the
// caller's turn number plus one, and Response is always populated: turn
// processing degrades to a best-effort answer rather than failing on a
// capability error.
type TurnResult struct {
	Status    TurnStatus      `json:"status"`
	SessionID string          `json:"session_id"`
	Response  string          `json:"response"`
	Turn      int             `json:"turn"`
	Intent    IntentSignal    `json:"intent"`
	Sequence  *SequenceResult `json:"sequence,omitempty"`
	Handoff   *HandoffOutcome `json:"handoff,omitempty"`
}
