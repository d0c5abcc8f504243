package core

import "context"

// IntentSignal is the verdict of the external intent classifier for one
// user message. Confidence is in [0, 1]; RawText preserves the original
// message for literal capability-name matching.
type IntentSignal struct {
	IntentType string  `json:"intent_type"`
	Confidence float64 `json:"confidence"`
	RawText    string  `json:"raw_text"`
}

// Classifier analyzes a user message (with optional conversation history)
// into an IntentSignal. Implementations wrap external text-completion
// capabilities; the engine degrades to a zero-confidence signal when no
// classifier is configured or classification fails.
type Classifier interface {
	Classify(ctx context.Context, text string, history []Message) (IntentSignal, error)
}
