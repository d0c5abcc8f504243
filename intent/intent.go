// Package intent provides shared prompt construction and verdict parsing
// for model-backed intent classifiers. Provider-specific adapters live in
// the subpackages (openai, anthropic); each implements core.Classifier by
// sending the shared prompt to its model and handing the raw completion to
// ParseVerdict.
package intent

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/flowrelay/flowrelay/core"
)

// SystemPrompt instructs the model to emit a bare JSON classification
// verdict. Adapters send it verbatim as the system message.
const SystemPrompt = `You are the intent classifier for a conversational assistant that can delegate ` +
	`work to specialized workflows. Classify the user's message into exactly one intent type from: ` +
	`data_analysis, document_processing, task_management, approval_request, report_generation, ` +
	`home_automation, general_inquiry. Respond with ONLY a JSON object of the form ` +
	`{"intent_type": "<type>", "confidence": <0.0-1.0>} and nothing else: no prose, no markdown, no code fences.`

// historyWindow bounds how many trailing conversation messages are folded
// into the classification prompt.
const historyWindow = 5

// BuildPrompt renders the user message together with a short tail of the
// conversation so the model can resolve anaphora ("do that again", "the
// same report").
func BuildPrompt(text string, history []core.Message) string {
	if len(history) == 0 {
		return text
	}

	start := len(history) - historyWindow
	if start < 0 {
		start = 0
	}

	var sb strings.Builder
	sb.WriteString("Recent conversation:\n")
	for _, msg := range history[start:] {
		sb.WriteString(msg.Role)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("\nClassify this message: ")
	sb.WriteString(text)

	return sb.String()
}

// ParseVerdict extracts an IntentSignal from a raw model completion. Models
// occasionally wrap the object in markdown fences despite instructions, so
// fences are stripped before parsing. Confidence is clamped to [0, 1].
func ParseVerdict(raw, userText string) (core.IntentSignal, error) {
	body := stripFences(raw)

	if !gjson.Valid(body) {
		return core.IntentSignal{}, fmt.Errorf("classifier returned invalid JSON: %q", truncate(raw, 128))
	}

	intentType := gjson.Get(body, "intent_type").String()
	if intentType == "" {
		return core.IntentSignal{}, fmt.Errorf("classifier verdict missing intent_type: %q", truncate(raw, 128))
	}

	confidence := gjson.Get(body, "confidence").Float()
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return core.IntentSignal{
		IntentType: intentType,
		Confidence: confidence,
		RawText:    userText,
	}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)

	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the opening fence, e.g. ```json.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "" || first == "json" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
