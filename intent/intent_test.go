package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrelay/flowrelay/core"
)

func TestParseVerdict(t *testing.T) {
	signal, err := ParseVerdict(`{"intent_type":"data_analysis","confidence":0.85}`, "analyze revenue")
	require.NoError(t, err)
	assert.Equal(t, "data_analysis", signal.IntentType)
	assert.Equal(t, 0.85, signal.Confidence)
	assert.Equal(t, "analyze revenue", signal.RawText)
}

func TestParseVerdict_StripsCodeFences(t *testing.T) {
	raw := "```json\n{\"intent_type\":\"home_automation\",\"confidence\":0.9}\n```"

	signal, err := ParseVerdict(raw, "turn on the lights")
	require.NoError(t, err)
	assert.Equal(t, "home_automation", signal.IntentType)
	assert.Equal(t, 0.9, signal.Confidence)
}

func TestParseVerdict_StripsBareFences(t *testing.T) {
	raw := "```\n{\"intent_type\":\"approval_request\",\"confidence\":0.7}\n```"

	signal, err := ParseVerdict(raw, "approve this")
	require.NoError(t, err)
	assert.Equal(t, "approval_request", signal.IntentType)
}

func TestParseVerdict_ClampsConfidence(t *testing.T) {
	high, err := ParseVerdict(`{"intent_type":"data_analysis","confidence":1.7}`, "x")
	require.NoError(t, err)
	assert.Equal(t, 1.0, high.Confidence)

	low, err := ParseVerdict(`{"intent_type":"data_analysis","confidence":-0.3}`, "x")
	require.NoError(t, err)
	assert.Equal(t, 0.0, low.Confidence)
}

func TestParseVerdict_Errors(t *testing.T) {
	_, err := ParseVerdict("I think this is about data analysis.", "x")
	assert.Error(t, err)

	_, err = ParseVerdict(`{"confidence":0.9}`, "x")
	assert.Error(t, err, "missing intent_type is rejected")
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, "hello", BuildPrompt("hello", nil))

	history := []core.Message{
		{Role: "user", Content: "show me the sales numbers"},
		{Role: "assistant", Content: "Here they are."},
	}
	prompt := BuildPrompt("do that again", history)
	assert.Contains(t, prompt, "user: show me the sales numbers")
	assert.Contains(t, prompt, "assistant: Here they are.")
	assert.Contains(t, prompt, "Classify this message: do that again")
}

func TestBuildPrompt_WindowsHistory(t *testing.T) {
	var history []core.Message
	for i := 0; i < 10; i++ {
		history = append(history, core.Message{Role: "user", Content: string(rune('a' + i))})
	}
	prompt := BuildPrompt("next", history)
	assert.NotContains(t, prompt, "user: a\n", "old messages fall out of the window")
	assert.Contains(t, prompt, "user: j")
}
