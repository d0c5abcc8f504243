package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_Append(t *testing.T) {
	sess := NewSession("sess-1")

	sess.Append(Message{Role: "user", Content: "hello", Turn: 1})
	sess.Append(Message{Role: "assistant", Content: "hi", Turn: 1})

	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.False(t, msgs[0].Timestamp.IsZero(), "missing timestamps are filled in")
	assert.Equal(t, 1, sess.Turn)

	sess.Append(Message{Role: "user", Content: "next", Turn: 2})
	assert.Equal(t, 2, sess.Turn)
}

func TestSession_MessagesIsDefensiveCopy(t *testing.T) {
	sess := NewSession("sess-1")
	sess.Append(Message{Role: "user", Content: "original", Turn: 1})

	msgs := sess.Messages()
	msgs[0].Content = "mutated"

	assert.Equal(t, "original", sess.Messages()[0].Content)
}

func TestSession_HandoffLinkage(t *testing.T) {
	sess := NewSession("sess-1")
	assert.Empty(t, sess.ActiveHandoffID)

	sess.SetActiveHandoff("ho-1")
	assert.Equal(t, "ho-1", sess.ActiveHandoffID)

	sess.ClearActiveHandoff()
	assert.Empty(t, sess.ActiveHandoffID)
}

func TestSession_Clone(t *testing.T) {
	sess := NewSession("sess-1")
	sess.Append(Message{Role: "user", Content: "hello", Turn: 1})
	sess.SetActiveHandoff("ho-1")

	cp := sess.Clone()
	cp.Append(Message{Role: "assistant", Content: "diverged", Turn: 2})

	assert.Len(t, sess.Messages(), 1)
	assert.Len(t, cp.Messages(), 2)
	assert.Equal(t, "ho-1", cp.ActiveHandoffID)
}
