package handoff

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrelay/flowrelay/core"
	"github.com/flowrelay/flowrelay/internal/testutil"
	"github.com/flowrelay/flowrelay/registry"
)

func newTestRegistry(entries ...core.CatalogEntry) *registry.Registry {
	return registry.New(testutil.NewStaticCatalog(entries...))
}

func signal(intentType string, confidence float64, raw string) core.IntentSignal {
	return core.IntentSignal{IntentType: intentType, Confidence: confidence, RawText: raw}
}

func TestCoordinator_ShouldHandoff_Threshold(t *testing.T) {
	reg := newTestRegistry(testutil.Entry("w1", "Data Insights Collector"))
	c := New(reg, testutil.NewScriptedInvoker())

	_, ok := c.ShouldHandoff(context.Background(), signal("data_analysis", 0.5, "analyze this"), 0)
	assert.False(t, ok, "below the default threshold")

	target, ok := c.ShouldHandoff(context.Background(), signal("data_analysis", 0.9, "analyze this"), 0)
	require.True(t, ok)
	assert.Equal(t, core.TypeDataAnalysis, target)

	// Caller supplied threshold wins.
	_, ok = c.ShouldHandoff(context.Background(), signal("data_analysis", 0.5, "analyze this"), 0.4)
	assert.True(t, ok)
}

func TestCoordinator_ShouldHandoff_LiteralNameOverridesIntentMap(t *testing.T) {
	reg := newTestRegistry(
		testutil.Entry("w1", "Data Insights Collector"),
		testutil.Entry("w2", "Expense Approval Flow"),
	)
	c := New(reg, testutil.NewScriptedInvoker())

	// Intent says data_analysis, but the text literally names the
	// approval workflow.
	target, ok := c.ShouldHandoff(context.Background(),
		signal("data_analysis", 0.95, "please run the expense approval flow for me"), 0)

	require.True(t, ok)
	assert.Equal(t, core.TypeApproval, target)
}

func TestCoordinator_ShouldHandoff_DeclinesEmptyTarget(t *testing.T) {
	// Only a data-analysis workflow exists; task_management resolves to a
	// type with zero handles and must decline.
	reg := newTestRegistry(testutil.Entry("w1", "Data Insights Collector"))
	c := New(reg, testutil.NewScriptedInvoker())

	_, ok := c.ShouldHandoff(context.Background(), signal("task_management", 0.95, "organize my week"), 0)
	assert.False(t, ok)

	_, ok = c.ShouldHandoff(context.Background(), signal("unmapped_intent", 0.95, "whatever"), 0)
	assert.False(t, ok)
}

func TestCoordinator_Initiate_AutoTrigger(t *testing.T) {
	reg := newTestRegistry(testutil.Entry("w1", "Data Insights Collector"))
	inv := testutil.NewScriptedInvoker().
		Succeed(core.TypeDataAnalysis, map[string]any{"response": "Revenue is trending up."})
	c := New(reg, inv)

	outcome, err := c.Initiate(context.Background(), "sess-1", "analyze revenue",
		signal("data_analysis", 0.9, "analyze revenue"), core.TypeDataAnalysis, map[string]any{"origin_turn": 3})
	require.NoError(t, err)

	assert.True(t, outcome.AutoTriggered)
	assert.Equal(t, core.HandoffCompleted, outcome.Status)
	assert.Equal(t, "Revenue is trending up.", outcome.Message, "workflow reply overrides the transfer announcement")
	assert.Equal(t, fmt.Sprintf("sess-1_data-analysis_%s", outcome.HandoffID), outcome.DelegatedSessionID)

	// Record relocated to history.
	rec, ok := c.Status(outcome.HandoffID)
	require.True(t, ok)
	assert.Equal(t, core.HandoffCompleted, rec.Status)
	assert.NotNil(t, rec.CompletedAt)
	assert.Empty(t, c.ListActive())

	// The workflow saw the delegated session id and the auto trigger tag.
	calls := inv.CallsFor(core.TypeDataAnalysis)
	require.Len(t, calls, 1)
	assert.Equal(t, "auto_handoff", calls[0].Payload["trigger"])
	assert.Equal(t, outcome.HandoffID, calls[0].Payload["handoff_id"])
	assert.Equal(t, outcome.DelegatedSessionID, calls[0].SessionCtx["session_id"])
}

func TestCoordinator_Initiate_AutoTriggerFailure(t *testing.T) {
	reg := newTestRegistry(testutil.Entry("w1", "HomeAutomation Hub"))
	inv := testutil.NewScriptedInvoker().
		Fail(core.TypeHomeAutomation, "hub unreachable")
	c := New(reg, inv)

	outcome, err := c.Initiate(context.Background(), "sess-1", "turn on the lights",
		signal("home_automation", 0.9, "turn on the lights"), core.TypeHomeAutomation, nil)
	require.NoError(t, err)

	assert.Equal(t, core.HandoffFailed, outcome.Status)
	assert.Equal(t, "hub unreachable", outcome.Result["error"])

	rec, ok := c.Status(outcome.HandoffID)
	require.True(t, ok)
	assert.Equal(t, core.HandoffFailed, rec.Status)
}

func TestCoordinator_Initiate_NoHandles(t *testing.T) {
	c := New(newTestRegistry(), testutil.NewScriptedInvoker())

	_, err := c.Initiate(context.Background(), "sess-1", "approve this",
		signal("approval_request", 0.9, "approve this"), core.TypeApproval, nil)

	assert.ErrorIs(t, err, ErrNoHandles)
}

func TestCoordinator_Initiate_NonAutoTriggerStaysActive(t *testing.T) {
	reg := newTestRegistry(testutil.Entry("w1", "Expense Approval Flow"))
	c := New(reg, testutil.NewScriptedInvoker())

	outcome, err := c.Initiate(context.Background(), "sess-1", "approve the Q3 budget",
		signal("approval_request", 0.9, "approve the Q3 budget"), core.TypeApproval, nil)
	require.NoError(t, err)

	assert.False(t, outcome.AutoTriggered)
	assert.Equal(t, core.HandoffInProgress, outcome.Status)
	assert.Contains(t, outcome.Message, "Transferring you to the approval capability")
	assert.Contains(t, outcome.Message, "Expense Approval Flow")

	require.Len(t, c.ListActive(), 1)
}

func TestCoordinator_Execute(t *testing.T) {
	reg := newTestRegistry(testutil.Entry("w1", "Expense Approval Flow"))
	inv := testutil.NewScriptedInvoker().
		Succeed(core.TypeApproval, map[string]any{"approved": true})
	c := New(reg, inv)

	initiated, err := c.Initiate(context.Background(), "sess-1", "approve the Q3 budget",
		signal("approval_request", 0.9, "approve the Q3 budget"), core.TypeApproval, nil)
	require.NoError(t, err)

	outcome, err := c.Execute(context.Background(), initiated.HandoffID, map[string]any{"amount": 1200})
	require.NoError(t, err)

	assert.Equal(t, core.HandoffCompleted, outcome.Status)
	assert.Equal(t, true, outcome.Result["approved"])

	calls := inv.CallsFor(core.TypeApproval)
	require.Len(t, calls, 1)
	assert.Equal(t, "approve the Q3 budget", calls[0].Payload["message"])
	assert.Equal(t, "approval_request", calls[0].Payload["intent"])
	assert.Equal(t, 1200, calls[0].Payload["amount"])

	// Terminal record cannot be executed again.
	_, err = c.Execute(context.Background(), initiated.HandoffID, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCoordinator_Complete(t *testing.T) {
	reg := newTestRegistry(testutil.Entry("w1", "Expense Approval Flow"))
	c := New(reg, testutil.NewScriptedInvoker())

	initiated, err := c.Initiate(context.Background(), "sess-1", "approve this",
		signal("approval_request", 0.9, "approve this"), core.TypeApproval, nil)
	require.NoError(t, err)

	outcome, err := c.Complete(initiated.HandoffID, map[string]any{"resolution": "approved"})
	require.NoError(t, err)

	assert.Equal(t, core.HandoffCompleted, outcome.Status)
	assert.Equal(t, "approved", outcome.Result["resolution"])
	assert.Equal(t, "Handoff completed. Returning control to the coordinating assistant.", outcome.Message)
	assert.Empty(t, c.ListActive())

	_, err = c.Complete(initiated.HandoffID, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCoordinator_Cancel(t *testing.T) {
	reg := newTestRegistry(testutil.Entry("w1", "Expense Approval Flow"))
	c := New(reg, testutil.NewScriptedInvoker())

	initiated, err := c.Initiate(context.Background(), "sess-1", "approve this",
		signal("approval_request", 0.9, "approve this"), core.TypeApproval, nil)
	require.NoError(t, err)

	require.NoError(t, c.Cancel(initiated.HandoffID))

	rec, ok := c.Status(initiated.HandoffID)
	require.True(t, ok)
	assert.Equal(t, core.HandoffCancelled, rec.Status)
	assert.Empty(t, c.ListActive())
	require.Len(t, c.History(), 1)

	assert.ErrorIs(t, c.Cancel(initiated.HandoffID), ErrNotFound)
	assert.ErrorIs(t, c.Cancel("missing"), ErrNotFound)
}

func TestCoordinator_Status_CopiesAreIndependent(t *testing.T) {
	reg := newTestRegistry(testutil.Entry("w1", "Expense Approval Flow"))
	c := New(reg, testutil.NewScriptedInvoker())

	initiated, err := c.Initiate(context.Background(), "sess-1", "approve this",
		signal("approval_request", 0.9, "approve this"), core.TypeApproval, map[string]any{"k": "v"})
	require.NoError(t, err)

	rec, ok := c.Status(initiated.HandoffID)
	require.True(t, ok)
	rec.Context["k"] = "mutated"

	again, _ := c.Status(initiated.HandoffID)
	assert.Equal(t, "v", again.Context["k"])
}
