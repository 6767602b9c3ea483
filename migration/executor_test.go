package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/flowmigrate/types"
)

func markPending(s *types.Session, plan *types.MigrationPlan, anchorHash types.ContentHash) {
	s.PendingMigration = &types.PendingMigration{
		TargetVersion:     plan.ToVersion,
		AnchorContentHash: anchorHash,
		MigrationPlanID:   plan.ID,
	}
}

func TestReconcileSameVersionContinues(t *testing.T) {
	env := newTestEnv(t)
	v1 := linearV1()
	session := sessionAt("s1", v1, "confirm")

	result := env.executor.Reconcile(context.Background(), session, v1)
	assert.Equal(t, types.ActionContinue, result.Action)
	assert.Empty(t, result.TargetStepID)
}

func TestReconcileCleanGraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	v1 := linearV1()
	v2 := gapFillV2()
	plan := env.publishAndPlan(t, v1, v2)

	// The greet anchor has no upstream at all: clean graft.
	session := sessionAt("s1", v1, "greet")
	markPending(session, plan, anchorByV1ID(t, plan, "greet").ContentHash)
	require.NoError(t, env.sessions.SaveSession(ctx, session))

	result := env.executor.Reconcile(ctx, session, v2)

	assert.Equal(t, types.ActionTeleport, result.Action)
	assert.Equal(t, "greet", result.TargetStepID)
	assert.Equal(t, types.ReasonCleanGraft, result.TeleportReason)

	assert.Equal(t, 2, session.ActiveScenarioVersion)
	assert.Nil(t, session.PendingMigration)

	// The move was persisted.
	stored, err := env.sessions.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ActiveScenarioVersion)
	assert.Equal(t, HashStep(mustStep(t, v2, "greet")), stored.ActiveStepHash)
}

func TestReconcileGapFill(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	v1 := linearV1()
	v2 := gapFillV2()
	plan := env.publishAndPlan(t, v1, v2)

	session := sessionAt("s1", v1, "confirm")
	markPending(session, plan, anchorByV1ID(t, plan, "confirm").ContentHash)
	require.NoError(t, env.sessions.SaveSession(ctx, session))

	t.Run("missing field collects without mutating", func(t *testing.T) {
		result := env.executor.Reconcile(ctx, session, v2)

		assert.Equal(t, types.ActionCollect, result.Action)
		assert.Equal(t, []string{"phone"}, result.CollectFields)
		assert.Equal(t, "Before we continue, I need: phone.", result.UserMessage)

		// Session untouched: still on v1, marker intact, retried next turn.
		assert.Equal(t, 1, session.ActiveScenarioVersion)
		assert.NotNil(t, session.PendingMigration)
	})

	t.Run("field present teleports past the inserted step", func(t *testing.T) {
		session.Variables["phone"] = "+31612345678"
		result := env.executor.Reconcile(ctx, session, v2)

		assert.Equal(t, types.ActionTeleport, result.Action)
		assert.Equal(t, "confirm", result.TargetStepID)
		assert.Equal(t, types.ReasonGapFill, result.TeleportReason)
		assert.Equal(t, 2, session.ActiveScenarioVersion)
		assert.Nil(t, session.PendingMigration)
	})
}

func TestReconcileReRouteBranchSelection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	v1 := linearV1()

	// v2 forks upstream of confirm with branches reading distinct fields.
	fork := step("fulfillment_fork", "Fulfillment")
	fork.Transitions = []types.Transition{
		{ToStepID: "delivery_addr", ConditionText: "delivering",
			ConditionFields: []string{"delivery_address"}, Priority: 0},
		{ToStepID: "pickup_info", ConditionText: "picking up",
			ConditionFields: []string{"pickup_store"}, Priority: 1},
	}
	v2 := scenario(2, "greet",
		step("greet", "Greet", "ask_item"),
		step("ask_item", "Ask Item", "fulfillment_fork"),
		fork,
		step("delivery_addr", "Delivery Address", "confirm"),
		step("pickup_info", "Pickup Info", "confirm"),
		step("confirm", "Confirm Order", "done"),
		step("done", "Done"),
	)
	plan := env.publishAndPlan(t, v1, v2)
	confirmHash := anchorByV1ID(t, plan, "confirm").ContentHash
	assert.Equal(t, types.ScenarioReRoute, anchorByV1ID(t, plan, "confirm").Scenario)

	t.Run("matching branch wins", func(t *testing.T) {
		session := sessionAt("s-pickup", v1, "confirm")
		session.Variables["pickup_store"] = "amsterdam-01"
		markPending(session, plan, confirmHash)
		require.NoError(t, env.sessions.SaveSession(ctx, session))

		result := env.executor.Reconcile(ctx, session, v2)
		assert.Equal(t, types.ActionTeleport, result.Action)
		assert.Equal(t, "pickup_info", result.TargetStepID)
		assert.Equal(t, types.ReasonReRoute, result.TeleportReason)
	})

	t.Run("no decidable branch defaults to the anchor", func(t *testing.T) {
		session := sessionAt("s-undecided", v1, "confirm")
		markPending(session, plan, confirmHash)
		require.NoError(t, env.sessions.SaveSession(ctx, session))

		result := env.executor.Reconcile(ctx, session, v2)
		assert.Equal(t, types.ActionTeleport, result.Action)
		assert.Equal(t, "confirm", result.TargetStepID)
	})
}

func TestReconcileReRouteBlockedByCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// pay is an irreversible checkpoint present in both versions.
	v1 := scenario(1, "greet",
		step("greet", "Greet", "ask_item"),
		step("ask_item", "Ask Item", "pay"),
		checkpointStep("pay", "Take Payment", "payment captured", "done"),
		step("done", "Done"),
	)
	fork := step("route", "Route")
	fork.Transitions = []types.Transition{
		{ToStepID: "pay", ConditionText: "card", ConditionFields: []string{"card"}, Priority: 0},
		{ToStepID: "invoice", ConditionText: "invoice", ConditionFields: []string{"invoice"}, Priority: 1},
	}
	v2 := scenario(2, "greet",
		step("greet", "Greet", "ask_item"),
		step("ask_item", "Ask Item", "route"),
		fork,
		checkpointStep("pay", "Take Payment", "payment captured", "done"),
		step("invoice", "Send Invoice", "done"),
		step("done", "Done"),
	)
	plan := env.publishAndPlan(t, v1, v2)

	payHash := anchorByV1ID(t, plan, "pay").ContentHash
	require.Equal(t, types.ScenarioReRoute, anchorByV1ID(t, plan, "pay").Scenario)

	// The session already completed the payment checkpoint.
	session := sessionAt("s1", v1, "pay")
	markPending(session, plan, payHash)
	require.NoError(t, env.sessions.SaveSession(ctx, session))

	result := env.executor.Reconcile(ctx, session, v2)

	assert.Equal(t, types.ActionContinue, result.Action)
	assert.True(t, result.BlockedByCheckpoint)

	// Blocked means blocked: not a single session field changed.
	assert.Equal(t, 1, session.ActiveScenarioVersion)
	assert.Equal(t, "pay", session.ActiveStepID)
	assert.NotNil(t, session.PendingMigration)
}

func TestReconcileFallbackHashMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	v1 := linearV1()
	v2 := gapFillV2()

	// Version drifted with no pending marker (plan superseded or session
	// missed the deploy window).
	session := sessionAt("s1", v1, "confirm")
	require.NoError(t, env.sessions.SaveSession(ctx, session))

	result := env.executor.Reconcile(ctx, session, v2)

	assert.Equal(t, types.ActionTeleport, result.Action)
	assert.Equal(t, "confirm", result.TargetStepID)
	assert.Equal(t, types.ReasonFallbackHashMatch, result.TeleportReason)
	assert.Equal(t, 2, session.ActiveScenarioVersion)
}

func TestReconcileFallbackPrefersNewestHistoryEntry(t *testing.T) {
	env := newTestEnv(t)
	v1 := linearV1()
	v2 := gapFillV2()

	session := sessionAt("s1", v1, "confirm")
	greet := mustStep(t, v1, "greet")
	session.StepHistory = append([]types.StepVisit{
		{StepID: "greet", TurnNumber: 0, StepContentHash: HashStep(greet)},
	}, session.StepHistory...)

	result := env.executor.Reconcile(context.Background(), session, v2)
	assert.Equal(t, "confirm", result.TargetStepID,
		"the most recent surviving step wins, not the oldest")
}

func TestReconcileFallbackToEntryStep(t *testing.T) {
	env := newTestEnv(t)

	v1 := linearV1()
	// v2 shares nothing with v1: every history hash misses.
	v2 := scenario(2, "intro",
		step("intro", "Intro", "wrap"),
		step("wrap", "Wrap Up"),
	)

	session := sessionAt("s1", v1, "confirm")
	result := env.executor.Reconcile(context.Background(), session, v2)

	assert.Equal(t, types.ActionTeleport, result.Action)
	assert.Equal(t, "intro", result.TargetStepID)
	assert.Equal(t, types.ReasonFallbackEntry, result.TeleportReason)
}

func TestReconcileMissingPlanDegradesToFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	v1 := linearV1()
	v2 := gapFillV2()
	require.NoError(t, env.scenarios.PublishScenario(ctx, v1))
	require.NoError(t, env.scenarios.PublishScenario(ctx, v2))

	session := sessionAt("s1", v1, "confirm")
	session.PendingMigration = &types.PendingMigration{
		TargetVersion:     2,
		AnchorContentHash: "deadbeefdeadbeef",
		MigrationPlanID:   "vanished",
	}

	result := env.executor.Reconcile(ctx, session, v2)

	// Never an error on the turn path: degrade to the hash-match fallback.
	assert.Equal(t, types.ActionTeleport, result.Action)
	assert.Equal(t, "confirm", result.TargetStepID)
	assert.Equal(t, types.ReasonFallbackHashMatch, result.TeleportReason)
}

func TestReconcileMissingAnchorDegradesToFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	v1 := linearV1()
	v2 := gapFillV2()
	plan := env.publishAndPlan(t, v1, v2)

	session := sessionAt("s1", v1, "confirm")
	markPending(session, plan, "0000000000000000")

	result := env.executor.Reconcile(ctx, session, v2)
	assert.Equal(t, types.ActionTeleport, result.Action)
	assert.Equal(t, types.ReasonFallbackHashMatch, result.TeleportReason)
}

func TestIsUpstreamOfCheckpoint(t *testing.T) {
	v1 := linearV1()

	tests := []struct {
		name       string
		candidate  string
		checkpoint string
		want       bool
	}{
		{"direct predecessor", "confirm", "done", true},
		{"distant predecessor", "greet", "done", true},
		{"same node", "confirm", "confirm", true},
		{"downstream of checkpoint", "done", "confirm", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUpstreamOfCheckpoint(v1, tt.candidate, tt.checkpoint))
		})
	}
}

func TestBranchSatisfied(t *testing.T) {
	session := &types.Session{Variables: map[string]any{"a": 1, "b": "x", "nil": nil}}

	assert.False(t, branchSatisfied(session, types.ForkBranch{}),
		"a branch without declared condition fields is never auto-selected")
	assert.True(t, branchSatisfied(session, types.ForkBranch{ConditionFields: []string{"a", "b"}}))
	assert.False(t, branchSatisfied(session, types.ForkBranch{ConditionFields: []string{"a", "c"}}))
	assert.False(t, branchSatisfied(session, types.ForkBranch{ConditionFields: []string{"nil"}}))
}
