package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/flowmigrate/types"
)

// emailV3 supersedes gapFillV2's phone step with an email-collecting one:
// greet -> ask_item -> collect_email -> confirm -> done. A session
// migrating v1 -> v3 must only be asked for email; the phone requirement
// died with its step.
func emailV3() *types.Scenario {
	return scenario(3, "greet",
		step("greet", "Greet", "ask_item"),
		step("ask_item", "Ask Item", "collect_email"),
		collectingStep("collect_email", "Collect Email", []string{"email"}, "confirm"),
		step("confirm", "Confirm Order", "done"),
		step("done", "Done"),
	)
}

// chainEnv publishes v1..v3 with an approved plan per link and returns
// the plans plus the confirm anchor hash that is stable across the chain.
func chainEnv(t *testing.T) (*testEnv, []*types.MigrationPlan, types.ContentHash) {
	t.Helper()
	env := newTestEnv(t)
	ctx := context.Background()

	plan1 := env.publishAndPlan(t, linearV1(), gapFillV2())

	plan2, err := env.planner.GeneratePlan(ctx, testTenant, testScenario, emailV3(), "alice")
	require.NoError(t, err)
	plan2, err = env.planner.ApprovePlan(ctx, testTenant, plan2.ID, "bob")
	require.NoError(t, err)
	require.NoError(t, env.scenarios.PublishScenario(ctx, emailV3()))

	hash := anchorByV1ID(t, plan1, "confirm").ContentHash
	return env, []*types.MigrationPlan{plan1, plan2}, hash
}

func TestGetPlanChain(t *testing.T) {
	env, plans, _ := chainEnv(t)
	ctx := context.Background()
	mapper := NewCompositeMapper(env.scenarios, nil)

	t.Run("full chain", func(t *testing.T) {
		chain := mapper.GetPlanChain(ctx, testTenant, testScenario, 1, 3)
		require.Len(t, chain, 2)
		assert.Equal(t, plans[0].ID, chain[0].ID)
		assert.Equal(t, plans[1].ID, chain[1].ID)
	})

	t.Run("stops at the first missing link", func(t *testing.T) {
		require.NoError(t, env.scenarios.DeleteMigrationPlan(ctx, testTenant, plans[0].ID))
		chain := mapper.GetPlanChain(ctx, testTenant, testScenario, 1, 3)
		assert.Empty(t, chain)
	})
}

func TestAccumulateAndPruneRequirements(t *testing.T) {
	env, plans, confirmHash := chainEnv(t)
	mapper := NewCompositeMapper(env.scenarios, nil)

	accumulated := mapper.AccumulateRequirements(plans, confirmHash)
	assert.Equal(t, []string{"phone", "email"}, accumulated,
		"chain order, no duplicates")

	// phone's collecting step no longer exists in v3: only email survives.
	pruned := mapper.PruneRequirements(accumulated, emailV3(), confirmHash)
	assert.Equal(t, []string{"email"}, pruned)
}

func TestPruneRequirementsMissingAnchor(t *testing.T) {
	env, plans, confirmHash := chainEnv(t)
	mapper := NewCompositeMapper(env.scenarios, nil)

	noConfirm := scenario(3, "greet", step("greet", "Greet"))
	accumulated := mapper.AccumulateRequirements(plans, confirmHash)
	assert.Equal(t, accumulated, mapper.PruneRequirements(accumulated, noConfirm, confirmHash),
		"an absent anchor leaves the accumulated set untouched")
}

func TestDetermineCompositeScenario(t *testing.T) {
	env, plans, confirmHash := chainEnv(t)
	mapper := NewCompositeMapper(env.scenarios, nil)

	assert.Equal(t, types.ScenarioGapFill, mapper.DetermineCompositeScenario(plans, confirmHash))

	// Force one link to re-route; the worst link wins.
	for i := range plans[1].Transformation.Anchors {
		if plans[1].Transformation.Anchors[i].ContentHash == confirmHash {
			plans[1].Transformation.Anchors[i].Scenario = types.ScenarioReRoute
		}
	}
	assert.Equal(t, types.ScenarioReRoute, mapper.DetermineCompositeScenario(plans, confirmHash))
}

func TestReconcileCompositeSkipsIntermediateVersion(t *testing.T) {
	env, plans, confirmHash := chainEnv(t)
	ctx := context.Background()

	// The session was marked for v1 -> v2 but only shows up once v3 is
	// live.
	session := sessionAt("s1", linearV1(), "confirm")
	markPending(session, plans[0], confirmHash)
	require.NoError(t, env.sessions.SaveSession(ctx, session))

	final := emailV3()

	t.Run("asks only for surviving requirements", func(t *testing.T) {
		result := env.executor.Reconcile(ctx, session, final)
		assert.Equal(t, types.ActionCollect, result.Action)
		assert.Equal(t, []string{"email"}, result.CollectFields,
			"phone died with its intermediate step and is never asked for")
		assert.Equal(t, 1, session.ActiveScenarioVersion)
	})

	t.Run("teleports straight to the final version", func(t *testing.T) {
		session.Variables["email"] = "jo@example.com"
		result := env.executor.Reconcile(ctx, session, final)

		assert.Equal(t, types.ActionTeleport, result.Action)
		assert.Equal(t, "confirm", result.TargetStepID)
		assert.Equal(t, types.ReasonComposite, result.TeleportReason)
		assert.Equal(t, 3, session.ActiveScenarioVersion,
			"the intermediate version is never surfaced")
		assert.Nil(t, session.PendingMigration)
	})
}

func TestReconcileCompositePartialChainMigratesAsFarAsPossible(t *testing.T) {
	env, plans, confirmHash := chainEnv(t)
	ctx := context.Background()

	// Drop the second link: only v1 -> v2 remains while v3 is live.
	require.NoError(t, env.scenarios.DeleteMigrationPlan(ctx, testTenant, plans[1].ID))

	session := sessionAt("s1", linearV1(), "confirm")
	session.Variables["phone"] = "+31612345678"
	markPending(session, plans[0], confirmHash)
	require.NoError(t, env.sessions.SaveSession(ctx, session))

	result := env.executor.Reconcile(ctx, session, emailV3())

	// The chain reaches v2 only; the session lands there and the v2 -> v3
	// gap reconciles through the fallback on a later turn.
	assert.Equal(t, types.ActionTeleport, result.Action)
	assert.Equal(t, types.ReasonComposite, result.TeleportReason)
	assert.Equal(t, 2, session.ActiveScenarioVersion)
}

func TestReconcileCompositeBrokenChainFallsBack(t *testing.T) {
	env, plans, confirmHash := chainEnv(t)
	ctx := context.Background()

	// No chain at all: both links gone.
	require.NoError(t, env.scenarios.DeleteMigrationPlan(ctx, testTenant, plans[0].ID))
	require.NoError(t, env.scenarios.DeleteMigrationPlan(ctx, testTenant, plans[1].ID))

	session := sessionAt("s1", linearV1(), "confirm")
	markPending(session, plans[0], confirmHash)

	result := env.executor.Reconcile(ctx, session, emailV3())

	assert.Equal(t, types.ActionTeleport, result.Action)
	assert.Equal(t, types.ReasonFallbackHashMatch, result.TeleportReason)
	assert.Equal(t, "confirm", result.TargetStepID)
	assert.Equal(t, 3, session.ActiveScenarioVersion)
}
