package migration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/flowmigrate/types"
)

func TestDeployMarksSessionsAtAnchor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	v1 := linearV1()

	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, env.sessions.SaveSession(ctx, sessionAt(id, v1, "confirm")))
	}
	// A session elsewhere in the graph is marked at its own anchor, not
	// confirm's.
	require.NoError(t, env.sessions.SaveSession(ctx, sessionAt("s3", v1, "greet")))

	plan := env.publishAndPlan(t, v1, gapFillV2())

	status, err := env.deployer.Deploy(ctx, testTenant, plan.ID)
	require.NoError(t, err)

	assert.Equal(t, types.PlanDeployed, status.Status)
	assert.Equal(t, 3, status.SessionsMarked)
	assert.Equal(t, 0, status.SessionsSkipped)
	require.NotNil(t, status.DeployedAt)

	confirmHash := anchorByV1ID(t, plan, "confirm").ContentHash
	assert.Equal(t, 2, status.SessionsByAnchor[confirmHash])

	s1, err := env.sessions.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, s1.PendingMigration)
	assert.Equal(t, 2, s1.PendingMigration.TargetVersion)
	assert.Equal(t, confirmHash, s1.PendingMigration.AnchorContentHash)
	assert.Equal(t, plan.ID, s1.PendingMigration.MigrationPlanID)

	// The session itself is otherwise untouched: still on v1 at its step.
	assert.Equal(t, 1, s1.ActiveScenarioVersion)
	assert.Equal(t, "confirm", s1.ActiveStepID)
}

func TestDeployIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	v1 := linearV1()
	require.NoError(t, env.sessions.SaveSession(ctx, sessionAt("s1", v1, "confirm")))

	plan := env.publishAndPlan(t, v1, gapFillV2())

	first, err := env.deployer.Deploy(ctx, testTenant, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SessionsMarked)

	// Re-deploying after a crash must not double-mark. The plan is
	// DEPLOYED now, so re-approve it to simulate a retried rollout.
	stored, err := env.scenarios.GetMigrationPlan(ctx, testTenant, plan.ID)
	require.NoError(t, err)
	stored.Status = types.PlanApproved
	require.NoError(t, env.scenarios.SaveMigrationPlan(ctx, stored))

	second, err := env.deployer.Deploy(ctx, testTenant, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.SessionsMarked)
	assert.Equal(t, 1, second.SessionsSkipped)

	s1, err := env.sessions.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, s1.PendingMigration)
	assert.Equal(t, plan.ID, s1.PendingMigration.MigrationPlanID)
}

func TestDeployRequiresApprovedPlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.scenarios.PublishScenario(ctx, linearV1()))
	plan, err := env.planner.GeneratePlan(ctx, testTenant, testScenario, gapFillV2(), "alice")
	require.NoError(t, err)

	_, err = env.deployer.Deploy(ctx, testTenant, plan.ID)
	assert.True(t, types.IsCode(err, types.ErrInvalidState))

	_, err = env.deployer.Deploy(ctx, testTenant, "missing")
	assert.True(t, types.IsCode(err, types.ErrPlanNotFound))
}

func TestDeployHonorsScopeFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	v1 := linearV1()

	web := sessionAt("web-1", v1, "confirm")
	web.Channel = "web"
	voice := sessionAt("voice-1", v1, "confirm")
	voice.Channel = "voice"
	stale := sessionAt("stale-1", v1, "confirm")
	stale.Channel = "web"
	stale.UpdatedAt = time.Now().Add(-120 * time.Hour)
	for _, s := range []*types.Session{web, voice, stale} {
		require.NoError(t, env.sessions.SaveSession(ctx, s))
	}

	require.NoError(t, env.scenarios.PublishScenario(ctx, v1))
	plan, err := env.planner.GeneratePlan(ctx, testTenant, testScenario, gapFillV2(), "alice")
	require.NoError(t, err)

	confirmHash := anchorByV1ID(t, plan, "confirm").ContentHash
	_, err = env.planner.UpdatePolicies(ctx, testTenant, plan.ID,
		map[types.ContentHash]types.AnchorMigrationPolicy{
			confirmHash: {
				UpdateDownstream: true,
				ScopeFilter: types.ScopeFilter{
					Channels:      []string{"web"},
					MaxSessionAge: 72 * time.Hour,
				},
			},
		})
	require.NoError(t, err)
	_, err = env.planner.ApprovePlan(ctx, testTenant, plan.ID, "bob")
	require.NoError(t, err)

	status, err := env.deployer.Deploy(ctx, testTenant, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.SessionsByAnchor[confirmHash])

	marked, err := env.sessions.GetSession(ctx, "web-1")
	require.NoError(t, err)
	assert.NotNil(t, marked.PendingMigration)

	for _, id := range []string{"voice-1", "stale-1"} {
		s, err := env.sessions.GetSession(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, s.PendingMigration, "session %s is out of scope", id)
	}
}

func TestGetDeploymentStatusFallsBackToEstimates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	v1 := linearV1()
	require.NoError(t, env.sessions.SaveSession(ctx, sessionAt("s1", v1, "confirm")))
	require.NoError(t, env.scenarios.PublishScenario(ctx, v1))

	plan, err := env.planner.GeneratePlan(ctx, testTenant, testScenario, gapFillV2(), "alice")
	require.NoError(t, err)

	status, err := env.deployer.GetDeploymentStatus(ctx, testTenant, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PlanPending, status.Status)
	assert.Nil(t, status.DeployedAt)
	confirmHash := anchorByV1ID(t, plan, "confirm").ContentHash
	assert.Equal(t, 1, status.SessionsByAnchor[confirmHash])
}

func TestCleanupOldPlans(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.scenarios.PublishScenario(ctx, linearV1()))

	plan, err := env.planner.GeneratePlan(ctx, testTenant, testScenario, gapFillV2(), "alice")
	require.NoError(t, err)

	// Pending plans are never cleaned up, however old.
	deleted, err := env.deployer.CleanupOldPlans(ctx, testTenant, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	stored, err := env.scenarios.GetMigrationPlan(ctx, testTenant, plan.ID)
	require.NoError(t, err)
	old := time.Now().Add(-48 * time.Hour)
	stored.Status = types.PlanDeployed
	stored.DeployedAt = &old
	require.NoError(t, env.scenarios.SaveMigrationPlan(ctx, stored))

	deleted, err = env.deployer.CleanupOldPlans(ctx, testTenant, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = env.scenarios.GetMigrationPlan(ctx, testTenant, plan.ID)
	assert.True(t, types.IsCode(err, types.ErrPlanNotFound))
}
