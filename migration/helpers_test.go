package migration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/convoflow/flowmigrate/store/memstore"
	"github.com/convoflow/flowmigrate/types"
)

const (
	testTenant   = "acme"
	testScenario = "order-flow"
)

// step builds a plain step with a single transition per target.
func step(id, name string, targets ...string) types.ScenarioStep {
	s := types.ScenarioStep{ID: id, Name: name, Description: "step " + name}
	for i, target := range targets {
		s.Transitions = append(s.Transitions, types.Transition{ToStepID: target, Priority: i})
	}
	return s
}

// collectingStep builds a step that gathers the given fields.
func collectingStep(id, name string, fields []string, targets ...string) types.ScenarioStep {
	s := step(id, name, targets...)
	s.CollectsFields = fields
	return s
}

// checkpointStep builds an irreversible-action step.
func checkpointStep(id, name, description string, targets ...string) types.ScenarioStep {
	s := step(id, name, targets...)
	s.IsCheckpoint = true
	s.CheckpointDescription = description
	return s
}

func scenario(version int, entry string, steps ...types.ScenarioStep) *types.Scenario {
	return &types.Scenario{
		ID:          testScenario,
		TenantID:    testTenant,
		Name:        "Order flow",
		Version:     version,
		EntryStepID: entry,
		Steps:       steps,
	}
}

// linearV1 is the baseline graph: greet -> ask_item -> confirm -> done.
func linearV1() *types.Scenario {
	return scenario(1, "greet",
		step("greet", "Greet", "ask_item"),
		step("ask_item", "Ask Item", "confirm"),
		step("confirm", "Confirm Order", "done"),
		step("done", "Done"),
	)
}

// gapFillV2 inserts a phone-collecting step upstream of the unchanged
// confirm anchor: greet -> ask_item -> collect_phone -> confirm -> done.
func gapFillV2() *types.Scenario {
	return scenario(2, "greet",
		step("greet", "Greet", "ask_item"),
		step("ask_item", "Ask Item", "collect_phone"),
		collectingStep("collect_phone", "Collect Phone", []string{"phone"}, "confirm"),
		step("confirm", "Confirm Order", "done"),
		step("done", "Done"),
	)
}

// sessionAt builds a session parked at the given step of a scenario.
func sessionAt(id string, sc *types.Scenario, stepID string) *types.Session {
	s, ok := sc.StepByID(stepID)
	if !ok {
		panic("unknown step " + stepID)
	}
	now := time.Now()
	return &types.Session{
		ID:                    id,
		TenantID:              sc.TenantID,
		Channel:               "web",
		ActiveScenarioID:      sc.ID,
		ActiveScenarioVersion: sc.Version,
		ActiveStepID:          stepID,
		ActiveStepHash:        HashStep(s),
		Variables:             map[string]any{},
		StepHistory: []types.StepVisit{
			{StepID: stepID, TurnNumber: 1, IsCheckpoint: s.IsCheckpoint,
				CheckpointDescription: s.CheckpointDescription, StepContentHash: HashStep(s)},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// testEnv bundles the stores and components most tests need.
type testEnv struct {
	scenarios *memstore.ScenarioStore
	sessions  *memstore.SessionStore
	planner   *Planner
	deployer  *Deployer
	executor  *Executor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	scenarios := memstore.NewScenarioStore()
	sessions := memstore.NewSessionStore()
	return &testEnv{
		scenarios: scenarios,
		sessions:  sessions,
		planner:   NewPlanner(scenarios, sessions, logger),
		deployer:  NewDeployer(scenarios, sessions, logger),
		executor:  NewExecutor(scenarios, sessions, logger),
	}
}

// publishAndPlan publishes v1, generates an approved plan to v2, and
// returns it.
func (env *testEnv) publishAndPlan(t *testing.T, v1, v2 *types.Scenario) *types.MigrationPlan {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.scenarios.PublishScenario(ctx, v1))

	plan, err := env.planner.GeneratePlan(ctx, testTenant, testScenario, v2, "tester")
	require.NoError(t, err)

	plan, err = env.planner.ApprovePlan(ctx, testTenant, plan.ID, "approver")
	require.NoError(t, err)

	require.NoError(t, env.scenarios.PublishScenario(ctx, v2))
	return plan
}
