package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoStepScenario() *Scenario {
	return &Scenario{
		ID:          "flow-1",
		TenantID:    "acme",
		Name:        "Order flow",
		Version:     1,
		EntryStepID: "greet",
		Steps: []ScenarioStep{
			{ID: "greet", Name: "Greet", Transitions: []Transition{{ToStepID: "close"}}},
			{ID: "close", Name: "Close"},
		},
	}
}

func TestScenario_Adjacency(t *testing.T) {
	sc := twoStepScenario()

	forward := sc.Adjacency()
	assert.Equal(t, []string{"close"}, forward["greet"])
	assert.Empty(t, forward["close"])

	reverse := sc.ReverseAdjacency()
	assert.Equal(t, []string{"greet"}, reverse["close"])
	assert.Empty(t, reverse["greet"])
}

func TestScenario_StepByID(t *testing.T) {
	sc := twoStepScenario()

	step, ok := sc.StepByID("greet")
	require.True(t, ok)
	assert.Equal(t, "Greet", step.Name)

	_, ok = sc.StepByID("missing")
	assert.False(t, ok)
}

func TestSession_LastCheckpointVisit(t *testing.T) {
	session := &Session{
		StepHistory: []StepVisit{
			{StepID: "a", TurnNumber: 1},
			{StepID: "pay", TurnNumber: 2, IsCheckpoint: true, CheckpointDescription: "payment taken"},
			{StepID: "b", TurnNumber: 3},
		},
	}

	visit, ok := session.LastCheckpointVisit()
	require.True(t, ok)
	assert.Equal(t, "pay", visit.StepID)

	_, ok = (&Session{}).LastCheckpointVisit()
	assert.False(t, ok)
}

func TestScopeFilter_Matches(t *testing.T) {
	now := time.Now()
	session := &Session{Channel: "web", UpdatedAt: now.Add(-48 * time.Hour)}

	tests := []struct {
		name   string
		filter ScopeFilter
		want   bool
	}{
		{"zero filter matches all", ScopeFilter{}, true},
		{"channel allowed", ScopeFilter{Channels: []string{"web", "voice"}}, true},
		{"channel excluded", ScopeFilter{Channels: []string{"voice"}}, false},
		{"age within limit", ScopeFilter{MaxSessionAge: 72 * time.Hour}, true},
		{"age over limit", ScopeFilter{MaxSessionAge: 24 * time.Hour}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(session, now))
		})
	}
}

func TestMigrationScenario_Severity(t *testing.T) {
	assert.True(t, ScenarioReRoute.MoreSevereThan(ScenarioGapFill))
	assert.True(t, ScenarioGapFill.MoreSevereThan(ScenarioCleanGraft))
	assert.False(t, ScenarioCleanGraft.MoreSevereThan(ScenarioReRoute))
}

func TestPlanStatus_Terminal(t *testing.T) {
	assert.False(t, PlanPending.Terminal())
	assert.False(t, PlanApproved.Terminal())
	assert.True(t, PlanRejected.Terminal())
	assert.True(t, PlanDeployed.Terminal())
	assert.True(t, PlanSuperseded.Terminal())
}
