package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/convoflow/flowmigrate/types"
)

// ScenarioStore is an in-memory scenario and migration-plan store.
// Safe for concurrent use. Values are deep-copied on the way in and out so
// callers can never alias store state.
type ScenarioStore struct {
	mu       sync.RWMutex
	current  map[string]*types.Scenario // tenant/scenario -> latest published
	archived map[string]*types.Scenario // tenant/scenario/version
	plans    map[string]*types.MigrationPlan // tenant/plan
}

// NewScenarioStore creates an empty in-memory scenario store.
func NewScenarioStore() *ScenarioStore {
	return &ScenarioStore{
		current:  make(map[string]*types.Scenario),
		archived: make(map[string]*types.Scenario),
		plans:    make(map[string]*types.MigrationPlan),
	}
}

func scenarioKey(tenantID, scenarioID string) string {
	return tenantID + "/" + scenarioID
}

func versionKey(tenantID, scenarioID string, version int) string {
	return fmt.Sprintf("%s/%s/%d", tenantID, scenarioID, version)
}

func planKey(tenantID, planID string) string {
	return tenantID + "/" + planID
}

// PublishScenario stores a scenario as the current version of its id and
// archives it. Publishing does not validate version monotonicity; that is
// the planner's concern.
func (s *ScenarioStore) PublishScenario(ctx context.Context, scenario *types.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := cloneScenario(scenario)
	s.current[scenarioKey(scenario.TenantID, scenario.ID)] = clone
	s.archived[versionKey(scenario.TenantID, scenario.ID, scenario.Version)] = clone
	return nil
}

// GetScenario returns the current version of a scenario.
func (s *ScenarioStore) GetScenario(ctx context.Context, tenantID, scenarioID string) (*types.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scenario, ok := s.current[scenarioKey(tenantID, scenarioID)]
	if !ok {
		return nil, types.NewErrorf(types.ErrScenarioNotFound, "scenario %s not found for tenant %s", scenarioID, tenantID)
	}
	return cloneScenario(scenario), nil
}

// GetScenarioVersion returns a specific (possibly archived) version.
func (s *ScenarioStore) GetScenarioVersion(ctx context.Context, tenantID, scenarioID string, version int) (*types.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if scenario, ok := s.archived[versionKey(tenantID, scenarioID, version)]; ok {
		return cloneScenario(scenario), nil
	}
	if scenario, ok := s.current[scenarioKey(tenantID, scenarioID)]; ok && scenario.Version == version {
		return cloneScenario(scenario), nil
	}
	return nil, types.NewErrorf(types.ErrScenarioNotFound, "scenario %s version %d not found for tenant %s", scenarioID, version, tenantID)
}

// ArchiveScenarioVersion preserves a version for later reconciliation.
func (s *ScenarioStore) ArchiveScenarioVersion(ctx context.Context, scenario *types.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archived[versionKey(scenario.TenantID, scenario.ID, scenario.Version)] = cloneScenario(scenario)
	return nil
}

// SaveMigrationPlan creates or updates a plan.
func (s *ScenarioStore) SaveMigrationPlan(ctx context.Context, plan *types.MigrationPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[planKey(plan.TenantID, plan.ID)] = clonePlan(plan)
	return nil
}

// GetMigrationPlan returns a plan by id.
func (s *ScenarioStore) GetMigrationPlan(ctx context.Context, tenantID, planID string) (*types.MigrationPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[planKey(tenantID, planID)]
	if !ok {
		return nil, types.NewErrorf(types.ErrPlanNotFound, "plan %s not found for tenant %s", planID, tenantID)
	}
	return clonePlan(plan), nil
}

// ListMigrationPlans returns all plans for a tenant, optionally narrowed
// to one scenario, ordered by creation time.
func (s *ScenarioStore) ListMigrationPlans(ctx context.Context, tenantID, scenarioID string) ([]*types.MigrationPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var plans []*types.MigrationPlan
	for _, plan := range s.plans {
		if plan.TenantID != tenantID {
			continue
		}
		if scenarioID != "" && plan.ScenarioID != scenarioID {
			continue
		}
		plans = append(plans, clonePlan(plan))
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].CreatedAt.Before(plans[j].CreatedAt) })
	return plans, nil
}

// GetMigrationPlanForVersions returns the plan for an exact version pair,
// or (nil, nil) when none exists.
func (s *ScenarioStore) GetMigrationPlanForVersions(ctx context.Context, tenantID, scenarioID string, fromVersion, toVersion int) (*types.MigrationPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, plan := range s.plans {
		if plan.TenantID == tenantID && plan.ScenarioID == scenarioID &&
			plan.FromVersion == fromVersion && plan.ToVersion == toVersion {
			return clonePlan(plan), nil
		}
	}
	return nil, nil
}

// DeleteMigrationPlan removes a plan. Deleting an unknown plan is a no-op.
func (s *ScenarioStore) DeleteMigrationPlan(ctx context.Context, tenantID, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, planKey(tenantID, planID))
	return nil
}

// cloneScenario and clonePlan deep-copy through JSON; neither type carries
// interface-typed fields, so the round trip is lossless.
func cloneScenario(scenario *types.Scenario) *types.Scenario {
	return deepCopy(scenario)
}

func clonePlan(plan *types.MigrationPlan) *types.MigrationPlan {
	return deepCopy(plan)
}

func deepCopy[T any](v *T) *T {
	raw, err := json.Marshal(v)
	if err != nil {
		panic("memstore: marshal: " + err.Error())
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic("memstore: unmarshal: " + err.Error())
	}
	return out
}
