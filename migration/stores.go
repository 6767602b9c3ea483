package migration

import (
	"context"

	"github.com/convoflow/flowmigrate/types"
)

// ScenarioStore loads scenario graphs and persists migration plans.
// Implementations must provide standard CRUD consistency; the migration
// core performs no distributed locking on top of them.
type ScenarioStore interface {
	// GetScenario returns the current (latest published) version of a
	// scenario. Returns a SCENARIO_NOT_FOUND error when the id is unknown.
	GetScenario(ctx context.Context, tenantID, scenarioID string) (*types.Scenario, error)

	// GetScenarioVersion returns a specific (possibly archived) version.
	GetScenarioVersion(ctx context.Context, tenantID, scenarioID string, version int) (*types.Scenario, error)

	// ArchiveScenarioVersion preserves a version so sessions mid-flight in
	// it can still be diffed and reconciled after newer publishes.
	ArchiveScenarioVersion(ctx context.Context, scenario *types.Scenario) error

	// SaveMigrationPlan creates or updates a plan.
	SaveMigrationPlan(ctx context.Context, plan *types.MigrationPlan) error

	// GetMigrationPlan returns a plan by id. Returns a PLAN_NOT_FOUND
	// error when the id is unknown.
	GetMigrationPlan(ctx context.Context, tenantID, planID string) (*types.MigrationPlan, error)

	// ListMigrationPlans returns all plans for a tenant, optionally
	// narrowed to one scenario (empty scenarioID = all).
	ListMigrationPlans(ctx context.Context, tenantID, scenarioID string) ([]*types.MigrationPlan, error)

	// GetMigrationPlanForVersions returns the plan for an exact version
	// pair, or (nil, nil) when none exists.
	GetMigrationPlanForVersions(ctx context.Context, tenantID, scenarioID string, fromVersion, toVersion int) (*types.MigrationPlan, error)

	// DeleteMigrationPlan removes a plan.
	DeleteMigrationPlan(ctx context.Context, tenantID, planID string) error
}

// SessionStore loads and saves live session state.
type SessionStore interface {
	// GetSession returns a session by id. Returns a SESSION_NOT_FOUND
	// error when the id is unknown.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// SaveSession persists the session.
	SaveSession(ctx context.Context, session *types.Session) error

	// FindSessionsByStepHash returns the sessions currently sitting at a
	// step with the given content hash in the given scenario version,
	// subject to the scope filter.
	FindSessionsByStepHash(ctx context.Context, tenantID, scenarioID string, version int, hash types.ContentHash, filter types.ScopeFilter) ([]*types.Session, error)
}

// FieldResolver is the best-effort lookup of a named value from profile,
// session, or extraction state. The migration core never calls it; the
// surrounding turn pipeline uses it to satisfy collect results before the
// next reconciliation attempt.
type FieldResolver interface {
	// Resolve returns the value for the field and whether it was found.
	Resolve(ctx context.Context, fieldName string, session *types.Session) (any, bool, error)
}
