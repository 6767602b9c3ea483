package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/convoflow/flowmigrate/types"
)

// DefaultPlanRetention is how long a plan stays actionable after creation.
const DefaultPlanRetention = 30 * 24 * time.Hour

// Planner turns a transformation map into an approvable migration plan and
// runs the plan's approve/reject/edit-policy state machine.
type Planner struct {
	scenarios ScenarioStore
	sessions  SessionStore
	differ    *Differ
	metrics   Metrics
	logger    *zap.Logger
	retention time.Duration
	now       func() time.Time
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithPlanRetention overrides the plan expiration window.
func WithPlanRetention(d time.Duration) PlannerOption {
	return func(p *Planner) { p.retention = d }
}

// WithPlannerMetrics attaches a metrics sink.
func WithPlannerMetrics(m Metrics) PlannerOption {
	return func(p *Planner) { p.metrics = m }
}

// withClock overrides the time source (tests only).
func withClock(now func() time.Time) PlannerOption {
	return func(p *Planner) { p.now = now }
}

// NewPlanner creates a migration planner. A nil logger is replaced with a
// noop.
func NewPlanner(scenarios ScenarioStore, sessions SessionStore, logger *zap.Logger, opts ...PlannerOption) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Planner{
		scenarios: scenarios,
		sessions:  sessions,
		differ:    NewDiffer(logger),
		metrics:   NopMetrics(),
		logger:    logger.With(zap.String("component", "planner")),
		retention: DefaultPlanRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GeneratePlan diffs the current published version of the scenario against
// the newly authored v2 and persists a PENDING migration plan with default
// per-anchor policies and an operator summary. The current version is
// archived so mid-flight sessions can still be reconciled after v2 is
// published.
//
// Fails with SCENARIO_NOT_FOUND when the scenario id is unknown,
// INVALID_VERSION when v2 does not advance the version, and DUPLICATE_PLAN
// when a non-terminal plan for the same version pair already exists.
func (p *Planner) GeneratePlan(ctx context.Context, tenantID, scenarioID string, v2 *types.Scenario, createdBy string) (*types.MigrationPlan, error) {
	v1, err := p.scenarios.GetScenario(ctx, tenantID, scenarioID)
	if err != nil {
		return nil, err
	}

	if v2.Version <= v1.Version {
		return nil, types.NewErrorf(types.ErrInvalidVersion,
			"new version %d must be greater than current version %d", v2.Version, v1.Version)
	}

	existing, err := p.scenarios.GetMigrationPlanForVersions(ctx, tenantID, scenarioID, v1.Version, v2.Version)
	if err != nil {
		return nil, fmt.Errorf("checking for existing plan: %w", err)
	}
	if existing != nil && !existing.Status.Terminal() {
		return nil, types.NewErrorf(types.ErrDuplicatePlan,
			"plan %s for versions %d->%d is still %s", existing.ID, v1.Version, v2.Version, existing.Status)
	}

	start := p.now()
	tm := p.differ.ComputeTransformationMap(v1, v2)
	p.metrics.RecordDiff(scenarioID, p.now().Sub(start), len(tm.Anchors), len(tm.DeletedNodes))

	policies := make(map[types.ContentHash]types.AnchorMigrationPolicy, len(tm.Anchors))
	for _, a := range tm.Anchors {
		// Default: all sessions in scope, downstream updates on.
		policies[a.ContentHash] = types.AnchorMigrationPolicy{UpdateDownstream: true}
	}

	now := p.now()
	plan := &types.MigrationPlan{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		ScenarioID:     scenarioID,
		FromVersion:    v1.Version,
		ToVersion:      v2.Version,
		FromChecksum:   HashScenario(v1),
		ToChecksum:     HashScenario(v2),
		Transformation: *tm,
		AnchorPolicies: policies,
		Summary:        p.buildSummary(ctx, tenantID, scenarioID, v1.Version, tm),
		Status:         types.PlanPending,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		ExpiresAt:      now.Add(p.retention),
	}

	if err := p.scenarios.ArchiveScenarioVersion(ctx, v1); err != nil {
		return nil, fmt.Errorf("archiving version %d: %w", v1.Version, err)
	}
	if err := p.scenarios.SaveMigrationPlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("saving plan: %w", err)
	}

	p.metrics.RecordPlanTransition(scenarioID, types.PlanPending)
	p.logger.Info("migration plan generated",
		zap.String("plan_id", plan.ID),
		zap.String("scenario_id", scenarioID),
		zap.Int("from_version", plan.FromVersion),
		zap.Int("to_version", plan.ToVersion),
		zap.Int("anchors", len(tm.Anchors)),
		zap.Int("deleted_nodes", len(tm.DeletedNodes)),
		zap.Int("warnings", len(plan.Summary.Warnings)),
	)
	return plan, nil
}

// buildSummary assembles the operator-facing digest: anchor counts by
// migration scenario, a warning for every re-route anchor whose upstream
// inserted nodes include a checkpoint, one field-collection entry per
// field newly required by a gap-fill anchor, and best-effort estimated
// session counts per anchor.
func (p *Planner) buildSummary(ctx context.Context, tenantID, scenarioID string, fromVersion int, tm *types.TransformationMap) types.MigrationSummary {
	summary := types.MigrationSummary{
		AnchorsByScenario: make(map[types.MigrationScenario]int),
		DeletedNodeCount:  len(tm.DeletedNodes),
	}

	for _, a := range tm.Anchors {
		summary.AnchorsByScenario[a.Scenario]++

		if a.Scenario == types.ScenarioReRoute {
			for _, n := range a.Upstream.InsertedNodes {
				if n.IsCheckpoint {
					summary.Warnings = append(summary.Warnings, types.MigrationWarning{
						AnchorHash: a.ContentHash,
						Code:       types.WarningCheckpointUpstreamOfReRoute,
						Message: fmt.Sprintf(
							"anchor %q re-routes past new checkpoint %q; sessions that already completed a checkpoint will not be re-routed",
							a.Name, n.Name),
					})
					break
				}
			}
		}

		if a.Scenario == types.ScenarioGapFill {
			for _, field := range a.Upstream.CollectedFields() {
				summary.FieldCollection = append(summary.FieldCollection, types.FieldCollectionInfo{
					Field:      field,
					AnchorHash: a.ContentHash,
					Reason:     fmt.Sprintf("collected by a step inserted upstream of anchor %q", a.Name),
				})
			}
		}
	}

	// Estimated affected sessions: best effort, the deployer writes the
	// actual counts at deploy time.
	estimates := make(map[types.ContentHash]int, len(tm.Anchors))
	for _, a := range tm.Anchors {
		sessions, err := p.sessions.FindSessionsByStepHash(ctx, tenantID, scenarioID, fromVersion, a.ContentHash, types.ScopeFilter{})
		if err != nil {
			p.logger.Warn("estimating affected sessions failed",
				zap.String("anchor_hash", string(a.ContentHash)), zap.Error(err))
			continue
		}
		estimates[a.ContentHash] = len(sessions)
	}
	if len(estimates) > 0 {
		summary.EstimatedSessionsByAnchor = estimates
	}

	return summary
}

// ApprovePlan moves a PENDING plan to APPROVED, recording the approver and
// timestamp. Fails with PLAN_NOT_FOUND or INVALID_STATE.
func (p *Planner) ApprovePlan(ctx context.Context, tenantID, planID, approvedBy string) (*types.MigrationPlan, error) {
	return p.transition(ctx, tenantID, planID, types.PlanApproved, func(plan *types.MigrationPlan) error {
		if plan.Status != types.PlanPending {
			return types.NewErrorf(types.ErrInvalidState, "cannot approve plan in status %s", plan.Status)
		}
		now := p.now()
		plan.Status = types.PlanApproved
		plan.ApprovedBy = approvedBy
		plan.ApprovedAt = &now
		return nil
	})
}

// RejectPlan moves a PENDING plan to REJECTED. Fails with PLAN_NOT_FOUND
// or INVALID_STATE.
func (p *Planner) RejectPlan(ctx context.Context, tenantID, planID, rejectedBy string) (*types.MigrationPlan, error) {
	return p.transition(ctx, tenantID, planID, types.PlanRejected, func(plan *types.MigrationPlan) error {
		if plan.Status != types.PlanPending {
			return types.NewErrorf(types.ErrInvalidState, "cannot reject plan in status %s", plan.Status)
		}
		plan.Status = types.PlanRejected
		plan.ApprovedBy = rejectedBy
		return nil
	})
}

// SupersedePlan marks a plan SUPERSEDED because a newer plan covers its
// sessions. Allowed from any non-terminal state and from DEPLOYED; sessions
// still marked for a superseded plan reconcile through the fallback path.
func (p *Planner) SupersedePlan(ctx context.Context, tenantID, planID string) (*types.MigrationPlan, error) {
	return p.transition(ctx, tenantID, planID, types.PlanSuperseded, func(plan *types.MigrationPlan) error {
		if plan.Status == types.PlanRejected || plan.Status == types.PlanSuperseded {
			return types.NewErrorf(types.ErrInvalidState, "cannot supersede plan in status %s", plan.Status)
		}
		plan.Status = types.PlanSuperseded
		return nil
	})
}

// UpdatePolicies merges operator-supplied anchor policies into a PENDING
// plan. Every supplied hash must name an anchor in the plan's
// transformation map; unknown hashes fail with INVALID_ANCHOR.
func (p *Planner) UpdatePolicies(ctx context.Context, tenantID, planID string, policies map[types.ContentHash]types.AnchorMigrationPolicy) (*types.MigrationPlan, error) {
	plan, err := p.scenarios.GetMigrationPlan(ctx, tenantID, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != types.PlanPending {
		return nil, types.NewErrorf(types.ErrInvalidState, "cannot edit policies of plan in status %s", plan.Status)
	}

	for hash := range policies {
		if _, ok := plan.Transformation.AnchorByHash(hash); !ok {
			return nil, types.NewErrorf(types.ErrInvalidAnchor, "no anchor with content hash %s in plan %s", hash, planID)
		}
	}

	if plan.AnchorPolicies == nil {
		plan.AnchorPolicies = make(map[types.ContentHash]types.AnchorMigrationPolicy, len(policies))
	}
	for hash, policy := range policies {
		plan.AnchorPolicies[hash] = policy
	}

	if err := p.scenarios.SaveMigrationPlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("saving plan: %w", err)
	}
	p.logger.Info("anchor policies updated",
		zap.String("plan_id", planID), zap.Int("policies", len(policies)))
	return plan, nil
}

func (p *Planner) transition(ctx context.Context, tenantID, planID string, target types.PlanStatus, apply func(*types.MigrationPlan) error) (*types.MigrationPlan, error) {
	plan, err := p.scenarios.GetMigrationPlan(ctx, tenantID, planID)
	if err != nil {
		return nil, err
	}
	from := plan.Status
	if err := apply(plan); err != nil {
		return nil, err
	}
	if err := p.scenarios.SaveMigrationPlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("saving plan: %w", err)
	}
	p.metrics.RecordPlanTransition(plan.ScenarioID, target)
	p.logger.Info("plan status changed",
		zap.String("plan_id", planID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	)
	return plan, nil
}
