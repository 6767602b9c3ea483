package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/convoflow/flowmigrate/types"
)

// DefaultDeployConcurrency bounds how many anchors are processed at once.
const DefaultDeployConcurrency = 4

// Deployer walks an approved plan's anchors, finds live sessions sitting at
// each anchor, and idempotently marks them with a pending migration.
type Deployer struct {
	scenarios   ScenarioStore
	sessions    SessionStore
	metrics     Metrics
	logger      *zap.Logger
	concurrency int
	limiter     *rate.Limiter
	now         func() time.Time
}

// DeployerOption configures a Deployer.
type DeployerOption func(*Deployer)

// WithDeployConcurrency bounds the number of anchors processed in parallel.
func WithDeployConcurrency(n int) DeployerOption {
	return func(d *Deployer) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithDeployRate throttles session writes to n saves per second across all
// anchors. Zero disables throttling.
func WithDeployRate(perSecond int) DeployerOption {
	return func(d *Deployer) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		}
	}
}

// WithDeployerMetrics attaches a metrics sink.
func WithDeployerMetrics(m Metrics) DeployerOption {
	return func(d *Deployer) { d.metrics = m }
}

// NewDeployer creates a migration deployer. A nil logger is replaced with
// a noop.
func NewDeployer(scenarios ScenarioStore, sessions SessionStore, logger *zap.Logger, opts ...DeployerOption) *Deployer {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deployer{
		scenarios:   scenarios,
		sessions:    sessions,
		metrics:     NopMetrics(),
		logger:      logger.With(zap.String("component", "deployer")),
		concurrency: DefaultDeployConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DeploymentStatus reports per-anchor marking counts for operator
// dashboards.
type DeploymentStatus struct {
	PlanID           string                    `json:"plan_id"`
	Status           types.PlanStatus          `json:"status"`
	SessionsByAnchor map[types.ContentHash]int `json:"sessions_by_anchor"`
	SessionsMarked   int                       `json:"sessions_marked"`
	SessionsSkipped  int                       `json:"sessions_skipped"`
	DeployedAt       *time.Time                `json:"deployed_at,omitempty"`
}

// Deploy marks every eligible session sitting at one of the plan's anchors
// with a pending migration and moves the plan to DEPLOYED, writing the
// actual per-anchor counts back into the plan summary.
//
// Sessions that already carry a pending migration are skipped, which makes
// re-deploy after a crash and overlapping deployments idempotent: a
// session's pending flag is only ever set here and cleared by that
// session's own reconciliation.
//
// Fails with PLAN_NOT_FOUND, or INVALID_STATE when the plan is not
// APPROVED.
func (d *Deployer) Deploy(ctx context.Context, tenantID, planID string) (*DeploymentStatus, error) {
	plan, err := d.scenarios.GetMigrationPlan(ctx, tenantID, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != types.PlanApproved {
		return nil, types.NewErrorf(types.ErrInvalidState, "cannot deploy plan in status %s", plan.Status)
	}

	var (
		mu      sync.Mutex
		counts  = make(map[types.ContentHash]int, len(plan.Transformation.Anchors))
		marked  int
		skipped int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i := range plan.Transformation.Anchors {
		anchor := plan.Transformation.Anchors[i]
		g.Go(func() error {
			anchorMarked, anchorSkipped, err := d.deployAnchor(gctx, plan, &anchor)
			if err != nil {
				return fmt.Errorf("anchor %s: %w", anchor.ContentHash, err)
			}
			mu.Lock()
			counts[anchor.ContentHash] = anchorMarked
			marked += anchorMarked
			skipped += anchorSkipped
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := d.now()
	plan.Status = types.PlanDeployed
	plan.DeployedAt = &now
	plan.Summary.ActualSessionsByAnchor = counts
	if err := d.scenarios.SaveMigrationPlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("saving deployed plan: %w", err)
	}

	d.metrics.RecordPlanTransition(plan.ScenarioID, types.PlanDeployed)
	d.metrics.RecordDeployment(plan.ScenarioID, marked, skipped)
	d.logger.Info("plan deployed",
		zap.String("plan_id", planID),
		zap.Int("sessions_marked", marked),
		zap.Int("sessions_skipped", skipped),
	)

	return &DeploymentStatus{
		PlanID:           planID,
		Status:           plan.Status,
		SessionsByAnchor: counts,
		SessionsMarked:   marked,
		SessionsSkipped:  skipped,
		DeployedAt:       plan.DeployedAt,
	}, nil
}

// deployAnchor marks the sessions at one anchor, honoring the anchor's
// scope filter.
func (d *Deployer) deployAnchor(ctx context.Context, plan *types.MigrationPlan, anchor *types.AnchorTransformation) (marked, skipped int, err error) {
	policy := plan.AnchorPolicies[anchor.ContentHash]

	sessions, err := d.sessions.FindSessionsByStepHash(
		ctx, plan.TenantID, plan.ScenarioID, plan.FromVersion, anchor.ContentHash, policy.ScopeFilter)
	if err != nil {
		return 0, 0, fmt.Errorf("finding sessions: %w", err)
	}

	for _, session := range sessions {
		if session.PendingMigration != nil {
			skipped++
			continue
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return marked, skipped, err
			}
		}
		session.PendingMigration = &types.PendingMigration{
			TargetVersion:     plan.ToVersion,
			AnchorContentHash: anchor.ContentHash,
			MigrationPlanID:   plan.ID,
		}
		if err := d.sessions.SaveSession(ctx, session); err != nil {
			return marked, skipped, fmt.Errorf("marking session %s: %w", session.ID, err)
		}
		marked++
	}

	d.logger.Debug("anchor deployed",
		zap.String("plan_id", plan.ID),
		zap.String("anchor_hash", string(anchor.ContentHash)),
		zap.Int("marked", marked),
		zap.Int("skipped", skipped),
	)
	return marked, skipped, nil
}

// GetDeploymentStatus returns the per-anchor counts recorded at deploy
// time. For plans not yet deployed it returns the estimates from planning.
func (d *Deployer) GetDeploymentStatus(ctx context.Context, tenantID, planID string) (*DeploymentStatus, error) {
	plan, err := d.scenarios.GetMigrationPlan(ctx, tenantID, planID)
	if err != nil {
		return nil, err
	}

	status := &DeploymentStatus{
		PlanID:     planID,
		Status:     plan.Status,
		DeployedAt: plan.DeployedAt,
	}
	if plan.Status == types.PlanDeployed {
		status.SessionsByAnchor = plan.Summary.ActualSessionsByAnchor
	} else {
		status.SessionsByAnchor = plan.Summary.EstimatedSessionsByAnchor
	}
	for _, n := range status.SessionsByAnchor {
		status.SessionsMarked += n
	}
	return status, nil
}

// CleanupOldPlans deletes DEPLOYED and SUPERSEDED plans whose last activity
// is older than the retention window. Returns the number deleted.
func (d *Deployer) CleanupOldPlans(ctx context.Context, tenantID string, retention time.Duration) (int, error) {
	plans, err := d.scenarios.ListMigrationPlans(ctx, tenantID, "")
	if err != nil {
		return 0, fmt.Errorf("listing plans: %w", err)
	}

	cutoff := d.now().Add(-retention)
	deleted := 0
	for _, plan := range plans {
		if plan.Status != types.PlanDeployed && plan.Status != types.PlanSuperseded {
			continue
		}
		lastActivity := plan.CreatedAt
		if plan.DeployedAt != nil {
			lastActivity = *plan.DeployedAt
		}
		if lastActivity.After(cutoff) {
			continue
		}
		if err := d.scenarios.DeleteMigrationPlan(ctx, tenantID, plan.ID); err != nil {
			return deleted, fmt.Errorf("deleting plan %s: %w", plan.ID, err)
		}
		deleted++
	}

	if deleted > 0 {
		d.logger.Info("old plans cleaned up",
			zap.String("tenant_id", tenantID), zap.Int("deleted", deleted))
	}
	return deleted, nil
}
