package migration

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/convoflow/flowmigrate/types"
)

// Executor reconciles a session's position against the current scenario
// version. It is invoked by the turn pipeline before normal processing of
// every turn of an affected session.
//
// Reconciliation never interrupts a live conversation: given a session and
// scenario it always produces a ReconciliationResult, degrading to a
// fallback when a plan or anchor is missing. Given unchanged inputs it
// recomputes the identical decision, so at-least-once retry after a crash
// is safe without extra bookkeeping.
type Executor struct {
	scenarios ScenarioStore
	sessions  SessionStore
	composite *CompositeMapper
	metrics   Metrics
	logger    *zap.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorMetrics attaches a metrics sink.
func WithExecutorMetrics(m Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates a reconciliation executor. A nil logger is replaced
// with a noop.
func NewExecutor(scenarios ScenarioStore, sessions SessionStore, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		scenarios: scenarios,
		sessions:  sessions,
		composite: NewCompositeMapper(scenarios, logger),
		metrics:   NopMetrics(),
		logger:    logger.With(zap.String("component", "executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile aligns the session with the given (possibly newer) scenario.
//
// Decision order:
//  1. Session already on the current version: continue.
//  2. Version drifted without a pending marker (deploy ran while the
//     session was away, or its plan was superseded): hash-match fallback.
//  3. A pending migration exists: when several releases were skipped the
//     composite path collapses the plan chain first; otherwise the marked
//     plan's anchor drives a clean-graft, gap-fill, or re-route move.
func (e *Executor) Reconcile(ctx context.Context, session *types.Session, scenario *types.Scenario) types.ReconciliationResult {
	if session.ActiveScenarioVersion == scenario.Version {
		return types.Continue()
	}

	pending := session.PendingMigration
	if pending == nil {
		return e.fallback(ctx, session, scenario)
	}

	if scenario.Version > pending.TargetVersion {
		if result, handled := e.reconcileComposite(ctx, session, scenario, pending); handled {
			return result
		}
		return e.fallback(ctx, session, scenario)
	}

	plan, err := e.scenarios.GetMigrationPlan(ctx, session.TenantID, pending.MigrationPlanID)
	if err != nil {
		e.logger.Warn("pending migration references missing plan",
			zap.String("session_id", session.ID),
			zap.String("plan_id", pending.MigrationPlanID),
			zap.Error(err),
		)
		return e.fallback(ctx, session, scenario)
	}

	anchor, ok := plan.Transformation.AnchorByHash(pending.AnchorContentHash)
	if !ok {
		e.logger.Warn("pending migration references missing anchor",
			zap.String("session_id", session.ID),
			zap.String("anchor_hash", string(pending.AnchorContentHash)),
		)
		return e.fallback(ctx, session, scenario)
	}

	switch anchor.Scenario {
	case types.ScenarioGapFill:
		return e.reconcileGapFill(ctx, session, scenario, anchor)
	case types.ScenarioReRoute:
		return e.reconcileReRoute(ctx, session, scenario, anchor)
	default:
		return e.teleport(ctx, session, scenario, anchor.AnchorNodeIDV2, types.ReasonCleanGraft)
	}
}

// reconcileGapFill asks for the fields newly collected upstream of the
// anchor before letting the session jump. The session is left untouched
// while fields are missing; reconciliation retries next turn.
func (e *Executor) reconcileGapFill(ctx context.Context, session *types.Session, scenario *types.Scenario, anchor *types.AnchorTransformation) types.ReconciliationResult {
	missing := missingFields(session, anchor.Upstream.CollectedFields())
	if len(missing) > 0 {
		return e.collect(missing)
	}
	return e.teleport(ctx, session, scenario, anchor.AnchorNodeIDV2, types.ReasonGapFill)
}

// reconcileReRoute routes the session through the first matching branch of
// the new upstream forks. A session that already completed a checkpoint
// downstream of the candidate target is never moved: re-exposing a
// confirmed irreversible action to a different branch is worse than
// leaving the session on the old path.
func (e *Executor) reconcileReRoute(ctx context.Context, session *types.Session, scenario *types.Scenario, anchor *types.AnchorTransformation) types.ReconciliationResult {
	if visit, ok := session.LastCheckpointVisit(); ok {
		if IsUpstreamOfCheckpoint(scenario, anchor.AnchorNodeIDV2, visit.StepID) {
			e.metrics.RecordReconciliation(types.ActionContinue, types.ReasonReRoute, true)
			e.logger.Info("re-route blocked by checkpoint",
				zap.String("session_id", session.ID),
				zap.String("checkpoint_step", visit.StepID),
				zap.String("candidate_step", anchor.AnchorNodeIDV2),
			)
			return types.ReconciliationResult{Action: types.ActionContinue, BlockedByCheckpoint: true}
		}
	}

	for _, fork := range anchor.Upstream.NewForks {
		for _, branch := range fork.Branches {
			if branchSatisfied(session, branch) {
				return e.teleport(ctx, session, scenario, branch.TargetStepID, types.ReasonReRoute)
			}
		}
	}
	return e.teleport(ctx, session, scenario, anchor.AnchorNodeIDV2, types.ReasonReRoute)
}

// reconcileComposite collapses the plan chain covering the skipped
// releases and applies its net effect, jumping straight to the last
// plan's anchor position without surfacing intermediate versions.
// Returns handled=false when the chain or the anchor cannot be resolved;
// the caller then degrades to the hash-match fallback.
func (e *Executor) reconcileComposite(ctx context.Context, session *types.Session, scenario *types.Scenario, pending *types.PendingMigration) (types.ReconciliationResult, bool) {
	chain := e.composite.GetPlanChain(ctx, session.TenantID, session.ActiveScenarioID, session.ActiveScenarioVersion, scenario.Version)
	if len(chain) == 0 {
		return types.ReconciliationResult{}, false
	}

	last := chain[len(chain)-1]
	anchor, ok := last.Transformation.AnchorByHash(pending.AnchorContentHash)
	if !ok {
		return types.ReconciliationResult{}, false
	}

	// With a broken chain the session migrates as far as plans exist;
	// the remaining gap reconciles through the fallback on a later turn.
	target := scenario
	if last.ToVersion != scenario.Version {
		archived, err := e.scenarios.GetScenarioVersion(ctx, session.TenantID, session.ActiveScenarioID, last.ToVersion)
		if err != nil {
			e.logger.Warn("intermediate scenario version unavailable",
				zap.String("session_id", session.ID),
				zap.Int("version", last.ToVersion),
				zap.Error(err),
			)
			return types.ReconciliationResult{}, false
		}
		target = archived
	}

	accumulated := e.composite.AccumulateRequirements(chain, pending.AnchorContentHash)
	required := e.composite.PruneRequirements(accumulated, target, pending.AnchorContentHash)
	if missing := missingFields(session, required); len(missing) > 0 {
		return e.collect(missing), true
	}

	if e.composite.DetermineCompositeScenario(chain, pending.AnchorContentHash) == types.ScenarioReRoute {
		if visit, ok := session.LastCheckpointVisit(); ok {
			if IsUpstreamOfCheckpoint(target, anchor.AnchorNodeIDV2, visit.StepID) {
				e.metrics.RecordReconciliation(types.ActionContinue, types.ReasonComposite, true)
				return types.ReconciliationResult{Action: types.ActionContinue, BlockedByCheckpoint: true}, true
			}
		}
	}

	return e.teleport(ctx, session, target, anchor.AnchorNodeIDV2, types.ReasonComposite), true
}

// fallback recovers a session whose version drifted without a usable plan:
// the most recent step-history entry whose content hash still exists in
// the current scenario wins; failing that, the session restarts at the
// entry step.
func (e *Executor) fallback(ctx context.Context, session *types.Session, scenario *types.Scenario) types.ReconciliationResult {
	byHash := hashIndex(scenario)
	for i := len(session.StepHistory) - 1; i >= 0; i-- {
		if step, ok := byHash[session.StepHistory[i].StepContentHash]; ok {
			return e.teleport(ctx, session, scenario, step.ID, types.ReasonFallbackHashMatch)
		}
	}
	if _, ok := scenario.StepByID(scenario.EntryStepID); ok {
		return e.teleport(ctx, session, scenario, scenario.EntryStepID, types.ReasonFallbackEntry)
	}

	e.logger.Warn("no fallback position available, leaving session in place",
		zap.String("session_id", session.ID),
		zap.Int("session_version", session.ActiveScenarioVersion),
		zap.Int("scenario_version", scenario.Version),
	)
	e.metrics.RecordReconciliation(types.ActionContinue, "no_fallback", false)
	return types.Continue()
}

// teleport moves the session to the target step of the given scenario,
// clears the pending marker, and persists the session. A save failure is
// logged but does not fail the turn: the store still holds the old state
// and the next reconciliation recomputes the same decision.
func (e *Executor) teleport(ctx context.Context, session *types.Session, scenario *types.Scenario, targetStepID, reason string) types.ReconciliationResult {
	step, ok := scenario.StepByID(targetStepID)
	if !ok {
		// Target vanished from the graph; recover through the fallback
		// unless that is where we came from.
		if reason != types.ReasonFallbackHashMatch && reason != types.ReasonFallbackEntry {
			return e.fallback(ctx, session, scenario)
		}
		e.metrics.RecordReconciliation(types.ActionContinue, "missing_target", false)
		return types.Continue()
	}

	session.ActiveStepID = step.ID
	session.ActiveScenarioVersion = scenario.Version
	session.ActiveStepHash = HashStep(step)
	session.PendingMigration = nil

	if err := e.sessions.SaveSession(ctx, session); err != nil {
		e.logger.Error("saving reconciled session failed",
			zap.String("session_id", session.ID), zap.Error(err))
	}

	e.metrics.RecordReconciliation(types.ActionTeleport, reason, false)
	e.logger.Info("session reconciled",
		zap.String("session_id", session.ID),
		zap.String("target_step", step.ID),
		zap.Int("version", scenario.Version),
		zap.String("reason", reason),
	)
	return types.ReconciliationResult{
		Action:         types.ActionTeleport,
		TargetStepID:   step.ID,
		TeleportReason: reason,
	}
}

// collect builds the collect result with a prompt the pipeline may surface
// verbatim. The session is not mutated; the pending marker stays until the
// fields arrive and a later reconciliation teleports.
func (e *Executor) collect(missing []string) types.ReconciliationResult {
	e.metrics.RecordReconciliation(types.ActionCollect, "", false)
	return types.ReconciliationResult{
		Action:        types.ActionCollect,
		CollectFields: missing,
		UserMessage:   fmt.Sprintf("Before we continue, I need: %s.", strings.Join(missing, ", ")),
	}
}

// IsUpstreamOfCheckpoint reports whether the checkpoint step is reachable
// from candidate by forward BFS over the scenario's transitions. A node is
// trivially upstream of itself.
func IsUpstreamOfCheckpoint(scenario *types.Scenario, candidateID, checkpointID string) bool {
	if candidateID == checkpointID {
		return true
	}
	return reachableFrom(candidateID, scenario.Adjacency())[checkpointID]
}

// branchSatisfied reports whether the session already holds values for
// every field the branch condition reads. Conditions are free text; the
// fields they read are the only part evaluable without running a turn, so
// a branch with no declared fields is never auto-selected.
func branchSatisfied(session *types.Session, branch types.ForkBranch) bool {
	if len(branch.ConditionFields) == 0 {
		return false
	}
	for _, field := range branch.ConditionFields {
		if !session.HasVariable(field) {
			return false
		}
	}
	return true
}

// missingFields returns the required fields the session does not hold a
// value for, preserving the required order.
func missingFields(session *types.Session, required []string) []string {
	var missing []string
	for _, field := range required {
		if !session.HasVariable(field) {
			missing = append(missing, field)
		}
	}
	return missing
}
