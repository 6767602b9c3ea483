package migration

import (
	"time"

	"github.com/convoflow/flowmigrate/types"
)

// Metrics receives operational counters from the migration core. The
// production implementation lives in internal/metrics; a nop is used when
// none is supplied.
type Metrics interface {
	// RecordDiff records one transformation-map computation.
	RecordDiff(scenarioID string, duration time.Duration, anchors, deletedNodes int)
	// RecordPlanTransition records a plan entering a lifecycle state.
	RecordPlanTransition(scenarioID string, status types.PlanStatus)
	// RecordDeployment records the outcome of one plan deployment.
	RecordDeployment(scenarioID string, marked, skipped int)
	// RecordReconciliation records one reconciliation outcome.
	RecordReconciliation(action types.ReconciliationAction, reason string, blockedByCheckpoint bool)
}

// nopMetrics discards every observation.
type nopMetrics struct{}

func (nopMetrics) RecordDiff(string, time.Duration, int, int)                 {}
func (nopMetrics) RecordPlanTransition(string, types.PlanStatus)              {}
func (nopMetrics) RecordDeployment(string, int, int)                          {}
func (nopMetrics) RecordReconciliation(types.ReconciliationAction, string, bool) {}

// NopMetrics returns a Metrics implementation that discards everything.
func NopMetrics() Metrics { return nopMetrics{} }
