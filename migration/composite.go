package migration

import (
	"context"

	"go.uber.org/zap"

	"github.com/convoflow/flowmigrate/types"
)

// CompositeMapper collapses a chain of single-version migration plans into
// one net migration for sessions that skipped several releases. The anchor
// content hash is stable across the whole chain by definition of "anchor",
// so per-link lookups key on it.
type CompositeMapper struct {
	scenarios ScenarioStore
	logger    *zap.Logger
}

// NewCompositeMapper creates a composite mapper. A nil logger is replaced
// with a noop.
func NewCompositeMapper(scenarios ScenarioStore, logger *zap.Logger) *CompositeMapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompositeMapper{
		scenarios: scenarios,
		logger:    logger.With(zap.String("component", "composite_mapper")),
	}
}

// GetPlanChain walks consecutive version pairs from fromVersion upward and
// returns the plans for each link, stopping early at the first missing
// link. A partial chain is returned as-is; the caller decides how far to
// migrate.
func (c *CompositeMapper) GetPlanChain(ctx context.Context, tenantID, scenarioID string, fromVersion, toVersion int) []*types.MigrationPlan {
	var chain []*types.MigrationPlan
	for v := fromVersion; v < toVersion; v++ {
		plan, err := c.scenarios.GetMigrationPlanForVersions(ctx, tenantID, scenarioID, v, v+1)
		if err != nil {
			c.logger.Warn("plan chain lookup failed",
				zap.String("scenario_id", scenarioID),
				zap.Int("from_version", v),
				zap.Error(err),
			)
			break
		}
		if plan == nil {
			c.logger.Debug("plan chain broken",
				zap.String("scenario_id", scenarioID),
				zap.Int("missing_from_version", v),
				zap.Int("links", len(chain)),
			)
			break
		}
		chain = append(chain, plan)
	}
	return chain
}

// AccumulateRequirements unions the collects_fields of every upstream node
// inserted for the anchor across the chain, in chain order.
func (c *CompositeMapper) AccumulateRequirements(chain []*types.MigrationPlan, anchorHash types.ContentHash) []string {
	seen := make(map[string]bool)
	var fields []string
	for _, plan := range chain {
		anchor, ok := plan.Transformation.AnchorByHash(anchorHash)
		if !ok {
			continue
		}
		for _, field := range anchor.Upstream.CollectedFields() {
			if !seen[field] {
				seen[field] = true
				fields = append(fields, field)
			}
		}
	}
	return fields
}

// PruneRequirements drops accumulated fields that no step upstream of the
// anchor still collects in the final scenario version: a field needed only
// by an intermediate version whose collecting node was later removed is
// never asked for.
func (c *CompositeMapper) PruneRequirements(accumulated []string, final *types.Scenario, anchorHash types.ContentHash) []string {
	anchorID := ""
	for i := range final.Steps {
		if HashStep(&final.Steps[i]) == anchorHash {
			anchorID = final.Steps[i].ID
			break
		}
	}
	if anchorID == "" {
		// Anchor vanished from the final version; nothing to prune
		// against, the caller falls back.
		return accumulated
	}

	upstream := reachableFrom(anchorID, final.ReverseAdjacency())
	stillCollected := make(map[string]bool)
	for i := range final.Steps {
		step := &final.Steps[i]
		if !upstream[step.ID] {
			continue
		}
		for _, field := range step.CollectsFields {
			stillCollected[field] = true
		}
	}

	var pruned []string
	for _, field := range accumulated {
		if stillCollected[field] {
			pruned = append(pruned, field)
		}
	}
	return pruned
}

// DetermineCompositeScenario reduces every link's classification for the
// anchor to one, using the RE_ROUTE > GAP_FILL > CLEAN_GRAFT priority.
func (c *CompositeMapper) DetermineCompositeScenario(chain []*types.MigrationPlan, anchorHash types.ContentHash) types.MigrationScenario {
	result := types.ScenarioCleanGraft
	for _, plan := range chain {
		anchor, ok := plan.Transformation.AnchorByHash(anchorHash)
		if !ok {
			continue
		}
		if anchor.Scenario.MoreSevereThan(result) {
			result = anchor.Scenario
		}
	}
	return result
}
