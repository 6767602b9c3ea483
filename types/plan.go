package types

import "time"

// MigrationScenario classifies the structural change upstream of an anchor.
// The enum values are part of the persisted plan format.
type MigrationScenario string

const (
	// ScenarioCleanGraft means only downstream-of-anchor content changed;
	// the session teleports immediately.
	ScenarioCleanGraft MigrationScenario = "clean_graft"
	// ScenarioGapFill means new upstream steps collect customer data the
	// session may not have yet.
	ScenarioGapFill MigrationScenario = "gap_fill"
	// ScenarioReRoute means a new upstream fork may send the session down
	// a different path.
	ScenarioReRoute MigrationScenario = "re_route"
)

// priority orders migration scenarios by severity: when several signals
// must reduce to one classification, the highest wins.
func (m MigrationScenario) priority() int {
	switch m {
	case ScenarioReRoute:
		return 3
	case ScenarioGapFill:
		return 2
	case ScenarioCleanGraft:
		return 1
	default:
		return 0
	}
}

// MoreSevereThan reports whether m outranks other in the
// RE_ROUTE > GAP_FILL > CLEAN_GRAFT ordering.
func (m MigrationScenario) MoreSevereThan(other MigrationScenario) bool {
	return m.priority() > other.priority()
}

// PlanStatus is the lifecycle state of a migration plan. The string values
// are part of the persisted plan format.
type PlanStatus string

const (
	PlanPending    PlanStatus = "pending"
	PlanApproved   PlanStatus = "approved"
	PlanRejected   PlanStatus = "rejected"
	PlanDeployed   PlanStatus = "deployed"
	PlanSuperseded PlanStatus = "superseded"
)

// Terminal reports whether the status admits no further transitions.
func (s PlanStatus) Terminal() bool {
	return s == PlanRejected || s == PlanDeployed || s == PlanSuperseded
}

// InsertedNode describes a step present in v2 but absent (by content hash)
// from v1, reachable from a given anchor.
type InsertedNode struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	CollectsFields   []string `json:"collects_fields,omitempty"`
	IsCheckpoint     bool     `json:"is_checkpoint,omitempty"`
	IsRequiredAction bool     `json:"is_required_action,omitempty"`
}

// ForkBranch is one outgoing branch of a newly inserted fork node.
type ForkBranch struct {
	TargetStepID    string   `json:"target_step_id"`
	ConditionText   string   `json:"condition_text,omitempty"`
	ConditionFields []string `json:"condition_fields,omitempty"`
}

// NewFork is an inserted node with more than one outgoing transition.
type NewFork struct {
	ForkNodeID string       `json:"fork_node_id"`
	Branches   []ForkBranch `json:"branches"`
}

// ChangeSet captures the structural delta reachable from an anchor in one
// direction (upstream or downstream).
type ChangeSet struct {
	InsertedNodes  []InsertedNode `json:"inserted_nodes,omitempty"`
	RemovedNodeIDs []string       `json:"removed_node_ids,omitempty"`
	NewForks       []NewFork      `json:"new_forks,omitempty"`
}

// CollectedFields returns the sorted-free union of collects_fields across
// the change set's inserted nodes. Order follows node declaration order.
func (c ChangeSet) CollectedFields() []string {
	seen := make(map[string]bool)
	var fields []string
	for _, n := range c.InsertedNodes {
		for _, f := range n.CollectsFields {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	return fields
}

// AnchorTransformation describes one step present (by content hash) in both
// scenario versions and the changes around it.
type AnchorTransformation struct {
	ContentHash     ContentHash       `json:"content_hash"`
	AnchorNodeIDV1  string            `json:"anchor_node_id_v1"`
	AnchorNodeIDV2  string            `json:"anchor_node_id_v2"`
	Name            string            `json:"name,omitempty"`
	Upstream        ChangeSet         `json:"upstream_changes"`
	Downstream      ChangeSet         `json:"downstream_changes"`
	Scenario        MigrationScenario `json:"migration_scenario"`
}

// DeletedNode is a v1 step with no content-hash counterpart in v2,
// annotated with its nearest surviving anchor for operator relocation
// guidance. The annotation is advisory only; runtime decisions never
// consult it.
type DeletedNode struct {
	NodeID            string      `json:"node_id"`
	Name              string      `json:"name,omitempty"`
	ContentHash       ContentHash `json:"content_hash"`
	NearestAnchorHash ContentHash `json:"nearest_anchor_hash,omitempty"`
	NearestAnchorV2ID string      `json:"nearest_anchor_v2_id,omitempty"`
}

// TransformationMap is the full structural diff between two scenario
// versions. Every v1 step appears exactly once: either as an anchor or as
// a deleted node.
type TransformationMap struct {
	Anchors      []AnchorTransformation `json:"anchors"`
	DeletedNodes []DeletedNode          `json:"deleted_nodes,omitempty"`
	NewNodeIDs   []string               `json:"new_node_ids,omitempty"`
}

// AnchorByHash returns the anchor transformation with the given content
// hash, if present.
func (t *TransformationMap) AnchorByHash(hash ContentHash) (*AnchorTransformation, bool) {
	for i := range t.Anchors {
		if t.Anchors[i].ContentHash == hash {
			return &t.Anchors[i], true
		}
	}
	return nil, false
}

// AnchorMigrationPolicy is the operator-tunable behavior for one anchor.
type AnchorMigrationPolicy struct {
	ScopeFilter      ScopeFilter `json:"scope_filter"`
	UpdateDownstream bool        `json:"update_downstream"`
}

// MigrationWarning flags a plan hazard for operator review before approval.
type MigrationWarning struct {
	AnchorHash ContentHash `json:"anchor_hash,omitempty"`
	Code       string      `json:"code"`
	Message    string      `json:"message"`
}

// WarningCheckpointUpstreamOfReRoute marks a re-route anchor whose upstream
// inserted nodes include a checkpoint: affected sessions that already
// completed the checkpoint will be blocked at runtime.
const WarningCheckpointUpstreamOfReRoute = "checkpoint_upstream_of_re_route"

// FieldCollectionInfo describes a field a migration may need to collect.
type FieldCollectionInfo struct {
	Field      string      `json:"field"`
	AnchorHash ContentHash `json:"anchor_hash"`
	Reason     string      `json:"reason"`
}

// MigrationSummary is the operator-facing digest of a plan.
type MigrationSummary struct {
	AnchorsByScenario         map[MigrationScenario]int `json:"anchors_by_scenario"`
	DeletedNodeCount          int                       `json:"deleted_node_count"`
	EstimatedSessionsByAnchor map[ContentHash]int       `json:"estimated_sessions_by_anchor,omitempty"`
	ActualSessionsByAnchor    map[ContentHash]int       `json:"actual_sessions_by_anchor,omitempty"`
	Warnings                  []MigrationWarning        `json:"warnings,omitempty"`
	FieldCollection           []FieldCollectionInfo     `json:"field_collection,omitempty"`
}

// MigrationPlan is the approvable unit of scenario migration between two
// consecutive published versions. Owned by the planner and deployer;
// immutable once deployed except for summary refresh.
type MigrationPlan struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	ScenarioID string `json:"scenario_id"`

	FromVersion  int         `json:"from_version"`
	ToVersion    int         `json:"to_version"`
	FromChecksum ContentHash `json:"from_checksum"`
	ToChecksum   ContentHash `json:"to_checksum"`

	Transformation TransformationMap                     `json:"transformation_map"`
	AnchorPolicies map[ContentHash]AnchorMigrationPolicy `json:"anchor_policies"`
	Summary        MigrationSummary                      `json:"summary"`

	Status     PlanStatus `json:"status"`
	CreatedBy  string     `json:"created_by,omitempty"`
	ApprovedBy string     `json:"approved_by,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	DeployedAt *time.Time `json:"deployed_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
}
