package migration

import (
	"go.uber.org/zap"

	"github.com/convoflow/flowmigrate/types"
)

// Anchor is a step present (by content hash) in both scenario versions.
// Steps are matched purely by content, independent of graph position: a
// node that moved elsewhere in the graph is still the same anchor.
type Anchor struct {
	Hash   types.ContentHash
	StepV1 *types.ScenarioStep
	StepV2 *types.ScenarioStep
}

// Differ computes the structural delta between two versions of a scenario
// graph. All methods are pure given their inputs; the differ holds no
// state beyond a logger.
type Differ struct {
	logger *zap.Logger
}

// NewDiffer creates a graph differ. A nil logger is replaced with a noop.
func NewDiffer(logger *zap.Logger) *Differ {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Differ{logger: logger.With(zap.String("component", "differ"))}
}

// FindAnchors returns the steps whose content hash appears in both
// versions, in v1 declaration order. When several steps of one version
// share a content hash, the first declared wins.
func (d *Differ) FindAnchors(v1, v2 *types.Scenario) []Anchor {
	hashesV2 := hashIndex(v2)

	var anchors []Anchor
	seen := make(map[types.ContentHash]bool)
	for i := range v1.Steps {
		step := &v1.Steps[i]
		hash := HashStep(step)
		if seen[hash] {
			continue
		}
		if counterpart, ok := hashesV2[hash]; ok {
			seen[hash] = true
			anchors = append(anchors, Anchor{Hash: hash, StepV1: step, StepV2: counterpart})
		}
	}
	return anchors
}

// UpstreamChanges computes the delta reachable from the anchor against the
// direction of the transitions (the steps a session passes through before
// the anchor).
func (d *Differ) UpstreamChanges(v1, v2 *types.Scenario, anchorV1ID, anchorV2ID string) types.ChangeSet {
	return d.changesAround(v1, v2, anchorV1ID, anchorV2ID, true)
}

// DownstreamChanges computes the delta reachable from the anchor along the
// direction of the transitions.
func (d *Differ) DownstreamChanges(v1, v2 *types.Scenario, anchorV1ID, anchorV2ID string) types.ChangeSet {
	return d.changesAround(v1, v2, anchorV1ID, anchorV2ID, false)
}

func (d *Differ) changesAround(v1, v2 *types.Scenario, anchorV1ID, anchorV2ID string, upstream bool) types.ChangeSet {
	var edgesV1, edgesV2 map[string][]string
	if upstream {
		edgesV1, edgesV2 = v1.ReverseAdjacency(), v2.ReverseAdjacency()
	} else {
		edgesV1, edgesV2 = v1.Adjacency(), v2.Adjacency()
	}

	reachableV1 := reachableFrom(anchorV1ID, edgesV1)
	reachableV2 := reachableFrom(anchorV2ID, edgesV2)

	hashesV1 := reachableHashes(v1, reachableV1)
	hashesV2 := reachableHashes(v2, reachableV2)

	var changes types.ChangeSet

	// Any v2-reachable hash absent from v1's reachable hash set is an
	// inserted node; an inserted node with more than one outgoing
	// transition is additionally a new fork.
	for i := range v2.Steps {
		step := &v2.Steps[i]
		if !reachableV2[step.ID] || hashesV1[HashStep(step)] {
			continue
		}
		changes.InsertedNodes = append(changes.InsertedNodes, types.InsertedNode{
			ID:               step.ID,
			Name:             step.Name,
			CollectsFields:   step.CollectsFields,
			IsCheckpoint:     step.IsCheckpoint,
			IsRequiredAction: step.IsRequiredAction,
		})
		if step.HasFork() {
			fork := types.NewFork{ForkNodeID: step.ID}
			for _, t := range step.Transitions {
				fork.Branches = append(fork.Branches, types.ForkBranch{
					TargetStepID:    t.ToStepID,
					ConditionText:   t.ConditionText,
					ConditionFields: t.ConditionFields,
				})
			}
			changes.NewForks = append(changes.NewForks, fork)
		}
	}

	// Any v1-reachable hash absent from v2's reachable hash set is removed.
	for i := range v1.Steps {
		step := &v1.Steps[i]
		if reachableV1[step.ID] && !hashesV2[HashStep(step)] {
			changes.RemovedNodeIDs = append(changes.RemovedNodeIDs, step.ID)
		}
	}

	return changes
}

// Classify reduces an anchor's upstream changes to a migration scenario.
// Priority: RE_ROUTE (any new fork) > GAP_FILL (any collecting inserted
// node) > CLEAN_GRAFT.
func Classify(upstream types.ChangeSet) types.MigrationScenario {
	if len(upstream.NewForks) > 0 {
		return types.ScenarioReRoute
	}
	for _, n := range upstream.InsertedNodes {
		if len(n.CollectsFields) > 0 {
			return types.ScenarioGapFill
		}
	}
	return types.ScenarioCleanGraft
}

// NearestAnchor finds the anchor closest to a deleted v1 node, searching
// both edge directions breadth-first. Used purely for operator-facing
// relocation hints, never for runtime decisions.
func (d *Differ) NearestAnchor(deletedID string, v1 *types.Scenario, anchorsByV1ID map[string]Anchor) (Anchor, bool) {
	forward := v1.Adjacency()
	reverse := v1.ReverseAdjacency()

	visited := map[string]bool{deletedID: true}
	queue := []string{deletedID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if anchor, ok := anchorsByV1ID[current]; ok {
			return anchor, true
		}
		for _, next := range forward[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
		for _, next := range reverse[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return Anchor{}, false
}

// ComputeTransformationMap assembles the full structural diff between two
// scenario versions. Every v1 step lands exactly once in either the anchor
// list or the deleted-node list; every v2 step whose hash is new relative
// to v1 is recorded in NewNodeIDs.
func (d *Differ) ComputeTransformationMap(v1, v2 *types.Scenario) *types.TransformationMap {
	anchors := d.FindAnchors(v1, v2)

	anchorsByV1ID := make(map[string]Anchor, len(anchors))
	anchorHashes := make(map[types.ContentHash]bool, len(anchors))
	for _, a := range anchors {
		anchorsByV1ID[a.StepV1.ID] = a
		anchorHashes[a.Hash] = true
	}

	tm := &types.TransformationMap{}
	for _, a := range anchors {
		upstream := d.UpstreamChanges(v1, v2, a.StepV1.ID, a.StepV2.ID)
		downstream := d.DownstreamChanges(v1, v2, a.StepV1.ID, a.StepV2.ID)
		tm.Anchors = append(tm.Anchors, types.AnchorTransformation{
			ContentHash:    a.Hash,
			AnchorNodeIDV1: a.StepV1.ID,
			AnchorNodeIDV2: a.StepV2.ID,
			Name:           a.StepV2.Name,
			Upstream:       upstream,
			Downstream:     downstream,
			Scenario:       Classify(upstream),
		})
	}

	for i := range v1.Steps {
		step := &v1.Steps[i]
		hash := HashStep(step)
		if anchorHashes[hash] {
			continue
		}
		deleted := types.DeletedNode{
			NodeID:      step.ID,
			Name:        step.Name,
			ContentHash: hash,
		}
		if nearest, ok := d.NearestAnchor(step.ID, v1, anchorsByV1ID); ok {
			deleted.NearestAnchorHash = nearest.Hash
			deleted.NearestAnchorV2ID = nearest.StepV2.ID
		}
		tm.DeletedNodes = append(tm.DeletedNodes, deleted)
	}

	for i := range v2.Steps {
		step := &v2.Steps[i]
		if !anchorHashes[HashStep(step)] {
			tm.NewNodeIDs = append(tm.NewNodeIDs, step.ID)
		}
	}

	d.logger.Debug("computed transformation map",
		zap.String("scenario_id", v1.ID),
		zap.Int("from_version", v1.Version),
		zap.Int("to_version", v2.Version),
		zap.Int("anchors", len(tm.Anchors)),
		zap.Int("deleted_nodes", len(tm.DeletedNodes)),
		zap.Int("new_nodes", len(tm.NewNodeIDs)),
	)
	return tm
}

// reachableFrom walks edges breadth-first from start. The visited set
// guarantees termination on cyclic graphs. The start node itself is not
// part of the result.
func reachableFrom(start string, edges map[string][]string) map[string]bool {
	visited := map[string]bool{start: true}
	reachable := make(map[string]bool)
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range edges[current] {
			if !visited[next] {
				visited[next] = true
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}
	return reachable
}

// hashIndex maps content hash to step for one scenario version. The first
// declared step wins on hash collisions within a version.
func hashIndex(scenario *types.Scenario) map[types.ContentHash]*types.ScenarioStep {
	index := make(map[types.ContentHash]*types.ScenarioStep, len(scenario.Steps))
	for i := range scenario.Steps {
		step := &scenario.Steps[i]
		hash := HashStep(step)
		if _, ok := index[hash]; !ok {
			index[hash] = step
		}
	}
	return index
}

// reachableHashes collects the content hashes of the steps in ids.
func reachableHashes(scenario *types.Scenario, ids map[string]bool) map[types.ContentHash]bool {
	hashes := make(map[types.ContentHash]bool, len(ids))
	for i := range scenario.Steps {
		step := &scenario.Steps[i]
		if ids[step.ID] {
			hashes[HashStep(step)] = true
		}
	}
	return hashes
}
