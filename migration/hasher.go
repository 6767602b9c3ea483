package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/gowebpki/jcs"

	"github.com/convoflow/flowmigrate/types"
)

// hashLength is the number of hex characters kept from the SHA-256 digest.
const hashLength = 16

// stepDigest is the canonical serialization of a step's semantic fields.
// Ids, graph position, and tool/template associations are deliberately
// excluded: they may change between versions without changing what the
// step means.
type stepDigest struct {
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	RuleIDs               []string `json:"rule_ids"`
	CollectsFields        []string `json:"collects_fields"`
	IsCheckpoint          bool     `json:"is_checkpoint"`
	CheckpointDescription string   `json:"checkpoint_description"`
	PerformsAction        string   `json:"performs_action"`
}

type transitionDigest struct {
	ToStepID      string `json:"to_step_id"`
	ConditionText string `json:"condition_text"`
	Priority      int    `json:"priority"`
}

type scenarioStepDigest struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Transitions []transitionDigest `json:"transitions"`
}

type scenarioDigest struct {
	Name        string               `json:"name"`
	Version     int                  `json:"version"`
	EntryStepID string               `json:"entry_step_id"`
	Steps       []scenarioStepDigest `json:"steps"`
}

// HashStep computes the content hash of a step's semantic fields.
// Deterministic: identical semantic content always yields an identical
// hash, regardless of step id or graph position.
func HashStep(step *types.ScenarioStep) types.ContentHash {
	digest := stepDigest{
		Name:                  step.Name,
		Description:           step.Description,
		RuleIDs:               sortedCopy(step.RuleIDs),
		CollectsFields:        sortedCopy(step.CollectsFields),
		IsCheckpoint:          step.IsCheckpoint,
		CheckpointDescription: step.CheckpointDescription,
		PerformsAction:        step.PerformsAction,
	}
	return canonicalHash(digest)
}

// HashScenario computes the checksum of a whole scenario graph: names, ids,
// and sorted transitions. Any structural drift (renamed step, re-targeted
// or re-prioritized transition) changes the checksum. Used for
// version-integrity validation when scenarios are loaded from a store.
func HashScenario(scenario *types.Scenario) types.ContentHash {
	steps := make([]scenarioStepDigest, 0, len(scenario.Steps))
	for i := range scenario.Steps {
		step := &scenario.Steps[i]
		transitions := make([]transitionDigest, 0, len(step.Transitions))
		for _, t := range step.Transitions {
			transitions = append(transitions, transitionDigest{
				ToStepID:      t.ToStepID,
				ConditionText: t.ConditionText,
				Priority:      t.Priority,
			})
		}
		sort.Slice(transitions, func(i, j int) bool {
			return transitions[i].ToStepID < transitions[j].ToStepID
		})
		steps = append(steps, scenarioStepDigest{
			ID:          step.ID,
			Name:        step.Name,
			Transitions: transitions,
		})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].ID < steps[j].ID })

	return canonicalHash(scenarioDigest{
		Name:        scenario.Name,
		Version:     scenario.Version,
		EntryStepID: scenario.EntryStepID,
		Steps:       steps,
	})
}

// canonicalHash serializes v as RFC 8785 canonical JSON, hashes it with
// SHA-256, and keeps the first 16 hex characters.
func canonicalHash(v any) types.ContentHash {
	raw, err := json.Marshal(v)
	if err != nil {
		// Digest structs contain only strings, ints, bools, and slices
		// thereof; Marshal cannot fail on them.
		panic("migration: marshal digest: " + err.Error())
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		// Transform cannot fail on the output of json.Marshal.
		canonical = raw
	}
	sum := sha256.Sum256(canonical)
	return types.ContentHash(hex.EncodeToString(sum[:])[:hashLength])
}

func sortedCopy(values []string) []string {
	if values == nil {
		return []string{}
	}
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}
