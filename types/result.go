package types

// ReconciliationAction is what the turn pipeline must do with a session
// after reconciliation.
type ReconciliationAction string

const (
	// ActionContinue leaves the session where it is.
	ActionContinue ReconciliationAction = "continue"
	// ActionTeleport moves the session's active step to TargetStepID.
	ActionTeleport ReconciliationAction = "teleport"
	// ActionCollect asks the pipeline to gather CollectFields from the
	// customer before reconciliation is retried next turn.
	ActionCollect ReconciliationAction = "collect"
)

// Teleport reasons reported in ReconciliationResult. Descriptive only;
// the pipeline branches on Action, operators read the reason.
const (
	ReasonCleanGraft        = "clean_graft"
	ReasonGapFill           = "gap_fill"
	ReasonReRoute           = "re_route"
	ReasonComposite         = "composite"
	ReasonFallbackHashMatch = "fallback_hash_match"
	ReasonFallbackEntry     = "fallback_entry"
)

// ReconciliationResult is the sole output contract of session
// reconciliation. Reconciliation never fails: missing plans, missing
// anchors, and broken plan chains all degrade to a defined result.
type ReconciliationResult struct {
	Action ReconciliationAction `json:"action"`

	// TargetStepID is set when Action is teleport.
	TargetStepID string `json:"target_step_id,omitempty"`
	// CollectFields is set when Action is collect.
	CollectFields []string `json:"collect_fields,omitempty"`

	TeleportReason string `json:"teleport_reason,omitempty"`
	// BlockedByCheckpoint is true when a re-route was suppressed because
	// the session already completed a checkpoint downstream of the target.
	BlockedByCheckpoint bool `json:"blocked_by_checkpoint,omitempty"`
	// UserMessage is an optional prompt the pipeline may surface to the
	// customer (set for collect results).
	UserMessage string `json:"user_message,omitempty"`
}

// Continue returns the no-op reconciliation result.
func Continue() ReconciliationResult {
	return ReconciliationResult{Action: ActionContinue}
}
