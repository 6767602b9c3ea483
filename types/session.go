package types

import "time"

// StepVisit records one step the session has passed through.
type StepVisit struct {
	StepID                string      `json:"step_id"`
	TurnNumber            int         `json:"turn_number"`
	IsCheckpoint          bool        `json:"is_checkpoint,omitempty"`
	CheckpointDescription string      `json:"checkpoint_description,omitempty"`
	StepContentHash       ContentHash `json:"step_content_hash"`
}

// PendingMigration marks a session for reconciliation onto a newer scenario
// version. It is attached by deployment and cleared by a successful
// reconciliation; a session carries at most one at a time.
type PendingMigration struct {
	TargetVersion     int         `json:"target_version"`
	AnchorContentHash ContentHash `json:"anchor_content_hash"`
	MigrationPlanID   string      `json:"migration_plan_id"`
}

// Session is the live conversation state the migration core reconciles.
// The surrounding turn pipeline owns the rest of its lifecycle; this core
// only reads it and mutates the active-position fields, the step history
// baseline, and the pending-migration marker.
type Session struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	// Channel is the conversation channel (web, whatsapp, voice, ...),
	// matched against deployment scope filters.
	Channel string `json:"channel,omitempty"`

	ActiveScenarioID      string `json:"active_scenario_id"`
	ActiveScenarioVersion int    `json:"active_scenario_version"`
	ActiveStepID          string `json:"active_step_id"`
	// ActiveStepHash is the content hash of the active step, denormalized
	// so stores can find sessions sitting at an anchor without loading
	// the scenario graph.
	ActiveStepHash ContentHash `json:"active_step_hash,omitempty"`

	Variables   map[string]any `json:"variables,omitempty"`
	StepHistory []StepVisit    `json:"step_history,omitempty"`

	PendingMigration *PendingMigration `json:"pending_migration,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LastCheckpointVisit returns the most recent checkpoint entry in the
// session's step history, if any.
func (s *Session) LastCheckpointVisit() (*StepVisit, bool) {
	for i := len(s.StepHistory) - 1; i >= 0; i-- {
		if s.StepHistory[i].IsCheckpoint {
			return &s.StepHistory[i], true
		}
	}
	return nil, false
}

// HasVariable reports whether the session holds a non-nil value for the
// named variable.
func (s *Session) HasVariable(name string) bool {
	v, ok := s.Variables[name]
	return ok && v != nil
}

// ScopeFilter narrows which live sessions a deployment touches. The zero
// value matches every session.
type ScopeFilter struct {
	// Channels is an allow-list of conversation channels. Empty = all.
	Channels []string `json:"channels,omitempty"`
	// MaxSessionAge excludes sessions whose last activity is older than
	// this duration. Zero = no age limit.
	MaxSessionAge time.Duration `json:"max_session_age,omitempty"`
}

// Matches reports whether the session passes the filter at time now.
func (f ScopeFilter) Matches(session *Session, now time.Time) bool {
	if len(f.Channels) > 0 {
		allowed := false
		for _, ch := range f.Channels {
			if ch == session.Channel {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	if f.MaxSessionAge > 0 {
		lastActive := session.UpdatedAt
		if lastActive.IsZero() {
			lastActive = session.CreatedAt
		}
		if now.Sub(lastActive) > f.MaxSessionAge {
			return false
		}
	}
	return true
}
