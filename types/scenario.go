package types

// ContentHash is a 16-hex-character digest (truncated SHA-256) of a step's
// semantic content. Two steps with equal content hash are the same logical
// node even when their ids differ between scenario versions.
type ContentHash string

// Transition is a directed, conditional edge between two steps.
type Transition struct {
	// ToStepID is the id of the target step within the same scenario version.
	ToStepID string `json:"to_step_id"`
	// ConditionText is the human-readable condition guarding this edge.
	ConditionText string `json:"condition_text,omitempty"`
	// ConditionFields lists the session variables the condition reads.
	ConditionFields []string `json:"condition_fields,omitempty"`
	// Priority orders evaluation when several transitions are eligible.
	Priority int `json:"priority"`
}

// ScenarioStep is a single node in a scenario graph. Step identity across
// versions is semantic content, not the id; see ContentHash.
type ScenarioStep struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Transitions are the outgoing edges, in declaration order.
	Transitions []Transition `json:"transitions,omitempty"`

	// CollectsFields names the session variables this step gathers from
	// the customer before the conversation may proceed past it.
	CollectsFields []string `json:"collects_fields,omitempty"`

	// IsCheckpoint marks the step as an irreversible completed action
	// (a payment, a booking). Migration never walks a session backward
	// past a visited checkpoint.
	IsCheckpoint          bool   `json:"is_checkpoint,omitempty"`
	CheckpointDescription string `json:"checkpoint_description,omitempty"`

	// PerformsAction names the side-effecting action the step runs, if any.
	PerformsAction   string `json:"performs_action,omitempty"`
	IsRequiredAction bool   `json:"is_required_action,omitempty"`

	// Associated content ids resolved by the turn pipeline.
	RuleIDs     []string `json:"rule_ids,omitempty"`
	ToolIDs     []string `json:"tool_ids,omitempty"`
	TemplateIDs []string `json:"template_ids,omitempty"`
}

// HasFork reports whether the step has more than one outgoing transition.
func (s *ScenarioStep) HasFork() bool {
	return len(s.Transitions) > 1
}

// Scenario is one published version of a conversation flow: a directed
// graph of steps with conditional transitions. Versions are monotonic
// integers starting at 1.
type Scenario struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Name        string         `json:"name"`
	Version     int            `json:"version"`
	EntryStepID string         `json:"entry_step_id"`
	Steps       []ScenarioStep `json:"steps"`
}

// StepByID returns the step with the given id, if present.
func (s *Scenario) StepByID(id string) (*ScenarioStep, bool) {
	for i := range s.Steps {
		if s.Steps[i].ID == id {
			return &s.Steps[i], true
		}
	}
	return nil, false
}

// StepIndex returns a step-id keyed view of the graph. The returned map
// shares the scenario's step storage.
func (s *Scenario) StepIndex() map[string]*ScenarioStep {
	index := make(map[string]*ScenarioStep, len(s.Steps))
	for i := range s.Steps {
		index[s.Steps[i].ID] = &s.Steps[i]
	}
	return index
}

// Adjacency builds the forward adjacency list (step id -> successor ids)
// from the scenario's transitions.
func (s *Scenario) Adjacency() map[string][]string {
	edges := make(map[string][]string, len(s.Steps))
	for i := range s.Steps {
		step := &s.Steps[i]
		for _, t := range step.Transitions {
			edges[step.ID] = append(edges[step.ID], t.ToStepID)
		}
	}
	return edges
}

// ReverseAdjacency builds the reverse adjacency list (step id ->
// predecessor ids) from the scenario's transitions.
func (s *Scenario) ReverseAdjacency() map[string][]string {
	edges := make(map[string][]string, len(s.Steps))
	for i := range s.Steps {
		step := &s.Steps[i]
		for _, t := range step.Transitions {
			edges[t.ToStepID] = append(edges[t.ToStepID], step.ID)
		}
	}
	return edges
}
