package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/convoflow/flowmigrate/migration"
	"github.com/convoflow/flowmigrate/types"
)

// =============================================================================
// Session handler
// =============================================================================

// SessionHandler exposes per-session reconciliation to the conversation
// runtime. Reconcile never fails: any malformed or missing state
// degrades to a safe continue/teleport result.
type SessionHandler struct {
	executor  *migration.Executor
	scenarios migration.ScenarioStore
	sessions  migration.SessionStore
	logger    *zap.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(executor *migration.Executor, scenarios migration.ScenarioStore, sessions migration.SessionStore, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		executor:  executor,
		scenarios: scenarios,
		sessions:  sessions,
		logger:    logger.With(zap.String("component", "session_handler")),
	}
}

// HandleGet returns a session.
// GET /api/v1/sessions/{session}
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), r.PathValue("session"))
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, session)
}

// HandleReconcile runs one reconciliation pass against the current
// scenario version. The session itself must exist; everything beyond
// that resolves to a result, never an error.
// POST /api/v1/sessions/{session}/reconcile
func (h *SessionHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), r.PathValue("session"))
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	scenario, err := h.scenarios.GetScenario(r.Context(), session.TenantID, session.ActiveScenarioID)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	result := h.executor.Reconcile(r.Context(), session, scenario)
	WriteSuccess(w, result)
}

// SetVariableRequest is the body for storing a collected field value.
type SetVariableRequest struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// HandleSetVariable stores a collected field on the session so the next
// reconciliation pass can proceed past a gap fill.
// POST /api/v1/sessions/{session}/variables
func (h *SessionHandler) HandleSetVariable(w http.ResponseWriter, r *http.Request) {
	var req SetVariableRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Field == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "field is required", h.logger)
		return
	}

	session, err := h.sessions.GetSession(r.Context(), r.PathValue("session"))
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	if session.Variables == nil {
		session.Variables = make(map[string]any)
	}
	session.Variables[req.Field] = req.Value

	if err := h.sessions.SaveSession(r.Context(), session); err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	WriteSuccess(w, session)
}
