package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/convoflow/flowmigrate/migration"
	"github.com/convoflow/flowmigrate/types"
)

// =============================================================================
// Plan handler
// =============================================================================

// PlanHandler serves the migration plan lifecycle: generation, review,
// policy tuning, deployment, and cleanup.
type PlanHandler struct {
	planner  *migration.Planner
	deployer *migration.Deployer
	store    migration.ScenarioStore
	logger   *zap.Logger
}

// NewPlanHandler creates a plan handler.
func NewPlanHandler(planner *migration.Planner, deployer *migration.Deployer, store migration.ScenarioStore, logger *zap.Logger) *PlanHandler {
	return &PlanHandler{
		planner:  planner,
		deployer: deployer,
		store:    store,
		logger:   logger.With(zap.String("component", "plan_handler")),
	}
}

// CreatePlanRequest is the body for plan generation. The steps describe
// the proposed next version of the scenario graph.
type CreatePlanRequest struct {
	CreatedBy   string               `json:"created_by"`
	Name        string               `json:"name"`
	Version     int                  `json:"version"`
	EntryStepID string               `json:"entry_step_id"`
	Steps       []types.ScenarioStep `json:"steps"`
}

// ReviewRequest carries the reviewer identity for approve/reject.
type ReviewRequest struct {
	ReviewedBy string `json:"reviewed_by"`
}

// UpdatePoliciesRequest replaces per-anchor policies on a pending plan.
type UpdatePoliciesRequest struct {
	Policies map[types.ContentHash]types.AnchorMigrationPolicy `json:"policies"`
}

// CleanupRequest bounds terminal-plan retention for a cleanup run.
type CleanupRequest struct {
	RetentionDays int `json:"retention_days"`
}

// HandleCreate generates a migration plan from the current version to
// the proposed graph.
// POST /api/v1/tenants/{tenant}/scenarios/{scenario}/plans
func (h *PlanHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	tenantID := r.PathValue("tenant")
	scenarioID := r.PathValue("scenario")

	var req CreatePlanRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.Version <= 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "version must be positive", h.logger)
		return
	}
	if len(req.Steps) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "steps must not be empty", h.logger)
		return
	}

	v2 := &types.Scenario{
		ID:          scenarioID,
		TenantID:    tenantID,
		Name:        req.Name,
		Version:     req.Version,
		EntryStepID: req.EntryStepID,
		Steps:       req.Steps,
	}

	plan, err := h.planner.GeneratePlan(r.Context(), tenantID, scenarioID, v2, req.CreatedBy)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	WriteCreated(w, plan)
}

// HandleGet returns one plan.
// GET /api/v1/tenants/{tenant}/plans/{plan}
func (h *PlanHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	plan, err := h.store.GetMigrationPlan(r.Context(), r.PathValue("tenant"), r.PathValue("plan"))
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, plan)
}

// HandleList returns a tenant's plans, optionally narrowed to one
// scenario.
// GET /api/v1/tenants/{tenant}/plans?scenario=order-flow
func (h *PlanHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	plans, err := h.store.ListMigrationPlans(r.Context(), r.PathValue("tenant"), r.URL.Query().Get("scenario"))
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, plans)
}

// HandleApprove approves a pending plan.
// POST /api/v1/tenants/{tenant}/plans/{plan}/approve
func (h *PlanHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	plan, err := h.planner.ApprovePlan(r.Context(), r.PathValue("tenant"), r.PathValue("plan"), req.ReviewedBy)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, plan)
}

// HandleReject rejects a pending plan.
// POST /api/v1/tenants/{tenant}/plans/{plan}/reject
func (h *PlanHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	plan, err := h.planner.RejectPlan(r.Context(), r.PathValue("tenant"), r.PathValue("plan"), req.ReviewedBy)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, plan)
}

// HandleSupersede marks an approved plan as superseded.
// POST /api/v1/tenants/{tenant}/plans/{plan}/supersede
func (h *PlanHandler) HandleSupersede(w http.ResponseWriter, r *http.Request) {
	plan, err := h.planner.SupersedePlan(r.Context(), r.PathValue("tenant"), r.PathValue("plan"))
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, plan)
}

// HandleUpdatePolicies replaces per-anchor policies on a pending plan.
// PUT /api/v1/tenants/{tenant}/plans/{plan}/policies
func (h *PlanHandler) HandleUpdatePolicies(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req UpdatePoliciesRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	plan, err := h.planner.UpdatePolicies(r.Context(), r.PathValue("tenant"), r.PathValue("plan"), req.Policies)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, plan)
}

// HandleDeploy deploys an approved plan, marking matching sessions.
// POST /api/v1/tenants/{tenant}/plans/{plan}/deploy
func (h *PlanHandler) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	status, err := h.deployer.Deploy(r.Context(), r.PathValue("tenant"), r.PathValue("plan"))
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, status)
}

// HandleDeploymentStatus returns deployment progress for a plan.
// GET /api/v1/tenants/{tenant}/plans/{plan}/status
func (h *PlanHandler) HandleDeploymentStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.deployer.GetDeploymentStatus(r.Context(), r.PathValue("tenant"), r.PathValue("plan"))
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, status)
}

// HandleCleanup removes terminal plans older than the retention window.
// POST /api/v1/tenants/{tenant}/plans/cleanup
func (h *PlanHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.RetentionDays < 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "retention_days must not be negative", h.logger)
		return
	}

	removed, err := h.deployer.CleanupOldPlans(r.Context(), r.PathValue("tenant"), time.Duration(req.RetentionDays)*24*time.Hour)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]int{"removed": removed})
}
