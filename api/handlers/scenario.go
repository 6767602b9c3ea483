package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/convoflow/flowmigrate/migration"
	"github.com/convoflow/flowmigrate/types"
)

// ScenarioPublisher is the store surface the scenario handler needs:
// the read side of migration.ScenarioStore plus publishing.
type ScenarioPublisher interface {
	migration.ScenarioStore
	PublishScenario(ctx context.Context, scenario *types.Scenario) error
}

// =============================================================================
// Scenario handler
// =============================================================================

// ScenarioHandler serves scenario publishing and retrieval.
type ScenarioHandler struct {
	store  ScenarioPublisher
	logger *zap.Logger
}

// NewScenarioHandler creates a scenario handler.
func NewScenarioHandler(store ScenarioPublisher, logger *zap.Logger) *ScenarioHandler {
	return &ScenarioHandler{
		store:  store,
		logger: logger.With(zap.String("component", "scenario_handler")),
	}
}

// PublishScenarioRequest is the body for POST .../scenarios/{scenario}.
type PublishScenarioRequest struct {
	Name        string               `json:"name"`
	Version     int                  `json:"version"`
	EntryStepID string               `json:"entry_step_id"`
	Steps       []types.ScenarioStep `json:"steps"`
}

// HandlePublish publishes a scenario version.
// POST /api/v1/tenants/{tenant}/scenarios/{scenario}
func (h *ScenarioHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	tenantID := r.PathValue("tenant")
	scenarioID := r.PathValue("scenario")

	var req PublishScenarioRequest
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
	if _, ok := stepByID(req.Steps, req.EntryStepID); !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "entry_step_id must name a step", h.logger)
		return
	}

	scenario := &types.Scenario{
		ID:          scenarioID,
		TenantID:    tenantID,
		Name:        req.Name,
		Version:     req.Version,
		EntryStepID: req.EntryStepID,
		Steps:       req.Steps,
	}

	if err := h.store.PublishScenario(r.Context(), scenario); err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	h.logger.Info("scenario published",
		zap.String("tenant", tenantID),
		zap.String("scenario", scenarioID),
		zap.Int("version", req.Version),
	)

	WriteCreated(w, scenario)
}

// HandleGet returns the current or a specific scenario version.
// GET /api/v1/tenants/{tenant}/scenarios/{scenario}?version=N
func (h *ScenarioHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	scenarioID := r.PathValue("scenario")

	var (
		scenario *types.Scenario
		err      error
	)

	if raw := r.URL.Query().Get("version"); raw != "" {
		version, parseErr := strconv.Atoi(raw)
		if parseErr != nil || version <= 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "version must be a positive integer", h.logger)
			return
		}
		scenario, err = h.store.GetScenarioVersion(r.Context(), tenantID, scenarioID, version)
	} else {
		scenario, err = h.store.GetScenario(r.Context(), tenantID, scenarioID)
	}

	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	WriteSuccess(w, scenario)
}

func stepByID(steps []types.ScenarioStep, id string) (*types.ScenarioStep, bool) {
	for i := range steps {
		if steps[i].ID == id {
			return &steps[i], true
		}
	}
	return nil, false
}
