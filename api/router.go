// Package api assembles the HTTP routing for the migration service.
package api

import (
	"net/http"

	"github.com/convoflow/flowmigrate/api/handlers"
)

// Handlers groups the handler set the router mounts.
type Handlers struct {
	Health   *handlers.HealthHandler
	Scenario *handlers.ScenarioHandler
	Plan     *handlers.PlanHandler
	Session  *handlers.SessionHandler

	// Version metadata served at /version.
	Version   string
	BuildTime string
	GitCommit string
}

// NewRouter mounts every route on a ServeMux. The same routing is used
// by the server binary and the handler tests.
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	if h.Health != nil {
		mux.HandleFunc("GET /health", h.Health.HandleHealth)
		mux.HandleFunc("GET /healthz", h.Health.HandleHealth)
		mux.HandleFunc("GET /ready", h.Health.HandleReady)
		mux.HandleFunc("GET /readyz", h.Health.HandleReady)
		mux.HandleFunc("GET /version", h.Health.HandleVersion(h.Version, h.BuildTime, h.GitCommit))
	}

	if h.Scenario != nil {
		mux.HandleFunc("POST /api/v1/tenants/{tenant}/scenarios/{scenario}", h.Scenario.HandlePublish)
		mux.HandleFunc("GET /api/v1/tenants/{tenant}/scenarios/{scenario}", h.Scenario.HandleGet)
	}

	if h.Plan != nil {
		mux.HandleFunc("POST /api/v1/tenants/{tenant}/scenarios/{scenario}/plans", h.Plan.HandleCreate)
		mux.HandleFunc("GET /api/v1/tenants/{tenant}/plans", h.Plan.HandleList)
		mux.HandleFunc("POST /api/v1/tenants/{tenant}/plans/cleanup", h.Plan.HandleCleanup)
		mux.HandleFunc("GET /api/v1/tenants/{tenant}/plans/{plan}", h.Plan.HandleGet)
		mux.HandleFunc("POST /api/v1/tenants/{tenant}/plans/{plan}/approve", h.Plan.HandleApprove)
		mux.HandleFunc("POST /api/v1/tenants/{tenant}/plans/{plan}/reject", h.Plan.HandleReject)
		mux.HandleFunc("POST /api/v1/tenants/{tenant}/plans/{plan}/supersede", h.Plan.HandleSupersede)
		mux.HandleFunc("PUT /api/v1/tenants/{tenant}/plans/{plan}/policies", h.Plan.HandleUpdatePolicies)
		mux.HandleFunc("POST /api/v1/tenants/{tenant}/plans/{plan}/deploy", h.Plan.HandleDeploy)
		mux.HandleFunc("GET /api/v1/tenants/{tenant}/plans/{plan}/status", h.Plan.HandleDeploymentStatus)
	}

	if h.Session != nil {
		mux.HandleFunc("GET /api/v1/sessions/{session}", h.Session.HandleGet)
		mux.HandleFunc("POST /api/v1/sessions/{session}/reconcile", h.Session.HandleReconcile)
		mux.HandleFunc("POST /api/v1/sessions/{session}/variables", h.Session.HandleSetVariable)
	}

	return mux
}
