// Package handlers contains the HTTP handlers for the migration API:
// scenario publishing, plan lifecycle (generate, approve, reject,
// supersede, policies, deploy, cleanup), session reconciliation, and
// health probes. Handlers use a shared JSON envelope and map coded
// domain errors to HTTP statuses in one place.
package handlers
