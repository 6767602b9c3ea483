/*
Package main provides the flowmigrate server binary.

cmd/flowmigrate is the executable entry point for the scenario
migration service. It exposes the HTTP API for scenario publishing,
migration plan lifecycle, deployment, and session reconciliation, plus
a separate Prometheus metrics port.

Subcommands:

  - serve    — start the service (config via YAML file and
    FLOWMIGRATE_* environment variables)
  - migrate  — apply, roll back, or inspect postgres schema migrations
  - version  — print build metadata (injected via ldflags)
  - health   — probe a running instance's /health endpoint

The middleware chain wraps every request with panic recovery, request
IDs, security headers, structured request logging, Prometheus metrics,
and (when telemetry is enabled) OpenTelemetry tracing.
*/
package main
