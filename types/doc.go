// Package types defines the shared data model for scenario migration:
// scenario graphs, live sessions, migration plans, and the structured
// error type used across the operator-facing surfaces.
//
// The package has no dependencies on the rest of the module so that
// stores, the migration core, and API handlers can all share it freely.
package types
