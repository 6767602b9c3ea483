// Package memstore provides in-memory implementations of the migration
// store interfaces. Intended for tests, examples, and single-process
// deployments without a database; data does not survive a restart.
package memstore
