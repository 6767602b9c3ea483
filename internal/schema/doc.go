// Package schema manages versioned postgres migrations for the store
// tables. Migration SQL is embedded in the binary and applied with
// golang-migrate; a Migrator instance wraps the library with logging,
// context-aware waits, and status reporting.
//
// SQLite deployments do not use this package. They create tables through
// gorm AutoMigrate, which is sufficient for a single-file database that
// never needs rollback.
package schema
