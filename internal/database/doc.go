/*
Package database manages the GORM connection pool backing the scenario,
plan, and session stores.

PoolManager wraps a *gorm.DB and its underlying *sql.DB: it applies pool
sizing, runs a background ping loop when configured, and offers
WithTransaction plus a retrying variant for the transient failure classes
(deadlocks, serialization failures, dropped connections) a busy Postgres
produces.

This package is internal and should not be imported by external projects.
*/
package database
