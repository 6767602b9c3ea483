/*
Package gormstore persists scenarios, migration plans, and sessions
through GORM, satisfying the migration package's store interfaces.

Graphs and plans are stored as JSON payloads next to a few indexed
columns: the version pair for the planner's duplicate guard and chain
walks, and the denormalized active-step content hash that lets deployment
select the sessions sitting at an anchor with a single query.

Every scenario write records the graph checksum; every load recomputes
and verifies it, surfacing silent corruption as a CHECKSUM_MISMATCH
error instead of a wrong migration. An optional Redis cache fronts
scenario and plan reads.

The package runs against PostgreSQL in production and the pure-Go SQLite
driver in tests and single-node setups.
*/
package gormstore
