/*
Package metrics provides Prometheus instrumentation for the service,
covering the HTTP API, the migration pipeline, the cache, and the
database pool.

Metrics are registered through promauto under a single namespace, so a
process registers each collector exactly once. The Collector type
implements the migration package's Metrics interface and can be passed
directly to the planner, deployer, and executor.

Pipeline metrics of note:

  - diff_duration_seconds, diff_anchors, diff_deleted_nodes: shape and
    cost of transformation-map computation per scenario.
  - plan_transitions_total: plan lifecycle transitions by status.
  - deployment_sessions_marked_total / _skipped_total: deployment reach.
  - reconciliations_total: reconciliation outcomes by action and reason.
  - reconciliation_checkpoint_blocks_total: migrations deferred because
    the session had already passed a checkpoint.
*/
package metrics
