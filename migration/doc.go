// Package migration implements anchor-based scenario migration: diffing two
// versions of a conversation-flow graph, planning and approving the
// migration, deploying it to live sessions, and reconciling each affected
// session's position at its next turn.
//
// The package is organized around five cooperating components:
//
//   - Hashing (HashStep, HashScenario): content-addressed step identity.
//   - Differ: anchor detection and TransformationMap assembly.
//   - Planner: the approve/reject plan state machine.
//   - Deployer: idempotent marking of live sessions.
//   - Executor and CompositeMapper: per-turn session reconciliation,
//     including the multi-version "skipped releases" case.
//
// Store dependencies are injected as interfaces; see ScenarioStore,
// SessionStore, and FieldResolver.
package migration
