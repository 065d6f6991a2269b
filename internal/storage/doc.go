// Package storage persists tasks, run reports and notifier dedup state in SQLite.
//
// The tasks table is the source of truth for user-facing task status. Scope
// identifiers live in task_scope, one row per id, so their order survives
// without string-encoded lists.
package storage
