// Package lifecycle is the Task Lifecycle Controller.
//
// It is the only writer that touches both the task store and the scheduler.
// Every command takes a per-task lock, validates before any side effect,
// mutates the scheduler first and the store second, and undoes the
// scheduler change when the store write fails.
//
// A firing loads the task fresh, resolves its cases, runs them, stores a
// report and hands notifications to the notifier. Notification failures
// never fail the run.
package lifecycle
