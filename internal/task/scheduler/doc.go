// Package scheduler is the Scheduler Engine: it owns one live cron job per
// job id and enqueues each firing into the task engine.
//
// The scheduler only triggers. Execution, overlap gating and run history
// belong to internal/task/engine, so a firing never runs on the caller of
// Add, Pause or any other mutation.
package scheduler
