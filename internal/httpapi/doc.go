// Package httpapi exposes the task lifecycle operations, reports and run
// history over HTTP (echo), plus optional net/http/pprof routes.
//
// Success bodies are {"data": ...}; failures are
// {"error": {"kind": "...", "message": "..."}} where kind follows the task
// error taxonomy (validation, state_conflict, not_found, scheduler_internal).
package httpapi
