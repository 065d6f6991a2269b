package storage

import (
	"errors"
	"time"
)

var (
	ErrClosed         = errors.New("storage closed")
	ErrReportNotFound = errors.New("report not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Report origins.
const (
	OriginSchedule = "schedule"
	OriginManual   = "manual"
)

// Report is one persisted run of a task's cases.
type Report struct {
	ID          int64
	TaskID      int64 // 0 when the run was not tied to a stored task
	ProjectName string
	Name        string
	Origin      string
	RunID       string
	Total       int
	Passed      int
	Failed      int
	Duration    time.Duration
	ContentType string
	Body        []byte
	CreatedAt   time.Time
}
