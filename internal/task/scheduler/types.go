package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"apitask/internal/eventbus"
	"apitask/internal/task/cronexpr"
	"apitask/internal/task/engine"
	logx "apitask/pkg/logx"
)

var (
	ErrDuplicateJob = errors.New("scheduler: job already exists")
	ErrJobNotFound  = errors.New("scheduler: job not found")
)

// Config controls trigger behaviour.
type Config struct {
	Timezone string // IANA name; empty means Local

	// Overlap decides what happens when a job fires while its previous
	// firing is still queued or running.
	Overlap engine.OverlapPolicy

	// RunTimeout bounds one firing. 0 defers to the engine default.
	RunTimeout time.Duration
}

// Executor runs firings off the scheduler goroutine.
type Executor interface {
	Enqueue(t engine.Task) error
	Forget(key string)
}

// Job is the payload a firing executes.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Info describes a live job.
type Info struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Expr   string    `json:"expr"`
	Paused bool      `json:"paused"`
	Next   time.Time `json:"next,omitempty"`
	Prev   time.Time `json:"prev,omitempty"`
}

type jobDef struct {
	id      string
	job     Job
	trigger cronexpr.Trigger
	entryID cron.EntryID // 0 while paused or before Start
	paused  bool
	prev    time.Time
}

type Service struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	loc  *time.Location
	bus  eventbus.Bus
	exec Executor

	c    *cron.Cron
	jobs map[string]*jobDef

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}
