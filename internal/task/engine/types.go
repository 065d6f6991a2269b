package engine

import (
	"context"
	"sync/atomic"
	"time"
)

// Config controls the worker pool that executes firings.
type Config struct {
	Workers   int
	QueueSize int

	// DefaultTimeout bounds a run when Task.Timeout is 0. 0 means no bound.
	DefaultTimeout time.Duration

	// MaxQueueDelay drops runs that waited in the queue longer than this. 0 disables.
	MaxQueueDelay time.Duration

	HistorySize int
	RetryMax    int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	c.RetryMax = max(c.RetryMax, 0)
	return c
}

type OverlapPolicy int

const (
	OverlapAllow OverlapPolicy = iota
	OverlapSkipIfRunning
)

// TaskOptions tune one run. RetryMax -1 disables retries; 0 takes Config.RetryMax.
type TaskOptions struct {
	Overlap       OverlapPolicy
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

func (o TaskOptions) resolve(cfg Config) TaskOptions {
	switch {
	case o.RetryMax < 0:
		o.RetryMax = 0
	case o.RetryMax == 0:
		o.RetryMax = cfg.RetryMax
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 15 * time.Second
	}
	if o.Overlap != OverlapSkipIfRunning {
		o.Overlap = OverlapAllow
	}
	return o
}

// gate is held by one run of a key from enqueue until it finishes, so
// "skip if running" also skips while the first run is still queued.
type gate struct{ held atomic.Bool }

func (g *gate) acquire() bool { return g.held.CompareAndSwap(false, true) }

func (g *gate) release() {
	if g != nil {
		g.held.Store(false)
	}
}

// Task is one unit of work. Key groups runs for overlap gating; it defaults to Name.
type Task struct {
	ID      string
	Name    string
	Key     string
	Timeout time.Duration
	Run     func(ctx context.Context) error
	Opt     TaskOptions
}

// Record describes one run. It is both the history entry and the payload
// of run.* bus events. Error is empty for a run that succeeded.
type Record struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Key        string        `json:"key"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error,omitempty"`
}

func recordOf(t Task, at time.Time) Record {
	return Record{ID: t.ID, Name: t.Name, Key: t.Key, Started: at}
}

// Snapshot is a diagnostics view of the engine.
type Snapshot struct {
	Running  bool     `json:"running"`
	Workers  int      `json:"workers"`
	QueueLen int      `json:"queue_len"`
	QueueCap int      `json:"queue_cap"`
	InFlight int64    `json:"in_flight"`
	Skipped  uint64   `json:"skipped"`
	Dropped  uint64   `json:"dropped"`
	History  []Record `json:"history"`
}
