package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"apitask/internal/eventbus"
	"apitask/internal/report"
	"apitask/internal/runner"
	"apitask/internal/storage"
	"apitask/internal/task/cronexpr"
	"apitask/internal/task/model"
	"apitask/internal/task/scheduler"
	kit "apitask/internal/transport"
	logx "apitask/pkg/logx"
)

// Store is the persisted side of a task.
type Store interface {
	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	UpdateTask(ctx context.Context, t model.Task) (model.Task, error)
	SetStatus(ctx context.Context, id int64, st model.Status) error
	GetTask(ctx context.Context, id int64) (model.Task, error)
	NameTaken(ctx context.Context, name string, exceptID int64) (bool, error)
	DeleteTask(ctx context.Context, id int64) error
	ListTasks(ctx context.Context, q model.ListQuery) ([]model.Task, int, error)
	ListScheduled(ctx context.Context) ([]model.Task, error)
	SaveReport(ctx context.Context, r storage.Report) (int64, error)
}

// Scheduler is the live side of a task.
type Scheduler interface {
	Add(id string, tr cronexpr.Trigger, job scheduler.Job) error
	AddPaused(id string, tr cronexpr.Trigger, job scheduler.Job) error
	Rename(id, name string) error
	Reschedule(id string, tr cronexpr.Trigger) error
	Pause(id string) error
	Resume(id string) error
	Remove(id string) error
	Info(id string) (scheduler.Info, bool)
}

type Resolver interface {
	Resolve(ctx context.Context, t model.Task) ([]int64, error)
}

type Runner interface {
	RunCases(ctx context.Context, project string, caseIDs []int64) (runner.Result, error)
}

type Notifier interface {
	Notify(ctx context.Context, m kit.Message) error
	HasChannel(ch kit.Channel) bool
}

// Renderer turns a run into a report artifact.
type Renderer func(in report.Input) (report.Artifact, error)

// Deps are the collaborators of a Controller. Notifier may be nil.
type Deps struct {
	Store     Store
	Scheduler Scheduler
	Resolver  Resolver
	Runner    Runner
	Notifier  Notifier
	Render    Renderer
}

type Controller struct {
	store    Store
	sched    Scheduler
	resolver Resolver
	runner   Runner
	notifier Notifier
	render   Renderer

	log   logx.Logger
	bus   eventbus.Bus
	locks *taskLocks
}

// Detail is a task plus its live job, if any.
type Detail struct {
	Task model.Task
	Job  *scheduler.Info
}

func New(d Deps, log logx.Logger, bus eventbus.Bus) (*Controller, error) {
	if d.Store == nil || d.Scheduler == nil || d.Resolver == nil || d.Runner == nil {
		return nil, errors.New("lifecycle: store, scheduler, resolver and runner are required")
	}
	if d.Render == nil {
		d.Render = report.Render
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Controller{
		store:    d.Store,
		sched:    d.Scheduler,
		resolver: d.Resolver,
		runner:   d.Runner,
		notifier: d.Notifier,
		render:   d.Render,
		log:      log,
		bus:      bus,
		locks:    newTaskLocks(),
	}, nil
}

func (c *Controller) publish(typ string, t model.Task) {
	c.bus.Publish(eventbus.Event{Type: typ, Data: eventbus.TaskChange{TaskID: t.ID, Name: t.Name, Status: t.Status.String()}})
}

// schedErr maps a scheduler failure onto the task error taxonomy.
func schedErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, scheduler.ErrDuplicateJob):
		return model.ErrJobAlreadyRunning
	case errors.Is(err, scheduler.ErrJobNotFound):
		return model.ErrTaskNotSchedulable
	default:
		return fmt.Errorf("%w: %v", model.ErrSchedulerInternal, err)
	}
}

// inconsistent logs a scheduler/store split that rollback could not repair.
func (c *Controller) inconsistent(t model.Task, op string, storeErr, rollbackErr error) {
	c.log.Error("task state inconsistent; reconcile required",
		logx.TaskID(t.ID),
		logx.String("op", op),
		logx.String("status", t.Status.String()),
		logx.Any("store_err", storeErr.Error()),
		logx.Err(rollbackErr),
	)
}
