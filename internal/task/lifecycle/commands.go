package lifecycle

import (
	"context"

	"apitask/internal/eventbus"
	"apitask/internal/task/cronexpr"
	"apitask/internal/task/model"
	logx "apitask/pkg/logx"
)

// CreateOrUpdate inserts a new task (spec.ID == 0) or edits an existing one.
//
// All validation happens before any side effect. Editing the schedule of a
// scheduled task reschedules its job and leaves it Running.
func (c *Controller) CreateOrUpdate(ctx context.Context, spec model.TaskSpec) (model.Task, error) {
	n, err := spec.Validate()
	if err != nil {
		return model.Task{}, err
	}
	tr, err := cronexpr.Parse(spec.Schedule)
	if err != nil {
		return model.Task{}, err
	}
	if spec.ID == 0 {
		return c.create(ctx, spec, n, tr)
	}
	return c.update(ctx, spec, n, tr)
}

func (c *Controller) create(ctx context.Context, spec model.TaskSpec, n *model.Notification, tr cronexpr.Trigger) (model.Task, error) {
	taken, err := c.store.NameTaken(ctx, spec.Name, 0)
	if err != nil {
		return model.Task{}, err
	}
	if taken {
		return model.Task{}, model.ErrDuplicateName
	}
	var t model.Task
	spec.Apply(&t, n)
	t.Schedule = tr.Expr()
	t, err = c.store.CreateTask(ctx, t)
	if err != nil {
		return model.Task{}, err
	}
	c.log.Info("task created", logx.TaskID(t.ID), logx.String("name", t.Name), logx.String("project", t.ProjectName))
	c.publish(eventbus.TaskCreated, t)
	return t, nil
}

func (c *Controller) update(ctx context.Context, spec model.TaskSpec, n *model.Notification, tr cronexpr.Trigger) (model.Task, error) {
	unlock := c.locks.Lock(spec.ID)
	defer unlock()

	cur, err := c.store.GetTask(ctx, spec.ID)
	if err != nil {
		return model.Task{}, err
	}
	taken, err := c.store.NameTaken(ctx, spec.Name, spec.ID)
	if err != nil {
		return model.Task{}, err
	}
	if taken {
		return model.Task{}, model.ErrDuplicateName
	}

	next := cur
	spec.Apply(&next, n)
	next.Schedule = tr.Expr()

	rescheduled := false
	if cur.Status.Scheduled() && next.Schedule != cur.Schedule {
		if err := c.sched.Reschedule(cur.JobID(), tr); err != nil {
			return model.Task{}, schedErr(err)
		}
		rescheduled = true
		next.Status = model.StatusRunning
	}

	saved, err := c.store.UpdateTask(ctx, next)
	if err != nil {
		if rescheduled {
			c.inconsistent(cur, "update", err, c.restoreTrigger(cur))
		}
		return model.Task{}, err
	}
	if cur.Status.Scheduled() && saved.Name != cur.Name {
		if err := c.sched.Rename(cur.JobID(), saved.Name); err != nil {
			c.log.Warn("job not renamed", logx.TaskID(saved.ID), logx.Err(err))
		}
	}
	c.log.Info("task updated", logx.TaskID(saved.ID), logx.Bool("rescheduled", rescheduled))
	c.publish(eventbus.TaskUpdated, saved)
	return saved, nil
}

// restoreTrigger puts the job back to what cur describes.
func (c *Controller) restoreTrigger(cur model.Task) error {
	tr, err := cronexpr.Parse(cur.Schedule)
	if err != nil {
		return err
	}
	if err := c.sched.Reschedule(cur.JobID(), tr); err != nil {
		return err
	}
	if cur.Status == model.StatusPaused {
		return c.sched.Pause(cur.JobID())
	}
	return nil
}

// Start registers the task's job and marks it Running.
//
// A Running or Paused task whose job is missing (a failed restore) gets its
// job registered again in the state its status describes.
func (c *Controller) Start(ctx context.Context, id int64) error {
	unlock := c.locks.Lock(id)
	defer unlock()

	t, err := c.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.Scheduled() {
		if _, ok := c.sched.Info(t.JobID()); !ok {
			if err := c.readd(t); err != nil {
				return schedErr(err)
			}
			c.log.Warn("task job was missing; registered again", logx.TaskID(id), logx.String("status", t.Status.String()))
			return nil
		}
	}
	next, err := t.Status.Transition(model.CmdStart)
	if err != nil {
		return err
	}
	tr, err := cronexpr.Parse(t.Schedule)
	if err != nil {
		return err
	}
	if err := c.sched.Add(t.JobID(), tr, c.job(t)); err != nil {
		return schedErr(err)
	}
	if err := c.store.SetStatus(ctx, id, next); err != nil {
		c.rollback(t, "start", err, func() error { return c.sched.Remove(t.JobID()) })
		return err
	}
	t.Status = next
	c.log.Info("task started", logx.TaskID(id), logx.String("expr", t.Schedule))
	c.publish(eventbus.TaskStarted, t)
	return nil
}

// Pause suspends a Running task's job.
func (c *Controller) Pause(ctx context.Context, id int64) error {
	return c.toggle(ctx, id, model.CmdPause, eventbus.TaskPaused)
}

// Resume reactivates a Paused task's job with its original trigger.
func (c *Controller) Resume(ctx context.Context, id int64) error {
	return c.toggle(ctx, id, model.CmdResume, eventbus.TaskResumed)
}

func (c *Controller) toggle(ctx context.Context, id int64, cmd model.Command, evt string) error {
	unlock := c.locks.Lock(id)
	defer unlock()

	t, err := c.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	next, err := t.Status.Transition(cmd)
	if err != nil {
		return err
	}
	apply, undo := c.sched.Pause, c.sched.Resume
	if cmd == model.CmdResume {
		apply, undo = c.sched.Resume, c.sched.Pause
	}
	if err := apply(t.JobID()); err != nil {
		return schedErr(err)
	}
	if err := c.store.SetStatus(ctx, id, next); err != nil {
		c.rollback(t, cmd.String(), err, func() error { return undo(t.JobID()) })
		return err
	}
	t.Status = next
	c.log.Info("task "+cmd.String()+"d", logx.TaskID(id))
	c.publish(evt, t)
	return nil
}

// Remove destroys the task's job and returns it to Created.
//
// A task whose job is missing fails with model.ErrTaskNotSchedulable and keeps
// its status.
func (c *Controller) Remove(ctx context.Context, id int64) error {
	unlock := c.locks.Lock(id)
	defer unlock()

	t, err := c.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	next, err := t.Status.Transition(model.CmdRemove)
	if err != nil {
		return err
	}
	if err := c.sched.Remove(t.JobID()); err != nil {
		return schedErr(err)
	}
	if err := c.store.SetStatus(ctx, id, next); err != nil {
		c.rollback(t, "remove", err, func() error { return c.readd(t) })
		return err
	}
	t.Status = next
	c.log.Info("task schedule removed", logx.TaskID(id))
	c.publish(eventbus.TaskRemoved, t)
	return nil
}

// readd registers t's job again in the state its status describes.
func (c *Controller) readd(t model.Task) error {
	tr, err := cronexpr.Parse(t.Schedule)
	if err != nil {
		return err
	}
	if t.Status == model.StatusPaused {
		return c.sched.AddPaused(t.JobID(), tr, c.job(t))
	}
	return c.sched.Add(t.JobID(), tr, c.job(t))
}

// Delete removes a Created task's row.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	unlock := c.locks.Lock(id)
	defer unlock()

	t, err := c.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if _, err := t.Status.Transition(model.CmdDelete); err != nil {
		return err
	}
	if err := c.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.log.Info("task deleted", logx.TaskID(id), logx.String("name", t.Name))
	c.publish(eventbus.TaskDeleted, t)
	return nil
}

// List returns one page of tasks and the total count.
func (c *Controller) List(ctx context.Context, q model.ListQuery) ([]model.Task, int, error) {
	return c.store.ListTasks(ctx, q)
}

// Get returns the task and, when one exists, its live job.
func (c *Controller) Get(ctx context.Context, id int64) (Detail, error) {
	t, err := c.store.GetTask(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Task: t}
	if info, ok := c.sched.Info(t.JobID()); ok {
		d.Job = &info
	}
	return d, nil
}

func (c *Controller) rollback(t model.Task, op string, storeErr error, undo func() error) {
	if err := undo(); err != nil {
		c.inconsistent(t, op, storeErr, err)
		return
	}
	c.log.Warn("store write failed; scheduler change rolled back", logx.TaskID(t.ID), logx.String("op", op), logx.Err(storeErr))
}
