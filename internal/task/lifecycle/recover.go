package lifecycle

import (
	"context"

	logx "apitask/pkg/logx"
)

// Recover re-registers the jobs of every Running or Paused task. It runs once
// after the scheduler starts. A task that cannot be restored keeps its status
// and is logged; a later Start registers it again.
func (c *Controller) Recover(ctx context.Context) (restored int, err error) {
	tasks, err := c.store.ListScheduled(ctx)
	if err != nil {
		return 0, err
	}
	for _, t := range tasks {
		unlock := c.locks.Lock(t.ID)
		err := c.readd(t)
		unlock()
		if err != nil {
			c.log.Error("task job not restored; reconcile required",
				logx.TaskID(t.ID), logx.String("status", t.Status.String()), logx.Err(err))
			continue
		}
		restored++
	}
	if len(tasks) > 0 {
		c.log.Info("scheduled tasks restored", logx.Int("restored", restored), logx.Int("total", len(tasks)))
	}
	return restored, nil
}
