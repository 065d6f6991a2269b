package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"apitask/internal/report"
	"apitask/internal/storage"
	"apitask/internal/task/engine"
	"apitask/internal/task/model"
	"apitask/internal/task/scheduler"
	kit "apitask/internal/transport"
	logx "apitask/pkg/logx"
)

// RunNow runs the task's cases inline and returns the stored report id.
// It bypasses the scheduler and sends no notifications.
func (c *Controller) RunNow(ctx context.Context, id int64) (int64, error) {
	t, err := c.store.GetTask(ctx, id)
	if err != nil {
		return 0, err
	}
	return c.execute(ctx, t, storage.OriginManual, false)
}

// job is the payload registered with the scheduler. It captures only the id;
// everything else is read when the job fires.
func (c *Controller) job(t model.Task) scheduler.Job {
	id := t.ID
	return scheduler.Job{
		Name: t.Name,
		Run:  func(ctx context.Context) error { return c.fire(ctx, id) },
	}
}

func (c *Controller) fire(ctx context.Context, id int64) error {
	t, err := c.store.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return engine.NoRetry(err)
		}
		return err
	}
	_, err = c.execute(ctx, t, storage.OriginSchedule, true)
	if errors.Is(err, model.ErrProjectNotFound) {
		return engine.NoRetry(err)
	}
	return err
}

func (c *Controller) execute(ctx context.Context, t model.Task, origin string, notify bool) (int64, error) {
	log := c.log.With(logx.TaskID(t.ID), logx.String("origin", origin))

	ids, err := c.resolver.Resolve(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("resolve cases: %w", err)
	}
	res, err := c.runner.RunCases(ctx, t.ProjectName, ids)
	if err != nil {
		return 0, fmt.Errorf("run cases: %w", err)
	}

	in := report.Input{TaskName: t.Name, Project: t.ProjectName, Origin: origin, At: res.Started, Result: res}
	if in.At.IsZero() {
		in.At = time.Now()
	}
	art, err := c.render(in)
	if err != nil {
		log.Warn("report render failed", logx.Err(err))
		art = report.Artifact{Title: report.Title(in), Summary: report.Summary(in)}
	}

	reportID, err := c.store.SaveReport(ctx, storage.Report{
		TaskID:      t.ID,
		ProjectName: t.ProjectName,
		Name:        art.Title,
		Origin:      origin,
		RunID:       res.RunID,
		Total:       res.Total,
		Passed:      res.Passed,
		Failed:      res.Failed,
		Duration:    res.Duration,
		ContentType: art.ContentType,
		Body:        art.Body,
	})
	if err != nil {
		return 0, fmt.Errorf("save report: %w", err)
	}
	log.Info("task run finished",
		logx.Int64("report_id", reportID),
		logx.Int("total", res.Total),
		logx.Int("failed", res.Failed),
		logx.Duration("took", res.Duration),
	)

	if notify {
		c.notify(ctx, t, art, reportID)
	}
	return reportID, nil
}

// notify is best-effort: every failure is logged and dropped.
func (c *Controller) notify(ctx context.Context, t model.Task, art report.Artifact, reportID int64) {
	if c.notifier == nil {
		return
	}
	log := c.log.With(logx.TaskID(t.ID), logx.Int64("report_id", reportID))

	if n := t.Notification; n != nil && len(art.Body) > 0 && c.notifier.HasChannel(kit.ChannelEmail) {
		err := c.notifier.Notify(ctx, kit.Message{
			Channel:    kit.ChannelEmail,
			From:       n.Sender,
			Credential: n.Credential,
			To:         n.Recipients,
			Subject:    art.Title,
			HTML:       string(art.Body),
			Text:       art.Summary,
		})
		if err != nil {
			log.Warn("report mail not queued", logx.Err(err))
		}
	}
	if c.notifier.HasChannel(kit.ChannelTelegram) {
		err := c.notifier.Notify(ctx, kit.Message{
			Channel: kit.ChannelTelegram,
			Text:    fmt.Sprintf("%s\nreport #%d", art.Summary, reportID),
		})
		if err != nil {
			log.Warn("run summary not queued", logx.Err(err))
		}
	}
}
