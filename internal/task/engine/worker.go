package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"

	"apitask/internal/eventbus"
	logx "apitask/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queuedTask) {
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qt := <-queue:
			s.inFlight.Add(1)
			s.execute(ctx, qt)
			s.inFlight.Add(-1)
		}
	}
}

// execute runs qt with its retry policy. Stop cancels ctx, which also ends
// any backoff wait.
func (s *Service) execute(ctx context.Context, qt queuedTask) {
	rec := recordOf(qt.task, time.Now())
	rec.QueueDelay = max(rec.Started.Sub(qt.enqueuedAt), 0)

	s.mu.Lock()
	maxDelay := s.cfg.MaxQueueDelay
	s.mu.Unlock()
	if maxDelay > 0 && rec.QueueDelay > maxDelay {
		qt.gate.release()
		s.onDropped(rec.Started, qt.task, "stale_queue_delay")
		return
	}

	log := s.log.With(logx.String("task", rec.Name), logx.RunID(rec.ID))
	log.Debug("run started", logx.Duration("queue_delay", rec.QueueDelay))
	s.bus.Publish(eventbus.Event{Type: eventbus.RunStarted, Time: rec.Started, Data: rec})

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = qt.opt.RetryBase
	policy.MaxInterval = qt.opt.RetryMaxDelay
	policy.MaxElapsedTime = 0

	attempt := func() error {
		rec.Attempts++
		return s.runOnce(ctx, qt, log)
	}
	onRetry := func(err error, wait time.Duration) {
		log.Debug("run retry scheduled", logx.Int("attempt", rec.Attempts+1), logx.Duration("delay", wait), logx.Err(err))
	}
	err := backoff.RetryNotify(attempt,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(qt.opt.RetryMax)), ctx),
		onRetry)

	// Release before publishing so a listener reacting to the event can enqueue again.
	qt.gate.release()
	rec.Duration = time.Since(rec.Started)
	if err != nil {
		rec.Error = err.Error()
		log.Warn("run failed", logx.Err(err), logx.Duration("dur", rec.Duration), logx.Int("attempts", rec.Attempts))
		s.finish(eventbus.RunFailed, rec)
		return
	}
	log.Info("run finished", logx.Duration("dur", rec.Duration), logx.Int("attempts", rec.Attempts))
	s.finish(eventbus.RunFinished, rec)
}

// runOnce runs one attempt, converting a panic into an error.
func (s *Service) runOnce(ctx context.Context, qt queuedTask, log logx.Logger) (err error) {
	if qt.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, qt.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error("run panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	return qt.task.Run(ctx)
}
