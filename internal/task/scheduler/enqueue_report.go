package scheduler

import (
	"errors"
	"time"

	"apitask/internal/task/engine"
	logx "apitask/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

var errInvalidJob = errors.New("scheduler: job id, trigger and run func are required")

// reportEnqueueError logs a firing the executor refused, at most once per
// throttle window per job.
func (s *Service) reportEnqueueError(id string, err error) {
	// The engine already logs and records overlap skips.
	if errors.Is(err, engine.ErrOverlapSkip) {
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[id]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[id] = now
	s.enqMu.Unlock()

	s.log.Warn("firing not enqueued", logx.String("job", id), logx.Err(err))
}
