package engine

import (
	"errors"

	"github.com/cenkalti/backoff/v4"
)

var (
	ErrStopped     = errors.New("task engine stopped")
	ErrStopping    = errors.New("task engine stopping")
	ErrQueueFull   = errors.New("task engine queue full")
	ErrOverlapSkip = errors.New("run skipped: previous run still in flight")
)

// NoRetry marks err as permanent: the run fails on this attempt even when
// retries remain. The recorded error is err itself.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

func IsNoRetry(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}
