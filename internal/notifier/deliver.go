package notifier

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"apitask/internal/eventbus"
	kit "apitask/internal/transport"
	logx "apitask/pkg/logx"
)

const historyMax = 300

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, j)
		}
	}
}

// deliver sends one job through the channel's limiter, breaker and retry
// policy. An open breaker or a permanent sender error ends retries.
func (s *Service) deliver(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim, snd := s.cfg, s.limiter, s.senders[j.m.Channel]
	cb := s.breakers.Get(string(j.m.Channel))
	s.mu.Unlock()
	if snd == nil {
		return
	}

	attempts := 0
	send := func() error {
		attempts++
		if err := lim.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		_, err := cb.Execute(func() (any, error) {
			sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
			defer cancel()
			return nil, snd.Send(sctx, j.m)
		})
		if err == nil {
			return nil
		}
		if !retryable(ctx, err) {
			return backoff.Permanent(err)
		}
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempts), logx.Int("max", cfg.RetryMax+1))
		return err
	}

	err := backoff.Retry(send, backoff.WithContext(retryPolicy(cfg), ctx))
	s.remember(j.m, err)
	if err != nil {
		s.log.Warn("notification failed", logx.String("channel", string(j.m.Channel)), logx.Int("attempts", attempts), logx.Err(err))
		s.publish(eventbus.NotifierFailed, j.m, j.key, err)
		return
	}
	s.publish(eventbus.NotifierSent, j.m, j.key, nil)
}

func retryable(ctx context.Context, err error) bool {
	var pe *kit.PermanentError
	switch {
	case ctx.Err() != nil,
		errors.As(err, &pe),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return false
	}
	return true
}

func retryPolicy(cfg Config) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.RetryBase
	b.MaxInterval = cfg.RetryMaxDelay
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.3
	return backoff.WithMaxRetries(b, uint64(cfg.RetryMax))
}

// Snapshot returns the most recent delivery outcomes, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) remember(m kit.Message, err error) {
	it := HistoryItem{At: time.Now(), Channel: m.Channel, Subject: m.Subject}
	if it.Subject == "" {
		it.Subject = firstLine(m.Text)
	}
	if err != nil {
		it.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if n := len(s.history) - historyMax; n > 0 {
		s.history = append(s.history[:0:0], s.history[n:]...)
	}
	s.hmu.Unlock()
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(s, "\n")
	if r := []rune(s); len(r) > 120 {
		s = string(r[:120])
	}
	return s
}
