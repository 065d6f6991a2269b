package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	logx "apitask/pkg/logx"
)

// breakerRegistry holds one circuit breaker per channel.
type breakerRegistry struct {
	mu       sync.Mutex
	failures uint32
	cooldown time.Duration
	log      logx.Logger
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerRegistry(failures int, cooldown time.Duration, log logx.Logger) *breakerRegistry {
	return &breakerRegistry{
		failures: uint32(failures),
		cooldown: cooldown,
		log:      log,
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}
}

func (r *breakerRegistry) Get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     r.cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= r.failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn("notifier breaker state changed",
				logx.String("channel", name), logx.String("from", from.String()), logx.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	r.breakers[name] = cb
	return cb
}

// States reports each known channel's breaker state.
func (r *breakerRegistry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.breakers))
	for k, cb := range r.breakers {
		out[k] = cb.State().String()
	}
	return out
}
