package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"apitask/internal/eventbus"
	rtsup "apitask/internal/runtime/supervisor"
	kit "apitask/internal/transport"
	logx "apitask/pkg/logx"
)

var (
	ErrDisabled       = errors.New("notifier disabled")
	ErrQueueFull      = errors.New("notifier queue full")
	ErrStopped        = errors.New("notifier stopped")
	ErrUnknownChannel = errors.New("notifier channel not configured")
)

type job struct {
	m   kit.Message
	key string
}

// Service implements an async notification pipeline:
// queue + worker pool + rate limit + retry + breaker + dedup.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	senders map[kit.Channel]kit.Sender
	bus     eventbus.Bus
	store   DedupStore

	cfg      Config
	limiter  *rate.Limiter
	breakers *breakerRegistry

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	seen      dedupCache
	persistCh chan dedupMark

	hmu     sync.Mutex
	history []HistoryItem
}

// New builds a stopped service. store may be nil.
func New(cfg Config, senders []kit.Sender, log logx.Logger, bus eventbus.Bus, store DedupStore) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Service{
		log:     log,
		senders: map[kit.Channel]kit.Sender{},
		bus:     bus,
		store:   store,
	}
	for _, snd := range senders {
		if snd != nil {
			s.senders[snd.Channel()] = snd
		}
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// HasChannel reports whether messages for ch can be delivered.
func (s *Service) HasChannel(ch kit.Channel) bool {
	s.mu.Lock()
	_, ok := s.senders[ch]
	s.mu.Unlock()
	return ok
}

// Apply swaps rate, retry and dedup knobs. Queue size and worker count
// take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	prev := s.cfg
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	if s.breakers == nil || prev.BreakerFailures != cfg.BreakerFailures || prev.BreakerCooldown != cfg.BreakerCooldown {
		s.breakers = newBreakerRegistry(cfg.BreakerFailures, cfg.BreakerCooldown, s.log)
	}
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	// If stopping, wait for it to finish before restarting.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	if s.cfg.PersistDedup && s.store != nil {
		s.persistCh = make(chan dedupMark, 1024)
	}
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		// Delivery is best-effort; a failing worker must not take the process down.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	pch := s.persistCh
	st := s.store
	s.mu.Unlock()

	if pch != nil {
		sup.GoRestart("dedup.persist", func(c context.Context) error {
			s.persistLoop(c, pch, st)
			return s.exitErr(c, "dedup persist loop")
		}, rtsup.WithPublishFirstError(true))
	}
	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return s.exitErr(c, "worker")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("notifier started", logx.Int("workers", workers), logx.Int("channels", len(s.senders)))
}

// exitErr turns a loop return into a restart decision: nil while stopping,
// an error (restart) otherwise.
func (s *Service) exitErr(ctx context.Context, what string) error {
	s.mu.Lock()
	stopping := s.stopDone != nil
	s.mu.Unlock()
	if stopping || ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("notifier %s exited unexpectedly", what)
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	pch := s.persistCh
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// In-flight Notify calls finish before the queue closes so workers can drain it.
		s.sendWG.Wait()
		close(q)
		if pch != nil {
			close(pch)
		}
		if sup != nil {
			_ = sup.Wait(context.Background())
		}

		s.mu.Lock()
		s.queue = nil
		s.persistCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Notify queues m for delivery. A nil error means queued or deduplicated,
// not delivered.
func (s *Service) Notify(ctx context.Context, m kit.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if _, ok := s.senders[m.Channel]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownChannel, m.Channel)
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window := s.cfg.DedupWindow
	maxEntries := s.cfg.DedupMaxEntries
	var st DedupStore
	if s.cfg.PersistDedup {
		st = s.store
	}
	pch := s.persistCh
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	key := dedupKey(m)
	if window > 0 && !s.claim(ctx, key, window, maxEntries, st, pch) {
		s.publish(eventbus.NotifierDeduped, m, key, nil)
		return nil
	}

	select {
	case q <- job{m: m, key: key}:
		return nil
	default:
		s.publish(eventbus.NotifierDropped, m, key, ErrQueueFull)
		s.log.Warn("notification dropped", logx.String("channel", string(m.Channel)), logx.Err(ErrQueueFull))
		return ErrQueueFull
	}
}

func (s *Service) publish(typ string, m kit.Message, key string, err error) {
	now := time.Now()
	ev := NotificationEvent{Channel: m.Channel, Recipients: len(m.To), Key: key, At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

// BreakerStates reports the circuit state per channel that has sent at least once.
func (s *Service) BreakerStates() map[string]string {
	s.mu.Lock()
	br := s.breakers
	s.mu.Unlock()
	return br.States()
}
