// Package engine is the worker pool that executes scheduled firings.
//
// The scheduler only triggers; every firing is enqueued here and runs on a
// worker independent of the caller. Runs sharing a Key can be gated so a
// slow run is never overlapped by the next firing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"apitask/internal/eventbus"
	rtsup "apitask/internal/runtime/supervisor"
	logx "apitask/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	q        chan queuedTask
	sup      *rtsup.Supervisor
	stopCh   chan struct{}
	stopDone chan struct{}

	gateMu sync.Mutex
	gates  map[string]*gate

	hmu     sync.Mutex
	history []Record

	inFlight atomic.Int64
	skipped  atomic.Uint64
	dropped  atomic.Uint64

	lastDropWarnAt atomic.Int64
}

type queuedTask struct {
	task       Task
	enqueuedAt time.Time
	timeout    time.Duration
	opt        TaskOptions
	gate       *gate
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Service{
		cfg:   cfg.withDefaults(),
		log:   log,
		bus:   bus,
		gates: make(map[string]*gate),
	}
}

// Start launches the workers. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh != nil {
		done := s.stopDone
		s.mu.Unlock()
		if done == nil {
			return
		}
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
		if s.stopCh != nil {
			s.mu.Unlock()
			return
		}
	}

	cfg := s.cfg
	s.q = make(chan queuedTask, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.stopDone = nil
	stopCh, queue := s.stopCh, s.q

	// Worker failures must not take the process down.
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	for i := 0; i < cfg.Workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.worker(c, stopCh, queue)
			select {
			case <-stopCh:
				return context.Canceled
			default:
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}

	s.log.Info("task engine started", logx.Int("workers", cfg.Workers), logx.Int("queue", cap(queue)))
}

// Stop stops the workers, waiting until ctx is done at most.
// Runs still queued are discarded; in-flight runs see their context cancelled.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh == nil {
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
	close(s.stopCh)
	sup, queue := s.sup, s.q
	s.mu.Unlock()

	sup.Cancel()
	go func() {
		_ = sup.Wait(context.Background())
		// Release gates of anything left in the queue so a restart starts clean.
	drain:
		for {
			select {
			case qt := <-queue:
				qt.gate.release()
			default:
				break drain
			}
		}
		s.mu.Lock()
		s.q, s.stopCh, s.stopDone, s.sup = nil, nil, nil, nil
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("task engine stopped")
	case <-ctx.Done():
		s.log.Warn("task engine stop timed out", logx.Err(ctx.Err()))
	}
}

// Enqueue adds t without blocking; a full queue drops it with ErrQueueFull.
func (s *Service) Enqueue(t Task) error {
	return s.enqueue(t)
}

func (s *Service) enqueue(t Task) error {
	if t.Run == nil {
		return errors.New("task Run is nil")
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return errors.New("task Name is required")
	}
	if strings.TrimSpace(t.Key) == "" {
		t.Key = t.Name
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()

	s.mu.Lock()
	cfg, q, stopCh, stopping := s.cfg, s.q, s.stopCh, s.stopDone != nil
	s.mu.Unlock()
	if q == nil || stopCh == nil {
		return ErrStopped
	}
	if stopping {
		return ErrStopping
	}

	qt := queuedTask{task: t, enqueuedAt: now, timeout: t.Timeout, opt: t.Opt.resolve(cfg)}
	if qt.timeout <= 0 {
		qt.timeout = cfg.DefaultTimeout
	}
	if qt.opt.Overlap == OverlapSkipIfRunning {
		g := s.gateFor(t.Key)
		if !g.acquire() {
			s.skipped.Add(1)
			rec := recordOf(t, now)
			rec.Error = "overlap_skip"
			s.finish(eventbus.RunSkipped, rec)
			s.log.Info("run skipped: previous run still in flight", logx.String("task", t.Name), logx.String("key", t.Key))
			return ErrOverlapSkip
		}
		qt.gate = g
	}

	select {
	case q <- qt:
		return nil
	default:
		qt.gate.release()
		s.onDropped(now, t, "queue_full")
		return ErrQueueFull
	}
}

// gateFor returns the overlap gate shared by every run with this key.
func (s *Service) gateFor(key string) *gate {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()
	g := s.gates[key]
	if g == nil {
		g = &gate{}
		s.gates[key] = g
	}
	return g
}

// Forget drops the gate of key once no run holds it.
func (s *Service) Forget(key string) {
	s.gateMu.Lock()
	if g := s.gates[key]; g != nil && !g.held.Load() {
		delete(s.gates, key)
	}
	s.gateMu.Unlock()
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg, q, running := s.cfg, s.q, s.stopCh != nil && s.stopDone == nil
	s.mu.Unlock()

	snap := Snapshot{
		Running:  running,
		Workers:  cfg.Workers,
		InFlight: s.inFlight.Load(),
		Skipped:  s.skipped.Load(),
		Dropped:  s.dropped.Load(),
	}
	if q != nil {
		snap.QueueLen, snap.QueueCap = len(q), cap(q)
	}
	s.hmu.Lock()
	snap.History = append([]Record(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

// finish appends rec to the bounded history and publishes it as typ.
func (s *Service) finish(typ string, rec Record) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, rec)
	if n := len(s.history) - size; n > 0 {
		s.history = append(s.history[:0:0], s.history[n:]...)
	}
	s.hmu.Unlock()

	s.bus.Publish(eventbus.Event{Type: typ, Time: rec.Started, Data: rec})
}

func (s *Service) onDropped(now time.Time, t Task, reason string) {
	n := s.dropped.Add(1)
	rec := recordOf(t, now)
	rec.Error = reason
	s.finish(eventbus.RunDropped, rec)

	prev := s.lastDropWarnAt.Load()
	if prev != 0 && now.UnixNano()-prev < int64(warnThrottleEvery) {
		return
	}
	if s.lastDropWarnAt.CompareAndSwap(prev, now.UnixNano()) {
		s.log.Warn("run dropped", logx.String("task", t.Name), logx.String("reason", reason), logx.Uint64("dropped", n))
	}
}
