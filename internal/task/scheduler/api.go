package scheduler

import (
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"apitask/internal/eventbus"
	"apitask/internal/task/cronexpr"
	"apitask/internal/task/engine"
	logx "apitask/pkg/logx"
)

// Add registers a new live job. From then on it fires at every trigger time
// until paused or removed. A second Add with the same id fails with ErrDuplicateJob.
func (s *Service) Add(id string, tr cronexpr.Trigger, job Job) error {
	return s.add(id, tr, job, false)
}

// AddPaused registers a job that stays paused until Resume. It is never
// armed in between.
func (s *Service) AddPaused(id string, tr cronexpr.Trigger, job Job) error {
	return s.add(id, tr, job, true)
}

func (s *Service) add(id string, tr cronexpr.Trigger, job Job, paused bool) error {
	id = strings.TrimSpace(id)
	if id == "" || tr.IsZero() || job.Run == nil {
		return errInvalidJob
	}
	if job.Name == "" {
		job.Name = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		return ErrDuplicateJob
	}
	d := &jobDef{id: id, job: job, trigger: tr, paused: paused}
	s.jobs[id] = d
	if paused {
		s.log.Debug("job added paused", logx.String("job", id), logx.String("expr", tr.Expr()))
		return nil
	}
	s.registerLocked(d)
	s.logRegisteredLocked("job added", d)
	return nil
}

// Rename changes the display name carried by future firings.
func (s *Service) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	d.job.Name = name
	return nil
}

// Reschedule swaps the trigger of an existing job. A paused job becomes
// active again. A firing already in flight is not interrupted.
func (s *Service) Reschedule(id string, tr cronexpr.Trigger) error {
	if tr.IsZero() {
		return errInvalidJob
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	s.unregisterLocked(d)
	d.trigger = tr
	d.paused = false
	s.registerLocked(d)
	s.logRegisteredLocked("job rescheduled", d)
	return nil
}

// Pause suppresses future firings but keeps the job and its trigger.
// Pausing a paused job is a no-op.
func (s *Service) Pause(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if d.paused {
		return nil
	}
	s.unregisterLocked(d)
	d.paused = true
	s.log.Debug("job paused", logx.String("job", id))
	return nil
}

// Resume reactivates a paused job with its original trigger.
// Resuming an active job is a no-op.
func (s *Service) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if !d.paused {
		return nil
	}
	d.paused = false
	s.registerLocked(d)
	s.logRegisteredLocked("job resumed", d)
	return nil
}

// Remove cancels every future firing and forgets the job.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	d, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	s.unregisterLocked(d)
	delete(s.jobs, id)
	s.mu.Unlock()

	if s.exec != nil {
		s.exec.Forget(id)
	}
	s.log.Debug("job removed", logx.String("job", id))
	return nil
}

// Has reports whether a job with id exists, paused or not.
func (s *Service) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// Info describes one job.
func (s *Service) Info(id string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.jobs[id]
	if !ok {
		return Info{}, false
	}
	return s.infoLocked(d), true
}

// List describes every job, ordered by id.
func (s *Service) List() []Info {
	s.mu.Lock()
	out := make([]Info, 0, len(s.jobs))
	for _, d := range s.jobs {
		out = append(out, s.infoLocked(d))
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Service) infoLocked(d *jobDef) Info {
	it := Info{ID: d.id, Name: d.job.Name, Expr: d.trigger.Expr(), Paused: d.paused, Prev: d.prev}
	if d.paused {
		return it
	}
	if s.c != nil && d.entryID != 0 {
		e := s.c.Entry(d.entryID)
		it.Next = e.Next
		if it.Prev.IsZero() {
			it.Prev = e.Prev
		}
	}
	if it.Next.IsZero() {
		it.Next = d.trigger.Next(time.Now().In(s.location()))
	}
	return it
}

func (s *Service) location() *time.Location {
	if s.loc != nil {
		return s.loc
	}
	return time.Local
}

// registerLocked adds d to the running cron. Without a running cron, or
// while paused, it only keeps the definition.
func (s *Service) registerLocked(d *jobDef) {
	if s.c == nil || d.paused || d.entryID != 0 {
		return
	}
	id := d.id
	d.entryID = s.c.Schedule(d.trigger.Schedule(), cron.FuncJob(func() { s.fire(id) }))
}

func (s *Service) unregisterLocked(d *jobDef) {
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	d.entryID = 0
}

// fire runs on the cron goroutine; it only hands the job to the executor.
func (s *Service) fire(id string) {
	now := time.Now()
	s.mu.Lock()
	d, ok := s.jobs[id]
	if !ok || d.paused {
		s.mu.Unlock()
		return
	}
	d.prev = now
	job := d.job
	cfg := s.cfg
	s.mu.Unlock()

	s.bus.Publish(eventbus.Event{Type: eventbus.TaskFired, Time: now, Data: Info{ID: id, Name: job.Name, Prev: now}})
	if s.exec == nil {
		return
	}
	err := s.exec.Enqueue(engine.Task{
		Name:    job.Name,
		Key:     id,
		Timeout: cfg.RunTimeout,
		Run:     job.Run,
		Opt:     engine.TaskOptions{Overlap: cfg.Overlap, RetryMax: -1},
	})
	if err != nil {
		s.reportEnqueueError(id, err)
	}
}

func (s *Service) logRegisteredLocked(msg string, d *jobDef) {
	if !s.log.Enabled(logx.LevelDebug) {
		return
	}
	next := d.trigger.NextN(time.Now().In(s.location()), 3)
	parts := make([]string, len(next))
	for i, t := range next {
		parts[i] = t.Format("2006-01-02 15:04:05")
	}
	s.log.Debug(msg,
		logx.String("job", d.id),
		logx.String("name", d.job.Name),
		logx.String("expr", d.trigger.Expr()),
		logx.String("next", strings.Join(parts, ", ")),
	)
}
