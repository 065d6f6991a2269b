package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"apitask/internal/task/cronexpr"
	"apitask/internal/task/engine"
	logx "apitask/pkg/logx"
)

type fakeExec struct {
	mu     sync.Mutex
	tasks  []engine.Task
	forgot []string
	fired  chan engine.Task
}

func newFakeExec() *fakeExec { return &fakeExec{fired: make(chan engine.Task, 16)} }

func (f *fakeExec) Enqueue(t engine.Task) error {
	f.mu.Lock()
	f.tasks = append(f.tasks, t)
	f.mu.Unlock()
	select {
	case f.fired <- t:
	default:
	}
	return nil
}

func (f *fakeExec) Forget(key string) {
	f.mu.Lock()
	f.forgot = append(f.forgot, key)
	f.mu.Unlock()
}

func mustTrigger(t *testing.T, expr string) cronexpr.Trigger {
	t.Helper()
	tr, err := cronexpr.Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q): %v", expr, err)
	}
	return tr
}

func startScheduler(t *testing.T, cfg Config) (*Service, *fakeExec) {
	t.Helper()
	exec := newFakeExec()
	s := New(cfg, exec, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, exec
}

func noop(context.Context) error { return nil }

func TestAddDuplicateAndMissing(t *testing.T) {
	t.Parallel()
	s, _ := startScheduler(t, Config{Timezone: "UTC"})
	tr := mustTrigger(t, "0 0 1 * * *")

	if err := s.Add("1", tr, Job{Run: noop}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := s.Add("1", tr, Job{Run: noop}); !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("second Add err = %v, want ErrDuplicateJob", err)
	}
	for name, op := range map[string]func() error{
		"reschedule": func() error { return s.Reschedule("2", tr) },
		"pause":      func() error { return s.Pause("2") },
		"resume":     func() error { return s.Resume("2") },
		"remove":     func() error { return s.Remove("2") },
	} {
		if err := op(); !errors.Is(err, ErrJobNotFound) {
			t.Fatalf("%s(missing) err = %v, want ErrJobNotFound", name, err)
		}
	}
	if err := s.Add("3", cronexpr.Trigger{}, Job{Run: noop}); err == nil {
		t.Fatal("expected error for zero trigger")
	}
}

func TestPauseResumeKeepsNextFire(t *testing.T) {
	t.Parallel()
	s, _ := startScheduler(t, Config{Timezone: "UTC"})
	if err := s.Add("7", mustTrigger(t, "0 0 1 * * *"), Job{Name: "nightly", Run: noop}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	before, ok := s.Info("7")
	if !ok || before.Next.IsZero() || before.Paused {
		t.Fatalf("Info before pause = %+v, %v", before, ok)
	}
	if before.Next.UTC().Hour() != 1 || before.Next.Minute() != 0 || before.Next.Second() != 0 {
		t.Fatalf("next fire = %s, want 01:00:00", before.Next)
	}

	if err := s.Pause("7"); err != nil {
		t.Fatalf("Pause error: %v", err)
	}
	paused, _ := s.Info("7")
	if !paused.Paused || !paused.Next.IsZero() {
		t.Fatalf("Info while paused = %+v", paused)
	}
	if err := s.Pause("7"); err != nil {
		t.Fatalf("second Pause error: %v", err)
	}

	if err := s.Resume("7"); err != nil {
		t.Fatalf("Resume error: %v", err)
	}
	after, _ := s.Info("7")
	if after.Paused || !after.Next.Equal(before.Next) {
		t.Fatalf("next after resume = %s, want %s", after.Next, before.Next)
	}
}

func TestRescheduleReactivates(t *testing.T) {
	t.Parallel()
	s, _ := startScheduler(t, Config{Timezone: "UTC"})
	if err := s.Add("1", mustTrigger(t, "0 0 1 * * *"), Job{Run: noop}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := s.Pause("1"); err != nil {
		t.Fatalf("Pause error: %v", err)
	}
	if err := s.Reschedule("1", mustTrigger(t, "0 30 2 * * *")); err != nil {
		t.Fatalf("Reschedule error: %v", err)
	}
	info, _ := s.Info("1")
	if info.Paused || info.Expr != "0 30 2 * * *" {
		t.Fatalf("Info after reschedule = %+v", info)
	}
	if info.Next.UTC().Hour() != 2 || info.Next.Minute() != 30 {
		t.Fatalf("next = %s, want 02:30", info.Next)
	}
}

func TestFiringEnqueuesIntoExecutor(t *testing.T) {
	t.Parallel()
	s, exec := startScheduler(t, Config{Overlap: engine.OverlapSkipIfRunning, RunTimeout: time.Minute})
	if err := s.Add("42", mustTrigger(t, "* * * * * *"), Job{Name: "every-second", Run: noop}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	select {
	case got := <-exec.fired:
		if got.Key != "42" || got.Name != "every-second" || got.Opt.Overlap != engine.OverlapSkipIfRunning || got.Timeout != time.Minute {
			t.Fatalf("unexpected task %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
	if info, _ := s.Info("42"); info.Prev.IsZero() {
		t.Fatal("prev fire time not recorded")
	}

	if err := s.Remove("42"); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if s.Has("42") {
		t.Fatal("job still present after Remove")
	}
	exec.mu.Lock()
	forgot := append([]string(nil), exec.forgot...)
	exec.mu.Unlock()
	if len(forgot) != 1 || forgot[0] != "42" {
		t.Fatalf("forgot = %v", forgot)
	}
}

func TestAddBeforeStart(t *testing.T) {
	t.Parallel()
	exec := newFakeExec()
	s := New(Config{}, exec, logx.Nop(), nil)
	if err := s.Add("1", mustTrigger(t, "* * * * * *"), Job{Run: noop}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if info, ok := s.Info("1"); !ok || info.Next.IsZero() {
		t.Fatalf("Info before Start = %+v, %v", info, ok)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())
	select {
	case <-exec.fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job registered before Start did not fire")
	}
	if got := s.List(); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("List = %+v", got)
	}
}

func TestAddPausedNeverArms(t *testing.T) {
	t.Parallel()
	s, exec := startScheduler(t, Config{Timezone: "UTC"})
	if err := s.AddPaused("5", mustTrigger(t, "* * * * * *"), Job{Run: noop}); err != nil {
		t.Fatalf("AddPaused error: %v", err)
	}
	if info, ok := s.Info("5"); !ok || !info.Paused || !info.Next.IsZero() {
		t.Fatalf("Info = %+v, %v", info, ok)
	}
	select {
	case got := <-exec.fired:
		t.Fatalf("paused job fired: %+v", got)
	case <-time.After(1500 * time.Millisecond):
	}
	if err := s.AddPaused("5", mustTrigger(t, "* * * * * *"), Job{Run: noop}); !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("second AddPaused err = %v", err)
	}

	if err := s.Resume("5"); err != nil {
		t.Fatalf("Resume error: %v", err)
	}
	select {
	case <-exec.fired:
	case <-time.After(3 * time.Second):
		t.Fatal("resumed job did not fire")
	}
}

func TestRenameCarriesIntoFirings(t *testing.T) {
	t.Parallel()
	s, exec := startScheduler(t, Config{Timezone: "UTC"})
	if err := s.Rename("9", "x"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("Rename(missing) err = %v", err)
	}
	if err := s.AddPaused("9", mustTrigger(t, "* * * * * *"), Job{Name: "old", Run: noop}); err != nil {
		t.Fatalf("AddPaused error: %v", err)
	}
	if err := s.Rename("9", "new"); err != nil {
		t.Fatalf("Rename error: %v", err)
	}
	if info, _ := s.Info("9"); info.Name != "new" {
		t.Fatalf("Info name = %q", info.Name)
	}
	if err := s.Resume("9"); err != nil {
		t.Fatalf("Resume error: %v", err)
	}
	select {
	case got := <-exec.fired:
		if got.Name != "new" {
			t.Fatalf("fired name = %q, want new", got.Name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
}
