package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"apitask/internal/catalog"
	"apitask/internal/runner"
	"apitask/internal/storage"
	"apitask/internal/task/cronexpr"
	"apitask/internal/task/engine"
	"apitask/internal/task/model"
	"apitask/internal/task/resolver"
	"apitask/internal/task/scheduler"
	kit "apitask/internal/transport"
	logx "apitask/pkg/logx"
)

const daily = "0 0 1 * * *"

type captureExec struct {
	fired chan engine.Task
}

func (e *captureExec) Enqueue(t engine.Task) error {
	select {
	case e.fired <- t:
	default:
	}
	return nil
}

func (e *captureExec) Forget(string) {}

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]int64
}

func (r *fakeRunner) RunCases(ctx context.Context, project string, ids []int64) (runner.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]int64(nil), ids...))
	r.mu.Unlock()
	return runner.Dry{}.RunCases(ctx, project, ids)
}

func (r *fakeRunner) last() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

type fakeResolver struct{ ids []int64 }

func (r fakeResolver) Resolve(context.Context, model.Task) ([]int64, error) { return r.ids, nil }

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	msgs []kit.Message
}

func (n *fakeNotifier) Notify(ctx context.Context, m kit.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
	return n.err
}

func (n *fakeNotifier) HasChannel(ch kit.Channel) bool { return ch == kit.ChannelEmail }

func (n *fakeNotifier) sent() []kit.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]kit.Message(nil), n.msgs...)
}

type harness struct {
	ctl      *Controller
	store    *storage.Store
	sched    *scheduler.Service
	exec     *captureExec
	runner   *fakeRunner
	notifier *fakeNotifier
}

func newHarness(t *testing.T, res Resolver) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "apitask.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{
		store:    st,
		exec:     &captureExec{fired: make(chan engine.Task, 4)},
		runner:   &fakeRunner{},
		notifier: &fakeNotifier{},
	}
	h.sched = startScheduler(t, h.exec)
	if res == nil {
		res = fakeResolver{ids: []int64{1, 2}}
	}
	h.ctl, err = New(Deps{
		Store:     st,
		Scheduler: h.sched,
		Resolver:  res,
		Runner:    h.runner,
		Notifier:  h.notifier,
	}, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func startScheduler(t *testing.T, exec scheduler.Executor) *scheduler.Service {
	t.Helper()
	s := scheduler.New(scheduler.Config{Timezone: "UTC"}, exec, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func (h *harness) create(t *testing.T, name, expr string) model.Task {
	t.Helper()
	task, err := h.ctl.CreateOrUpdate(context.Background(), model.TaskSpec{Name: name, ProjectName: "Demo", Schedule: expr})
	if err != nil {
		t.Fatalf("CreateOrUpdate(%q): %v", name, err)
	}
	return task
}

func (h *harness) status(t *testing.T, id int64) model.Status {
	t.Helper()
	task, err := h.store.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	return task.Status
}

func TestCreateValidatesBeforeWriting(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.ctl.CreateOrUpdate(ctx, model.TaskSpec{Name: "bad", ProjectName: "Demo", Schedule: "0 0 1 * *"})
	if !errors.Is(err, model.ErrInvalidScheduleFormat) {
		t.Fatalf("five fields err = %v", err)
	}
	_, err = h.ctl.CreateOrUpdate(ctx, model.TaskSpec{Name: "half", ProjectName: "Demo", Schedule: daily, NotifySender: "qa@example.com"})
	if !errors.Is(err, model.ErrPartialNotificationConfig) {
		t.Fatalf("partial notification err = %v", err)
	}

	first := h.create(t, "nightly", daily)
	if first.Status != model.StatusCreated || first.Num != 1 || first.Type != model.TypeCron {
		t.Fatalf("created = %+v", first)
	}
	_, err = h.ctl.CreateOrUpdate(ctx, model.TaskSpec{Name: "nightly", ProjectName: "Demo", Schedule: daily})
	if !errors.Is(err, model.ErrDuplicateName) || model.KindOf(err) != model.KindValidation {
		t.Fatalf("duplicate err = %v", err)
	}

	_, total, err := h.ctl.List(ctx, model.ListQuery{ProjectName: "Demo"})
	if err != nil || total != 1 {
		t.Fatalf("List total = %d, %v", total, err)
	}
	if len(h.sched.List()) != 0 {
		t.Fatal("rejected creates must not schedule anything")
	}
}

func TestStartTwiceIsRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.create(t, "nightly", daily)

	if err := h.ctl.Start(ctx, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := h.ctl.Start(ctx, task.ID)
	if !errors.Is(err, model.ErrJobAlreadyRunning) || model.KindOf(err) != model.KindStateConflict {
		t.Fatalf("second Start err = %v", err)
	}
	if st := h.status(t, task.ID); st != model.StatusRunning {
		t.Fatalf("status = %v", st)
	}
	if n := len(h.sched.List()); n != 1 {
		t.Fatalf("jobs = %d, want 1", n)
	}
}

func TestStartWithOrphanJobReportsAlreadyRunning(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.create(t, "nightly", daily)

	tr := mustParse(t, daily)
	if err := h.sched.Add(task.JobID(), tr, scheduler.Job{Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := h.ctl.Start(ctx, task.ID); !errors.Is(err, model.ErrJobAlreadyRunning) {
		t.Fatalf("Start err = %v", err)
	}
	if st := h.status(t, task.ID); st != model.StatusCreated {
		t.Fatalf("status = %v, want created", st)
	}
}

func TestPauseResumeKeepsNextFire(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.create(t, "nightly", daily)
	if err := h.ctl.Start(ctx, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	before, err := h.ctl.Get(ctx, task.ID)
	if err != nil || before.Job == nil {
		t.Fatalf("Get = %+v, %v", before, err)
	}
	if err := h.ctl.Pause(ctx, task.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	paused, _ := h.ctl.Get(ctx, task.ID)
	if paused.Task.Status != model.StatusPaused || paused.Job == nil || !paused.Job.Paused {
		t.Fatalf("paused detail = %+v job=%+v", paused.Task, paused.Job)
	}
	if err := h.ctl.Pause(ctx, task.ID); !errors.Is(err, model.ErrTaskNotSchedulable) {
		t.Fatalf("second Pause err = %v", err)
	}
	if err := h.ctl.Resume(ctx, task.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	after, _ := h.ctl.Get(ctx, task.ID)
	if after.Task.Status != model.StatusRunning || !after.Job.Next.Equal(before.Job.Next) {
		t.Fatalf("next fire %s, want %s", after.Job.Next, before.Job.Next)
	}
}

func TestCommandsOnCreatedTask(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.create(t, "nightly", daily)

	for name, op := range map[string]func(context.Context, int64) error{
		"pause":  h.ctl.Pause,
		"resume": h.ctl.Resume,
		"remove": h.ctl.Remove,
	} {
		if err := op(ctx, task.ID); !errors.Is(err, model.ErrTaskNotSchedulable) {
			t.Fatalf("%s err = %v", name, err)
		}
	}
	if err := h.ctl.Start(ctx, 999); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("unknown id err = %v", err)
	}
}

func TestDeleteRequiresCreated(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.create(t, "nightly", daily)
	if err := h.ctl.Start(ctx, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := h.ctl.Delete(ctx, task.ID)
	if !errors.Is(err, model.ErrTaskStillScheduled) || model.KindOf(err) != model.KindStateConflict {
		t.Fatalf("Delete running err = %v", err)
	}
	if err := h.ctl.Pause(ctx, task.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := h.ctl.Delete(ctx, task.ID); !errors.Is(err, model.ErrTaskStillScheduled) {
		t.Fatalf("Delete paused err = %v", err)
	}

	if err := h.ctl.Remove(ctx, task.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := h.sched.Info(task.JobID()); ok {
		t.Fatal("job still registered after remove")
	}
	if err := h.ctl.Delete(ctx, task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := h.ctl.Get(ctx, task.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get after delete err = %v", err)
	}
	if h.ctl.locks.size() != 0 {
		t.Fatalf("locks leaked: %d", h.ctl.locks.size())
	}
}

func TestRemoveWithoutLiveJobLeavesStatus(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.create(t, "nightly", daily)
	if err := h.store.SetStatus(ctx, task.ID, model.StatusRunning); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	err := h.ctl.Remove(ctx, task.ID)
	if !errors.Is(err, model.ErrTaskNotSchedulable) || model.KindOf(err) != model.KindStateConflict {
		t.Fatalf("Remove err = %v", err)
	}
	if st := h.status(t, task.ID); st != model.StatusRunning {
		t.Fatalf("status = %v, want running", st)
	}
}

func TestStartRegistersMissingJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	running := h.create(t, "a", daily)
	paused := h.create(t, "b", daily)
	_ = h.store.SetStatus(ctx, running.ID, model.StatusRunning)
	_ = h.store.SetStatus(ctx, paused.ID, model.StatusPaused)

	for _, task := range []model.Task{running, paused} {
		if err := h.ctl.Start(ctx, task.ID); err != nil {
			t.Fatalf("Start(%s): %v", task.Name, err)
		}
	}
	if info, ok := h.sched.Info(running.JobID()); !ok || info.Paused {
		t.Fatalf("running job = %+v, %v", info, ok)
	}
	if info, ok := h.sched.Info(paused.JobID()); !ok || !info.Paused {
		t.Fatalf("paused job = %+v, %v", info, ok)
	}
	if st := h.status(t, paused.ID); st != model.StatusPaused {
		t.Fatalf("paused status = %v", st)
	}
	// With the job back, the normal rules apply again.
	if err := h.ctl.Start(ctx, running.ID); !errors.Is(err, model.ErrJobAlreadyRunning) {
		t.Fatalf("second Start err = %v", err)
	}
	if err := h.ctl.Remove(ctx, paused.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

func TestRenameFollowsScheduledJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.create(t, "nightly", daily)
	if err := h.ctl.Start(ctx, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := h.ctl.CreateOrUpdate(ctx, model.TaskSpec{ID: task.ID, Name: "nightly-v2", ProjectName: "Demo", Schedule: daily}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	d, err := h.ctl.Get(ctx, task.ID)
	if err != nil || d.Job == nil || d.Job.Name != "nightly-v2" {
		t.Fatalf("Get = %+v, %v", d.Job, err)
	}
}

func TestEditReschedulesPausedTask(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.create(t, "nightly", daily)
	if err := h.ctl.Start(ctx, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.ctl.Pause(ctx, task.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	other := h.create(t, "weekly", daily)
	spec := model.TaskSpec{ID: task.ID, Name: other.Name, ProjectName: "Demo", Schedule: daily}
	if _, err := h.ctl.CreateOrUpdate(ctx, spec); !errors.Is(err, model.ErrDuplicateName) {
		t.Fatalf("rename onto other err = %v", err)
	}

	spec.Name = "nightly"
	spec.Schedule = "0 30 2 * * *"
	got, err := h.ctl.CreateOrUpdate(ctx, spec)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != model.StatusRunning || got.Num != task.Num {
		t.Fatalf("updated = %+v", got)
	}
	info, ok := h.sched.Info(task.JobID())
	if !ok || info.Paused || info.Expr != "0 30 2 * * *" {
		t.Fatalf("job = %+v, %v", info, ok)
	}

	// Same schedule on a running task: fields change, job untouched.
	spec.SetIDs = []int64{4}
	got, err = h.ctl.CreateOrUpdate(ctx, spec)
	if err != nil || got.Scope.Kind() != model.ScopeSets {
		t.Fatalf("scope update = %+v, %v", got.Scope, err)
	}

	if _, err := h.ctl.CreateOrUpdate(ctx, model.TaskSpec{ID: 999, Name: "x", ProjectName: "Demo", Schedule: daily}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("edit unknown err = %v", err)
	}
}

type failingStatusStore struct {
	*storage.Store
}

func (failingStatusStore) SetStatus(context.Context, int64, model.Status) error {
	return errors.New("disk full")
}

func TestStartRollsBackWhenStoreFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	task := h.create(t, "nightly", daily)

	ctl, err := New(Deps{
		Store:     failingStatusStore{h.store},
		Scheduler: h.sched,
		Resolver:  fakeResolver{},
		Runner:    h.runner,
	}, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ctl.Start(context.Background(), task.ID); err == nil {
		t.Fatal("expected store error")
	}
	if _, ok := h.sched.Info(task.JobID()); ok {
		t.Fatal("job must be removed when the status write fails")
	}
}

func TestEndToEndDemoProject(t *testing.T) {
	t.Parallel()
	db := setupCatalog(t)
	ctx := context.Background()
	if _, err := catalog.Seed(ctx, db, catalog.SeedProject{
		Name: "Demo",
		Sets: []catalog.SeedSet{{Num: 1, Name: "smoke", Cases: []catalog.SeedCase{
			{Num: 2, Name: "logout"},
			{Num: 1, Name: "login"},
		}}},
	}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	var cases []catalog.Case
	if err := db.Order("num asc").Find(&cases).Error; err != nil || len(cases) != 2 {
		t.Fatalf("cases = %v, %v", cases, err)
	}
	want := []int64{cases[0].ID, cases[1].ID}

	h := newHarness(t, resolver.New(catalog.NewRepository(db), 0))
	task, err := h.ctl.CreateOrUpdate(ctx, model.TaskSpec{
		Name:             "demo-every-second",
		ProjectName:      "Demo",
		Schedule:         "* * * * * *",
		NotifySender:     "qa@example.com",
		NotifyCredential: "secret",
		NotifyRecipients: "a@example.com,b@example.com",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.ctl.Start(ctx, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var fired engine.Task
	select {
	case fired = <-h.exec.fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
	if err := h.ctl.Remove(ctx, task.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := fired.Run(ctx); err != nil {
		t.Fatalf("firing: %v", err)
	}

	if got := h.runner.last(); !reflect.DeepEqual(got, want) {
		t.Fatalf("runner got %v, want %v", got, want)
	}
	msgs := h.notifier.sent()
	if len(msgs) != 1 {
		t.Fatalf("notifications = %d", len(msgs))
	}
	m := msgs[0]
	if m.Channel != kit.ChannelEmail || m.From != "qa@example.com" || m.Credential != "secret" ||
		!reflect.DeepEqual(m.To, []string{"a@example.com", "b@example.com"}) || m.HTML == "" {
		t.Fatalf("mail = %+v", m)
	}
	reps, err := h.store.LatestReports(ctx, task.ID, 5)
	if err != nil || len(reps) != 1 || reps[0].Origin != storage.OriginSchedule || reps[0].Total != 2 {
		t.Fatalf("reports = %+v, %v", reps, err)
	}
}

func TestNotificationFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.notifier.err = errors.New("queue full")
	task, err := h.ctl.CreateOrUpdate(context.Background(), model.TaskSpec{
		Name: "nightly", ProjectName: "Demo", Schedule: daily,
		NotifySender: "qa@example.com", NotifyCredential: "secret", NotifyRecipients: "a@example.com",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.ctl.fire(context.Background(), task.ID); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(h.notifier.sent()) != 1 {
		t.Fatal("expected one notify attempt")
	}
}

func TestFireForDeletedTaskIsNotRetried(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	err := h.ctl.fire(context.Background(), 42)
	if !errors.Is(err, model.ErrNotFound) || !engine.IsNoRetry(err) {
		t.Fatalf("fire err = %v", err)
	}
}

func TestRunNowStoresReport(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeResolver{ids: []int64{5, 3, 9}})
	ctx := context.Background()
	task := h.create(t, "nightly", daily)

	id, err := h.ctl.RunNow(ctx, task.ID)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	rep, err := h.store.GetReport(ctx, id)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if rep.Origin != storage.OriginManual || rep.Total != 3 || len(rep.Body) == 0 {
		t.Fatalf("report = %+v", rep)
	}
	if !reflect.DeepEqual(h.runner.last(), []int64{5, 3, 9}) {
		t.Fatalf("runner got %v", h.runner.last())
	}
	if len(h.notifier.sent()) != 0 {
		t.Fatal("run-now must not notify")
	}
	if st := h.status(t, task.ID); st != model.StatusCreated {
		t.Fatalf("status = %v", st)
	}
}

func TestRunNowMissingProjectIsNotFound(t *testing.T) {
	t.Parallel()
	db := setupCatalog(t)
	h := newHarness(t, resolver.New(catalog.NewRepository(db), 0))
	ctx := context.Background()
	task := h.create(t, "nightly", daily)

	_, err := h.ctl.RunNow(ctx, task.ID)
	if !errors.Is(err, model.ErrProjectNotFound) || model.KindOf(err) != model.KindNotFound {
		t.Fatalf("RunNow err = %v (kind %q)", err, model.KindOf(err))
	}
	if h.runner.last() != nil {
		t.Fatal("runner must not be called")
	}
	if err := h.ctl.fire(ctx, task.ID); !engine.IsNoRetry(err) {
		t.Fatalf("fire err = %v, want no-retry", err)
	}
}

func TestRecoverRestoresJobs(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	running := h.create(t, "a", daily)
	paused := h.create(t, "b", daily)
	idle := h.create(t, "c", daily)
	_ = h.store.SetStatus(ctx, running.ID, model.StatusRunning)
	_ = h.store.SetStatus(ctx, paused.ID, model.StatusPaused)

	// A fresh scheduler stands in for a process restart.
	sched := startScheduler(t, h.exec)
	ctl, err := New(Deps{Store: h.store, Scheduler: sched, Resolver: fakeResolver{}, Runner: h.runner}, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := ctl.Recover(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Recover = %d, %v", n, err)
	}
	if info, ok := sched.Info(running.JobID()); !ok || info.Paused {
		t.Fatalf("running job = %+v, %v", info, ok)
	}
	if info, ok := sched.Info(paused.JobID()); !ok || !info.Paused {
		t.Fatalf("paused job = %+v, %v", info, ok)
	}
	if _, ok := sched.Info(idle.JobID()); ok {
		t.Fatal("created task must not be scheduled")
	}
}

func TestTaskLocksSerializeSameID(t *testing.T) {
	t.Parallel()
	l := newTaskLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock(7)
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d", maxSeen)
	}
	if l.size() != 0 {
		t.Fatalf("locks left = %d", l.size())
	}
}

func setupCatalog(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	if err := catalog.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func mustParse(t *testing.T, expr string) cronexpr.Trigger {
	t.Helper()
	tr, err := cronexpr.Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q): %v", expr, err)
	}
	return tr
}
