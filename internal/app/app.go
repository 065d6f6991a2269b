// Package app wires the daemon: storage, catalog, runner, engine, scheduler,
// lifecycle controller, notifier and HTTP API, plus config hot reload.
package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"apitask/internal/catalog"
	"apitask/internal/config"
	"apitask/internal/eventbus"
	"apitask/internal/httpapi"
	"apitask/internal/notifier"
	"apitask/internal/runner"
	rtsup "apitask/internal/runtime/supervisor"
	"apitask/internal/storage"
	"apitask/internal/task/engine"
	"apitask/internal/task/lifecycle"
	"apitask/internal/task/resolver"
	"apitask/internal/task/scheduler"
	kit "apitask/internal/transport"
	"apitask/internal/transport/email"
	"apitask/internal/transport/telegram"
	logx "apitask/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store     *storage.Store
	catalogDB *gorm.DB

	engine *engine.Service
	sched  *scheduler.Service
	notif  *notifier.Service
	ctrl   *lifecycle.Controller
	api    *httpapi.Server
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}
	return build(cfgm, cfg)
}

func build(cfgm *config.ConfigManager, cfg *config.Config) (_ *App, err error) {
	logSvc, log := logx.New(mapLogging(cfg))
	a := &App{cfgm: cfgm, logs: logSvc, log: log.Named("app"), bus: eventbus.New()}
	// Release what was opened if a later step fails.
	defer func() {
		if err != nil {
			a.closeStores()
			_ = logSvc.Close()
		}
	}()
	comp := log.Named

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if a.store, err = storage.Open(sc, comp("storage")); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	if a.catalogDB, err = catalog.Open(mapCatalogConfig(cfg), comp("catalog")); err != nil {
		return nil, err
	}
	res := resolver.New(catalog.NewRepository(a.catalogDB), 0)

	run, err := newRunner(cfg, comp("runner"))
	if err != nil {
		return nil, err
	}

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.engine = engine.New(engCfg, comp("taskengine"), a.bus)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.sched = scheduler.New(schedCfg, a.engine, comp("scheduler"), a.bus)

	senders, err := newSenders(cfg, comp("transport"))
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.notif = notifier.New(ncfg, senders, comp("notifier"), a.bus, a.store)

	a.ctrl, err = lifecycle.New(lifecycle.Deps{
		Store:     a.store,
		Scheduler: a.sched,
		Resolver:  res,
		Runner:    run,
		Notifier:  a.notif,
	}, comp("lifecycle"), a.bus)
	if err != nil {
		return nil, err
	}

	hc, err := mapHTTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	breakers := []httpapi.BreakerSource{a.notif}
	if b, ok := run.(httpapi.BreakerSource); ok {
		breakers = append(breakers, b)
	}
	a.api, err = httpapi.New(hc, httpapi.Deps{
		Tasks:     a.ctrl,
		Reports:   a.store,
		Runs:      a.engine,
		Scheduler: a.sched,
		Breakers:  breakers,
	}, comp("http"))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newRunner(cfg *config.Config, log logx.Logger) (lifecycle.Runner, error) {
	if config.RunnerMode(cfg.Runner) == "dry" {
		log.Warn("runner in dry mode: cases are reported as passed without running")
		return runner.Dry{}, nil
	}
	rc, err := mapRunnerConfig(cfg)
	if err != nil {
		return nil, err
	}
	return runner.NewClient(rc, log)
}

func newSenders(cfg *config.Config, log logx.Logger) ([]kit.Sender, error) {
	var out []kit.Sender
	if ec, ok, err := mapEmailConfig(cfg); err != nil {
		return nil, err
	} else if ok {
		s, err := email.New(ec, log.With(logx.String("channel", "email")))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if tc, ok, err := mapTelegramConfig(cfg); err != nil {
		return nil, err
	} else if ok {
		s, err := telegram.New(tc, log.With(logx.String("channel", "telegram")))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Addr is the bound API address once started.
func (a *App) Addr() string { return a.api.Addr() }

// Start runs the components in dependency order, restores persisted jobs and
// opens the API last so no request sees a half-recovered scheduler.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.logs.Logger().Named("config"))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		// Hot-applied sections must also map cleanly.
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		_, err := mapSchedulerConfig(cfg)
		return err
	})

	a.notif.Start(runCtx)
	a.engine.Start(runCtx)
	a.sched.Start(runCtx)

	restored, err := a.ctrl.Recover(runCtx)
	if err != nil {
		return fmt.Errorf("recover scheduled tasks: %w", err)
	}
	a.log.Info("scheduled tasks restored", logx.Int("count", restored))

	if err := a.api.Start(runCtx); err != nil {
		return fmt.Errorf("http api: %w", err)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub, unsubCfg := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer unsubCfg()
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("addr", a.api.Addr()))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStores()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Stop order: intake first (API, triggers), then execution, then delivery, then storage.
	a.step(ctx, "http", 5*time.Second, func(c context.Context) error { a.api.Stop(c); return nil })
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "storage", 1*time.Second, func(c context.Context) error { a.closeStores(); return nil })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop. It never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped: deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		// Leak signal: observe when/if the step eventually finishes.
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline",
				logx.String("name", name),
				logx.Duration("took", time.Since(start)),
				logx.Err(err),
			)
		}()
	}
}

func (a *App) closeStores() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	if a.catalogDB != nil {
		if sqlDB, err := a.catalogDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
