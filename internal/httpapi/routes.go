package httpapi

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"apitask/internal/config"
	logx "apitask/pkg/logx"
)

func newEcho(cfg Config, d Deps, log logx.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)

	e.Use(middleware.Recover())
	e.Use(withRequestID())
	e.Use(withAccessLog(log))
	if cfg.RatePerSec > 0 {
		e.Use(withRateLimit(cfg.RatePerSec, cfg.Burst))
	}

	h := &handler{tasks: d.Tasks, reports: d.Reports, runs: d.Runs, sched: d.Scheduler, breakers: d.Breakers}

	e.GET("/healthz", h.health)

	e.POST("/tasks", h.createTask)
	e.GET("/tasks", h.listTasks)
	e.GET("/tasks/:id", h.getTask)
	e.PUT("/tasks/:id", h.updateTask)
	e.DELETE("/tasks/:id", h.deleteTask)
	e.POST("/tasks/:id/start", h.command(d.Tasks.Start))
	e.POST("/tasks/:id/pause", h.command(d.Tasks.Pause))
	e.POST("/tasks/:id/resume", h.command(d.Tasks.Resume))
	e.POST("/tasks/:id/remove", h.command(d.Tasks.Remove))
	e.POST("/tasks/:id/run", h.runTask)
	e.GET("/tasks/:id/reports", h.taskReports)

	e.GET("/reports/:id", h.getReport)
	e.GET("/runs", h.listRuns)

	if p := cfg.Pprof; p.Enabled {
		if p.Token == "" && !config.IsLoopbackAddr(cfg.Addr) {
			if !p.AllowInsecure {
				log.Error("pprof not mounted: non-loopback addr requires token or allow_insecure", logx.String("addr", cfg.Addr))
				return e
			}
			log.Warn("pprof mounted without token on non-loopback addr (insecure)", logx.String("addr", cfg.Addr))
		}
		ApplyRuntimeRates(p)
		mountPprof(e, p)
	}
	return e
}
