package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	rtsup "apitask/internal/runtime/supervisor"
	"apitask/internal/storage"
	"apitask/internal/task/engine"
	"apitask/internal/task/lifecycle"
	"apitask/internal/task/model"
	logx "apitask/pkg/logx"
)

// Config controls the API listener.
type Config struct {
	Addr            string
	RatePerSec      int // per client IP; 0 disables limiting
	Burst           int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Pprof PprofConfig
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = "127.0.0.1:8080"
	}
	if c.RatePerSec > 0 && c.Burst <= 0 {
		c.Burst = c.RatePerSec * 2
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	// run-now holds the request open for the whole run, so no write timeout by default.
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

// Tasks is the lifecycle surface the API drives.
type Tasks interface {
	CreateOrUpdate(ctx context.Context, spec model.TaskSpec) (model.Task, error)
	Start(ctx context.Context, id int64) error
	Pause(ctx context.Context, id int64) error
	Resume(ctx context.Context, id int64) error
	Remove(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	RunNow(ctx context.Context, id int64) (int64, error)
	List(ctx context.Context, q model.ListQuery) ([]model.Task, int, error)
	Get(ctx context.Context, id int64) (lifecycle.Detail, error)
}

type Reports interface {
	GetReport(ctx context.Context, id int64) (storage.Report, error)
	LatestReports(ctx context.Context, taskID int64, limit int) ([]storage.Report, error)
	Ping(ctx context.Context) error
}

type Runs interface {
	Snapshot() engine.Snapshot
}

// SchedulerState reports whether triggers are being delivered.
type SchedulerState interface {
	Running() bool
}

// BreakerSource reports circuit breaker states keyed by name.
type BreakerSource interface {
	BreakerStates() map[string]string
}

// Deps are the API's collaborators. Scheduler and Breakers only feed /healthz
// and may be empty.
type Deps struct {
	Tasks   Tasks
	Reports Reports
	Runs    Runs

	Scheduler SchedulerState
	Breakers  []BreakerSource
}

// Server owns the echo instance and its listener.
type Server struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	e   *echo.Echo

	ln       net.Listener
	srv      *http.Server
	sup      *rtsup.Supervisor
	stopping bool
}

func New(cfg Config, d Deps, log logx.Logger) (*Server, error) {
	if d.Tasks == nil || d.Reports == nil || d.Runs == nil {
		return nil, errors.New("httpapi: tasks, reports and runs are required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	s := &Server{cfg: cfg, log: log}
	s.e = newEcho(cfg, d, log)
	return s, nil
}

// Handler returns the routed handler (for tests and embedding).
func (s *Server) Handler() http.Handler { return s.e }

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start binds the listener and serves in the background. A bind failure is
// returned; later serve failures are restarted with backoff.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.stopping = false
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)

	s.log.Info("http api started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("pprof", s.cfg.Pprof.Enabled),
		logx.Int("rate_per_sec", s.cfg.RatePerSec),
	)
	return nil
}

// Stop gracefully shuts the server down within ctx (or ShutdownTimeout).
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.sup == nil {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	srv, sup := s.srv, s.sup
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	sctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(sctx); err != nil {
			s.log.Warn("http api shutdown incomplete", logx.Err(err))
			_ = srv.Close()
		}
	}
	sup.Cancel()
	_ = sup.Wait(sctx)

	s.mu.Lock()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.ln, s.srv, s.sup = nil, nil, nil
	s.mu.Unlock()
	s.log.Info("http api stopped")
}

func (s *Server) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return context.Canceled
	}
	ln := s.ln
	if ln == nil {
		// Previous listener died; rebind.
		var err error
		ln, err = net.Listen("tcp", s.cfg.Addr)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.ln = ln
	}
	srv := &http.Server{
		Handler:      s.e,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	err := srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
		s.ln = nil
	}
	stopping := s.stopping
	s.mu.Unlock()

	if stopping || ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}
