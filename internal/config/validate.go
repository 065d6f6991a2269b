package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// DefaultHTTPAddr is used when http.addr is empty.
const DefaultHTTPAddr = "127.0.0.1:8080"

// Validate checks cross-field rules and every duration string. All problems are
// reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var d Durations
	dur := func(path, raw string) { d.Get(path, raw) }

	dur("http.read_timeout", cfg.HTTP.ReadTimeout)
	dur("http.write_timeout", cfg.HTTP.WriteTimeout)
	dur("http.idle_timeout", cfg.HTTP.IdleTimeout)
	dur("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout)
	if cfg.HTTP.RatePerSec < 0 || cfg.HTTP.Burst < 0 {
		add(errors.New("http: rate_per_sec and burst must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
	default:
		add(fmt.Errorf("storage.driver: unsupported %q", cfg.Storage.Driver))
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		add(errors.New("storage.path is required"))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)

	if strings.TrimSpace(cfg.Catalog.DSN) == "" {
		add(errors.New("catalog.dsn is required"))
	}

	switch RunnerMode(cfg.Runner) {
	case "http":
		if strings.TrimSpace(cfg.Runner.URL) == "" {
			add(errors.New("runner.url is required in http mode"))
		}
	case "dry":
	default:
		add(fmt.Errorf("runner.mode: unsupported %q", cfg.Runner.Mode))
	}
	dur("runner.timeout", cfg.Runner.Timeout)
	dur("runner.breaker_cooldown", cfg.Runner.BreakerCooldown)

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Scheduler.Overlap)) {
	case "", "skip", "allow":
	default:
		add(fmt.Errorf("scheduler.overlap: want skip or allow, got %q", cfg.Scheduler.Overlap))
	}
	dur("scheduler.run_timeout", cfg.Scheduler.RunTimeout)

	te := cfg.TaskEngine
	if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 {
		add(errors.New("task_engine: sizes must be >= 0"))
	}
	dur("task_engine.default_timeout", te.DefaultTimeout)
	dur("task_engine.max_queue_delay", te.MaxQueueDelay)

	if n := cfg.Notifier; n != nil {
		dur("notifier.retry_base", n.RetryBase)
		dur("notifier.retry_max_delay", n.RetryMaxDelay)
		dur("notifier.send_timeout", n.SendTimeout)
		dur("notifier.dedup_window", n.DedupWindow)
		dur("notifier.breaker_cooldown", n.BreakerCooldown)
		if n.RetryMax < 0 || n.Workers < 0 || n.QueueSize < 0 {
			add(errors.New("notifier: counts must be >= 0"))
		}
	}

	if s := cfg.SMTP; s != nil {
		if strings.TrimSpace(s.Host) == "" {
			add(errors.New("smtp.host is required when smtp is set"))
		}
		if s.Port < 0 || s.Port > 65535 {
			add(fmt.Errorf("smtp.port: out of range %d", s.Port))
		}
		switch strings.ToLower(strings.TrimSpace(s.TLS)) {
		case "", "mandatory", "opportunistic", "none":
		default:
			add(fmt.Errorf("smtp.tls: unsupported %q", s.TLS))
		}
		dur("smtp.timeout", s.Timeout)
	}

	if tg := cfg.Telegram; tg != nil && tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			add(errors.New("telegram.token is required when telegram is enabled"))
		}
		dur("telegram.timeout", tg.Timeout)
	}

	if p := cfg.Pprof; p.Enabled {
		if strings.TrimSpace(p.Token) == "" && !p.AllowInsecure && !IsLoopbackAddr(HTTPAddr(cfg.HTTP)) {
			add(errors.New("pprof: refusing non-loopback http.addr without token (set pprof.token or pprof.allow_insecure)"))
		}
	}

	return errors.Join(append(errs, d.Err())...)
}

// RunnerMode returns the normalized runner mode ("http" when empty).
func RunnerMode(r RunnerConfig) string {
	m := strings.ToLower(strings.TrimSpace(r.Mode))
	if m == "" {
		return "http"
	}
	return m
}

// HTTPAddr returns the listen address with the default applied.
func HTTPAddr(h HTTPConfig) string {
	if a := strings.TrimSpace(h.Addr); a != "" {
		return a
	}
	return DefaultHTTPAddr
}

// IsLoopbackAddr reports whether a listen address only binds loopback.
// An empty host (":8080") binds every interface.
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
