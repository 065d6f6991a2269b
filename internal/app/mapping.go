package app

import (
	"fmt"
	"strings"
	"time"

	"apitask/internal/catalog"
	"apitask/internal/config"
	"apitask/internal/httpapi"
	"apitask/internal/notifier"
	"apitask/internal/runner"
	"apitask/internal/storage"
	"apitask/internal/task/engine"
	"apitask/internal/task/scheduler"
	"apitask/internal/transport/email"
	"apitask/internal/transport/telegram"
	logx "apitask/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	var d config.Durations
	out := storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: d.Or("storage.busy_timeout", sc.BusyTimeout, 5*time.Second),
	}
	return out, d.Err()
}

func mapCatalogConfig(cfg *config.Config) catalog.Config {
	return catalog.Config{
		DSN:         cfg.Catalog.DSN,
		AutoMigrate: cfg.Catalog.AutoMigrate,
		Debug:       cfg.Catalog.Debug,
	}
}

func mapRunnerConfig(cfg *config.Config) (runner.Config, error) {
	rc := cfg.Runner
	var d config.Durations
	out := runner.Config{
		URL:             strings.TrimSpace(rc.URL),
		Token:           rc.Token,
		Timeout:         d.Get("runner.timeout", rc.Timeout),
		BreakerFailures: rc.BreakerFailures,
		BreakerCooldown: d.Get("runner.breaker_cooldown", rc.BreakerCooldown),
	}
	return out, d.Err()
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	var d config.Durations
	out := engine.Config{
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: d.Get("task_engine.default_timeout", te.DefaultTimeout),
		MaxQueueDelay:  d.Get("task_engine.max_queue_delay", te.MaxQueueDelay),
		HistorySize:    te.HistorySize,
	}
	return out, d.Err()
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	var d config.Durations
	out := scheduler.Config{
		Timezone:   strings.TrimSpace(sc.Timezone),
		RunTimeout: d.Get("scheduler.run_timeout", sc.RunTimeout),
	}
	if err := d.Err(); err != nil {
		return scheduler.Config{}, err
	}
	switch strings.ToLower(strings.TrimSpace(sc.Overlap)) {
	case "", "skip":
		out.Overlap = engine.OverlapSkipIfRunning
	case "allow":
		out.Overlap = engine.OverlapAllow
	default:
		return scheduler.Config{}, fmt.Errorf("scheduler.overlap: unsupported %q", sc.Overlap)
	}
	return out, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := config.DefaultNotifier()
	if cfg.Notifier != nil {
		nc = *cfg.Notifier
	}
	var d config.Durations
	out := notifier.Config{
		Enabled:         nc.Enabled,
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		RetryBase:       d.Get("notifier.retry_base", nc.RetryBase),
		RetryMaxDelay:   d.Get("notifier.retry_max_delay", nc.RetryMaxDelay),
		SendTimeout:     d.Get("notifier.send_timeout", nc.SendTimeout),
		DedupWindow:     d.Get("notifier.dedup_window", nc.DedupWindow),
		DedupMaxEntries: nc.DedupMaxEntries,
		PersistDedup:    nc.PersistDedup,
		BreakerFailures: nc.BreakerFailures,
		BreakerCooldown: d.Get("notifier.breaker_cooldown", nc.BreakerCooldown),
	}
	if err := d.Err(); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

// mapEmailConfig returns ok=false when no SMTP relay is configured.
func mapEmailConfig(cfg *config.Config) (email.Config, bool, error) {
	sc := cfg.SMTP
	if sc == nil || strings.TrimSpace(sc.Host) == "" {
		return email.Config{}, false, nil
	}
	timeout, err := config.ParseDuration("smtp.timeout", sc.Timeout)
	if err != nil {
		return email.Config{}, false, err
	}
	return email.Config{
		Host:    strings.TrimSpace(sc.Host),
		Port:    sc.Port,
		SSL:     sc.SSL,
		TLS:     strings.ToLower(strings.TrimSpace(sc.TLS)),
		Timeout: timeout,
	}, true, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, bool, error) {
	tc := cfg.Telegram
	if tc == nil || !tc.Enabled {
		return telegram.Config{}, false, nil
	}
	timeout, err := config.ParseDuration("telegram.timeout", tc.Timeout)
	if err != nil {
		return telegram.Config{}, false, err
	}
	return telegram.Config{
		Token:    tc.Token,
		ChatID:   tc.ChatID,
		ThreadID: tc.ThreadID,
		APIURL:   strings.TrimSpace(tc.APIURL),
		Timeout:  timeout,
	}, true, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	hc := cfg.HTTP
	var d config.Durations
	out := httpapi.Config{
		Addr:            config.HTTPAddr(hc),
		RatePerSec:      hc.RatePerSec,
		Burst:           hc.Burst,
		ReadTimeout:     d.Get("http.read_timeout", hc.ReadTimeout),
		WriteTimeout:    d.Get("http.write_timeout", hc.WriteTimeout),
		IdleTimeout:     d.Get("http.idle_timeout", hc.IdleTimeout),
		ShutdownTimeout: d.Get("http.shutdown_timeout", hc.ShutdownTimeout),
		Pprof: httpapi.PprofConfig{
			Enabled:              cfg.Pprof.Enabled,
			Prefix:               cfg.Pprof.Prefix,
			Token:                strings.TrimSpace(cfg.Pprof.Token),
			AllowInsecure:        cfg.Pprof.AllowInsecure,
			MutexProfileFraction: cfg.Pprof.MutexProfileFraction,
			BlockProfileRate:     cfg.Pprof.BlockProfileRate,
			MemProfileRate:       cfg.Pprof.MemProfileRate,
		},
	}
	return out, d.Err()
}
