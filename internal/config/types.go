package config

// Config is the whole daemon configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// String values may reference environment variables as ${NAME}.
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	HTTP       HTTPConfig       `json:"http"`
	Storage    StorageConfig    `json:"storage"`
	Catalog    CatalogConfig    `json:"catalog"`
	Runner     RunnerConfig     `json:"runner"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	TaskEngine TaskEngineConfig `json:"task_engine"`

	// Notifier defaults to enabled when omitted.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	SMTP     *SMTPConfig     `json:"smtp,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Pprof    PprofConfig     `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HTTPConfig controls the API listener.
//
// Security note: prefer a loopback Addr; the API has no authentication of its own.
type HTTPConfig struct {
	Addr            string `json:"addr,omitempty"` // default: "127.0.0.1:8080"
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	Burst           int    `json:"burst,omitempty"`
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	IdleTimeout     string `json:"idle_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

// StorageConfig controls the task/report store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/apitask.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// CatalogConfig points at the project/case database (read-only).
type CatalogConfig struct {
	DSN         string `json:"dsn"`
	AutoMigrate bool   `json:"auto_migrate,omitempty"`
	Debug       bool   `json:"debug,omitempty"`
}

// RunnerConfig selects the case execution engine.
//
// Mode "http" (default) posts to URL; "dry" passes every case without running it.
type RunnerConfig struct {
	Mode            string `json:"mode,omitempty"`
	URL             string `json:"url,omitempty"`
	Token           string `json:"token,omitempty"` // do not log
	Timeout         string `json:"timeout,omitempty"`
	BreakerFailures int    `json:"breaker_failures,omitempty"`
	BreakerCooldown string `json:"breaker_cooldown,omitempty"`
}

// SchedulerConfig controls triggers.
//
// Overlap is "skip" (default: a firing is skipped while the previous firing of
// the same task is queued or running) or "allow".
type SchedulerConfig struct {
	Timezone   string `json:"timezone,omitempty"`
	Overlap    string `json:"overlap,omitempty"`
	RunTimeout string `json:"run_timeout,omitempty"`
}

// TaskEngineConfig controls the worker pool that executes firings.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
	BreakerFailures int    `json:"breaker_failures,omitempty"`
	BreakerCooldown string `json:"breaker_cooldown,omitempty"`
}

// DefaultNotifier is used when the notifier section is omitted.
func DefaultNotifier() NotifierConfig {
	return NotifierConfig{
		Enabled:       true,
		RetryMax:      3,
		RetryBase:     "500ms",
		RetryMaxDelay: "10s",
		DedupWindow:   "1m",
	}
}

// SMTPConfig is the relay used for report mail. Sender credentials come from each task.
type SMTPConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port,omitempty"`
	SSL     bool   `json:"ssl,omitempty"`
	TLS     string `json:"tls,omitempty"` // mandatory|opportunistic|none
	Timeout string `json:"timeout,omitempty"`
}

// TelegramConfig enables run summaries in a chat.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"` // do not log
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// PprofConfig mounts net/http/pprof on the API listener.
//
// Security note: when http.addr is not loopback, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}
