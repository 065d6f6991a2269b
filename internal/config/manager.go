package config

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"os"
	"sync"
	"time"

	logx "apitask/pkg/logx"
)

const validateTimeout = 5 * time.Second

// ConfigManager owns the current config and hands new versions to subscribers.
type ConfigManager struct {
	path string
	log  logx.Logger

	// validator runs after Validate on every reload; a hot-apply dry run.
	validator func(ctx context.Context, cfg *Config) error

	mu   sync.RWMutex
	cfg  *Config
	hash uint64

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan *Config
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, log: logx.Nop(), subs: make(map[int]chan *Config)}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads and decodes the file. It does not validate.
func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return Decode(m.path, b)
}

// Load parses and validates the file, then makes it current.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	m.commit(cfg, fingerprint(cfg))
	return cfg, nil
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Reload re-reads the file. A config identical to the current one is
// ignored; otherwise it must pass Validate and the validator hook before it
// becomes current and is published.
func (m *ConfigManager) Reload(ctx context.Context) error {
	cfg, err := m.Parse()
	if err != nil {
		return err
	}
	fp := fingerprint(cfg)
	m.mu.RLock()
	same := fp != 0 && fp == m.hash
	m.mu.RUnlock()
	if same {
		m.log.Debug("config unchanged", logx.String("path", m.path))
		return nil
	}

	if err := Validate(cfg); err != nil {
		return err
	}
	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			return err
		}
	}

	m.commit(cfg, fp)
	n := m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.Int("subscribers", n))
	return nil
}

func (m *ConfigManager) commit(cfg *Config, fp uint64) {
	m.mu.Lock()
	m.cfg, m.hash = cfg, fp
	m.mu.Unlock()
}

// Subscribe returns a channel that receives each newly published config.
// A subscriber that falls behind only sees the latest one.
func (m *ConfigManager) Subscribe(buffer int) (<-chan *Config, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Config, buffer)

	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

// publish holds subMu while sending so an unsubscribe cannot close a
// channel mid-send.
func (m *ConfigManager) publish(cfg *Config) int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		for sent := false; !sent; {
			select {
			case ch <- cfg:
				sent = true
			default:
				// Full: discard the oldest pending config.
				select {
				case <-ch:
				default:
				}
			}
		}
	}
	return len(m.subs)
}

// fingerprint hashes the decoded config, so formatting-only edits and
// editor double writes compare equal.
func fingerprint(cfg *Config) uint64 {
	b, err := json.Marshal(cfg)
	if err != nil || len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
