package config

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	logx "apitask/pkg/logx"
)

const reloadDebounce = 250 * time.Millisecond

// errWatcherBroken ends one watcher session; Watch starts a new one.
var errWatcherBroken = errors.New("config watcher broken")

// Watch reloads the file after it changes until ctx is done. The parent
// directory is watched so atomic renames by editors are seen. A broken
// fsnotify watcher is recreated with exponential backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0

	for ctx.Err() == nil {
		err := m.watchOnce(ctx, dir, file, bo)
		if ctx.Err() != nil {
			break
		}
		wait := bo.NextBackOff()
		m.log.Warn("config watcher restarting", logx.String("dir", dir), logx.Err(err), logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
	return nil
}

// watchOnce runs one fsnotify session. It resets bo once the watcher is up.
func (m *ConfigManager) watchOnce(ctx context.Context, dir, file string, bo backoff.BackOff) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	bo.Reset()
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	// A nil channel never fires, so the timer arm is idle until armed.
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	arm := func() {
		if timer == nil {
			timer = time.NewTimer(reloadDebounce)
		} else {
			timer.Reset(reloadDebounce)
		}
		fire = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-fire:
			fire = nil
			if err := m.Reload(ctx); err != nil {
				m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherBroken
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) && ev.Op != 0 {
				arm()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherBroken
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; the file may have changed.
				m.log.Warn("config watch overflow", logx.Err(err))
				arm()
				continue
			}
			if err != nil {
				return err
			}
		}
	}
}
