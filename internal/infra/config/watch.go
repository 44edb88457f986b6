package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
)

// reloadDebounce absorbs the burst of events editors produce for one save.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the file at path whenever it changes and passes every
// valid result to fn. Invalid files are logged and skipped.
// Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	dir := filepath.Dir(path)
	file := filepath.Join(dir, filepath.Base(path))

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	defer w.Close()

	// Watch the directory so editors that replace the file are followed.
	if err := w.Add(dir); err != nil {
		return errors.Wrapf(err, "failed to watch %s", dir)
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			zlog.Warn().Msgf("config: reload failed, keeping current config: %v", err)
			return
		}
		zlog.Info().Msgf("config: reloaded: path=%s", path)
		fn(cfg)
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, reload)
	}
	defer func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == file && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			zlog.Warn().Msgf("config: watcher error: %v", err)
		}
	}
}
