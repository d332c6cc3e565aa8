package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceWindow = 200 * time.Millisecond

// Watch reloads the file at path whenever it changes and passes valid
// configurations to onChange. Invalid files are logged and skipped.
// The parent directory is watched so editors that replace the file are seen.
func Watch(ctx context.Context, path string, onChange func(*File)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return err
	}
	slog.Debug("config: watching file", "path", abs)

	go func() {
		defer w.Close()

		// Bursts of writes are coalesced into one reload.
		timer := time.NewTimer(debounceWindow)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				timer.Reset(debounceWindow)
			case <-timer.C:
				f, err := Load(abs)
				if err != nil {
					slog.Warn("config: reload failed, keeping previous configuration", "path", abs, "error", err)
					continue
				}
				slog.Info("config: reloaded", "path", abs)
				onChange(f)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Debug("config: watcher error", "error", err)
			}
		}
	}()
	return nil
}
