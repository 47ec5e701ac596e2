package config

import (
	"context"
	"fmt"
	"os"
	"time"
)

// hoursWatcher polls hours.yaml and hands every valid revision to onUpdate.
type hoursWatcher struct {
	path     string
	onUpdate func(*HoursConfig)
	onError  func(error)
	seen     time.Time
}

// WatchHours loads hours.yaml once, synchronously, and then polls its
// modification time every interval until ctx is done. A revision that fails
// validation is reported through onError and the previous one stays in force.
// Both callbacks may be nil.
func WatchHours(ctx context.Context, path string, interval time.Duration, onUpdate func(*HoursConfig), onError func(error)) error {
	if path == "" {
		path = "configs/hours.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	w := &hoursWatcher{path: path, onUpdate: onUpdate, onError: onError}
	mod, err := w.modTime()
	if err != nil {
		return fmt.Errorf("stat hours file: %w", err)
	}
	cfg, err := LoadHours(path)
	if err != nil {
		return err
	}
	w.seen = mod
	w.deliver(cfg)

	go w.poll(ctx, interval)
	return nil
}

func (w *hoursWatcher) poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *hoursWatcher) check() {
	mod, err := w.modTime()
	// Editors often replace the file, so a missing file is retried next tick.
	if err != nil || !mod.After(w.seen) {
		return
	}
	w.seen = mod

	cfg, err := LoadHours(w.path)
	if err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	w.deliver(cfg)
}

func (w *hoursWatcher) deliver(cfg *HoursConfig) {
	if w.onUpdate != nil {
		w.onUpdate(cfg)
	}
}

func (w *hoursWatcher) modTime() (time.Time, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
