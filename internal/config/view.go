// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// ChangedModel names a model whose ModelSpec differs between the previous
// and current Snapshot after a reload. Callers (the Supervisor) use this to
// decide which running Workers need to be stopped, per spec.md §6: "the
// affected Worker is stopped and will be restarted on next Ensure."
type ChangedModel struct {
	Name string
}

// View owns an atomically-swapped Snapshot and, optionally, an fsnotify
// watcher that reloads it on external writes. This mirrors the file-watcher
// pattern used elsewhere in the codebase for cache invalidation (e.g. a git
// HEAD watcher), generalized to configuration.
type View struct {
	path    string
	current atomic.Pointer[Snapshot]
	logger  *slog.Logger

	watcher  *fsnotify.Watcher
	onChange func([]ChangedModel)
}

// Load reads and parses the file at path, returning a ready View. The
// returned View holds no watcher; call Watch to start hot-reload.
func Load(path string, logger *slog.Logger) (*View, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := &View{path: path, logger: logger}
	if err := v.reload(); err != nil {
		return nil, err
	}
	return v, nil
}

// Current returns the live Snapshot. Safe for concurrent use; the returned
// pointer is never mutated in place.
func (v *View) Current() *Snapshot {
	return v.current.Load()
}

func (v *View) reload() error {
	data, err := os.ReadFile(v.path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", v.path, err)
	}
	snap, err := Parse(data)
	if err != nil {
		return err
	}
	v.current.Store(snap)
	return nil
}

// OnModelsChanged registers a callback invoked after a successful reload
// with the set of models whose ModelSpec changed. Only one callback may be
// registered; a later call replaces the previous one.
func (v *View) OnModelsChanged(fn func([]ChangedModel)) {
	v.onChange = fn
}

// Watch starts an fsnotify watcher on the config file's directory and
// reloads on Write/Create events targeting the file, until ctx is
// cancelled. Reload errors are logged and the previous Snapshot is kept
// live — a malformed in-progress write must never take down the gateway.
func (v *View) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	v.watcher = w

	dir := dirOf(v.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("config: watching %s: %w", dir, err)
	}

	go v.watchLoop(ctx)
	return nil
}

func (v *View) watchLoop(ctx context.Context) {
	defer v.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-v.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != v.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			v.handleWrite()
		case err, ok := <-v.watcher.Errors:
			if !ok {
				return
			}
			v.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (v *View) handleWrite() {
	previous := v.current.Load()
	if err := v.reload(); err != nil {
		v.logger.Warn("config reload failed, keeping previous snapshot", "error", err)
		return
	}
	v.logger.Info("config reloaded", "path", v.path)
	if v.onChange == nil || previous == nil {
		return
	}
	next := v.current.Load()
	var changed []ChangedModel
	for name := range previous.Models {
		if previous.modelSpecChanged(name, next) {
			changed = append(changed, ChangedModel{Name: name})
		}
	}
	if len(changed) > 0 {
		v.onChange(changed)
	}
}

// Close stops the watcher, if one was started.
func (v *View) Close() error {
	if v.watcher == nil {
		return nil
	}
	return v.watcher.Close()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
