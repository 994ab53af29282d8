// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// OriginsWatcher holds the CORS allow-list file_overrides.go read at
// startup and keeps it current for the lifetime of the process. Every
// other Config field is read once at Load() and never changes, since
// the database DSN, LLM credentials, and embedding model a running
// process holds connections and caches for aren't safe to swap under
// it; the CORS allow-list is the one setting ragserve can apply live
// without tearing anything down, so it's the one CONFIG_FILE can
// hot-reload.
type OriginsWatcher struct {
	mu      sync.RWMutex
	origins []string
	watcher *fsnotify.Watcher
	log     *slog.Logger
}

// WatchOrigins pins origins to initial and, if path is non-empty, starts
// an fsnotify watch that re-reads its cors_origins key on every write.
// A caller that passes an empty path gets a watcher with no background
// goroutine, so disabling CONFIG_FILE costs nothing.
func WatchOrigins(path string, initial []string, log *slog.Logger) (*OriginsWatcher, error) {
	if log == nil {
		log = slog.Default()
	}
	w := &OriginsWatcher{origins: initial, log: log}
	if path == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create file watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.watcher = fw

	go w.loop(path)
	return w, nil
}

func (w *OriginsWatcher) loop(path string) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// editors commonly replace a file via rename-into-place, so
			// a Create for the watched path is treated the same as a
			// Write rather than requiring the caller re-run fw.Add.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload(path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config: file watch error", "path", path, "error", err)
		}
	}
}

func (w *OriginsWatcher) reload(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn("config: reload failed", "path", path, "error", err)
		return
	}
	var ov fileOverrides
	if err := yaml.Unmarshal(data, &ov); err != nil {
		w.log.Warn("config: reload parse failed", "path", path, "error", err)
		return
	}
	if len(ov.CORSOrigins) == 0 {
		return
	}

	w.mu.Lock()
	w.origins = ov.CORSOrigins
	w.mu.Unlock()
	w.log.Info("config: reloaded cors_origins", "count", len(ov.CORSOrigins))
}

// Origins returns the current CORS allow-list. Safe for concurrent use;
// passed directly as httpserver.Deps.CORSOrigins.
func (w *OriginsWatcher) Origins() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.origins
}

// Close stops the underlying filesystem watch, if one was started.
func (w *OriginsWatcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
