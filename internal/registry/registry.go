// Copyright (C) 2026 the llmhostd authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package registry implements the active-model registry: the single
// persistent record of which model the serving host currently designates
// active. It is the rendezvous point between the model-switch HTTP API and
// the chat session engine, which reads it on startup and on reload.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/llmhostd/llmhostd/pkg/logging"
)

// Record is the persisted document at Registry.path.
type Record struct {
	ModelName   string `json:"model_name"`
	LastUpdated string `json:"last_updated"`
	Status      string `json:"status"`
}

const statusActive = "active"

// Registry guards reads and writes of the active-model record.
//
// ReadCurrent never fails on a missing or corrupt file — it returns an
// empty name, matching the source contract that absence is not an error.
// SetCurrent suppresses the write when the name is unchanged, so repeated
// assertions of the same model don't churn the file's mtime or fan out
// reload notifications.
type Registry struct {
	path   string
	logger *logging.Logger

	mu      sync.Mutex
	current string

	subMu sync.Mutex
	subs  []chan string

	watcher *fsnotify.Watcher
}

// New creates a Registry backed by the record at path. It does not touch
// the filesystem until ReadCurrent or SetCurrent is called.
func New(path string, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{path: path, logger: logger}
}

// ReadCurrent returns the currently active model name, or "" if the record
// is missing, empty, or fails to parse. It never returns an error for
// absence; only for use by a caller that wants the underlying cause would
// a variant be useful, but the contract here matches the source: absence
// is silent.
func (r *Registry) ReadCurrent() string {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return ""
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		r.logger.Warn("active-model record is corrupt, treating as absent", "path", r.path, "error", err)
		return ""
	}
	return rec.ModelName
}

// SetResult reports whether SetCurrent actually wrote the record.
type SetResult int

const (
	Unchanged SetResult = iota
	Changed
)

// SetCurrent atomically replaces the record with {name, now, "active"},
// but only if name differs from the record's current value. Returns
// Unchanged without touching the filesystem when the name is already
// current.
func (r *Registry) SetCurrent(name string) (SetResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ReadCurrent() == name {
		return Unchanged, nil
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return Unchanged, fmt.Errorf("create registry directory: %w", err)
	}

	rec := Record{
		ModelName:   name,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Status:      statusActive,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return Unchanged, fmt.Errorf("marshal active-model record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".current_model-*.tmp")
	if err != nil {
		return Unchanged, fmt.Errorf("create temp registry file: %w", err)
	}
	tmpPath := tmp.Name()
	wrote := false
	defer func() {
		if !wrote {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Unchanged, fmt.Errorf("write temp registry file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return Unchanged, fmt.Errorf("sync temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Unchanged, fmt.Errorf("close temp registry file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return Unchanged, fmt.Errorf("rename registry file into place: %w", err)
	}
	wrote = true

	r.current = name
	r.publish(name)
	return Changed, nil
}

// Subscribe returns a best-effort channel of model names pushed on every
// successful SetCurrent, including a SetCurrent observed via another
// process writing the file directly (detected by the fsnotify watch
// started by WatchExternalChanges). The channel is never closed by the
// registry; callers that stop listening should simply stop reading it.
func (r *Registry) Subscribe() <-chan string {
	ch := make(chan string, 1)
	r.subMu.Lock()
	r.subs = append(r.subs, ch)
	r.subMu.Unlock()
	return ch
}

func (r *Registry) publish(name string) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- name:
		default:
			// Slow subscriber: drop rather than block the writer. The
			// registry file itself remains the source of truth.
		}
	}
}

// WatchExternalChanges starts an fsnotify watch on the registry's
// directory so that a write to the record made by a different process is
// also pushed to subscribers, not only writes made through this Registry.
// The watch runs until done is closed.
func (r *Registry) WatchExternalChanges(done <-chan struct{}) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create registry watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch registry directory: %w", err)
	}
	r.watcher = w

	go func() {
		defer w.Close()
		for {
			select {
			case <-done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(r.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				r.mu.Lock()
				name := r.ReadCurrent()
				changed := name != r.current
				r.current = name
				r.mu.Unlock()
				if changed {
					r.publish(name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warn("registry watcher error", "error", err)
			}
		}
	}()
	return nil
}
