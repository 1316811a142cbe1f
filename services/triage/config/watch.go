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
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// PolicyWatcher serves the current Policy and reloads it when the file
// changes on disk.
//
// # Thread Safety
//
// Safe for concurrent use. Current may be called from any goroutine;
// Start should only be called once.
type PolicyWatcher struct {
	path    string
	current atomic.Pointer[Policy]
	watcher *fsnotify.Watcher
}

// NewPolicyWatcher loads the policy once and prepares a watcher on its
// directory. Watching the directory rather than the file survives the
// rename-and-replace writes most editors and config pushers do.
func NewPolicyWatcher(path string) (*PolicyWatcher, error) {
	policy, err := LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &PolicyWatcher{path: path, watcher: watcher}
	w.current.Store(policy)
	return w, nil
}

// Current returns the active policy.
func (w *PolicyWatcher) Current() *Policy {
	return w.current.Load()
}

// Start blocks until the context is cancelled, reloading the policy on
// file changes. A file that fails to load keeps the previous policy in
// effect. Should be run in a goroutine.
func (w *PolicyWatcher) Start(ctx context.Context) {
	defer w.watcher.Close()

	slog.Debug("Started watching triage policy", "path", w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			policy, err := LoadPolicy(w.path)
			if err != nil {
				slog.Warn("Policy reload failed, keeping previous policy",
					"path", w.path,
					"error", err)
				continue
			}
			w.current.Store(policy)
			slog.Info("Policy reloaded",
				"path", w.path,
				"dedup_threshold", policy.DedupThreshold,
				"hourly_budget", policy.HourlyBudget)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Policy watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}
