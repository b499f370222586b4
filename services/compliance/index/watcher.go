// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce batches the burst of events an atomic rename pair produces
// into a single reload.
const reloadDebounce = 500 * time.Millisecond

// WatchIndex hot-reloads the retriever when the index pair changes on disk.
//
// # Description
//
// Watches the index file's directory (the files themselves are replaced by
// rename, which would drop a direct file watch) and triggers a debounced
// Reload when the index or its sidecar is created or renamed into place. A
// failed reload is logged and the previous index keeps serving; the next
// change triggers another attempt.
//
// Blocks until ctx is cancelled.
func WatchIndex(ctx context.Context, r *Retriever) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("index watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(r.indexPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("index watcher: watch %s: %w", dir, err)
	}
	slog.Info("Watching index for changes", "dir", dir)

	indexName := filepath.Base(r.indexPath)
	metaName := filepath.Base(MetaPath(r.indexPath))

	var timer *time.Timer
	var timerCh <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("index watcher: event channel closed")
			}
			name := filepath.Base(event.Name)
			if name != indexName && name != metaName {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerCh = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			if err := r.Reload(); err != nil {
				slog.Warn("Index reload failed, keeping previous index", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("index watcher: error channel closed")
			}
			slog.Warn("Index watcher error", "error", err)
		}
	}
}
