// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events an editor save produces.
const reloadDebounce = 100 * time.Millisecond

// Watch reloads the override file whenever it changes until ctx is done.
// The parent directory is watched so editors that replace the file by rename
// are followed. The onReload callback, if non-nil, receives every reload
// result. Watch returns immediately for a fixed prompt.
func (s *Source) Watch(ctx context.Context, onReload func(error)) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create prompt watcher: %w", err)
	}

	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	go func() {
		defer watcher.Close()

		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce = time.After(reloadDebounce)
				}

			case <-debounce:
				debounce = nil
				err := s.Reload()
				if err != nil {
					s.logger.Printf("PROMPT_RELOAD_FAILED | path=%s error=%v", target, err)
				} else {
					s.logger.Printf("PROMPT_RELOADED | path=%s", target)
				}
				if onReload != nil {
					onReload(err)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Printf("PROMPT_WATCH_ERROR | path=%s error=%v", target, err)
			}
		}
	}()
	return nil
}
