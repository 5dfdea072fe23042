// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce collapses the burst of events an editor save produces.
const DefaultWatchDebounce = 250 * time.Millisecond

// ReloadFunc receives the reloaded configuration, or the error that kept it
// from loading. A failed reload leaves the previous configuration in effect.
type ReloadFunc func(cfg *Config, err error)

// =============================================================================
// FSNOTIFY WATCHER
// =============================================================================

// Watcher reloads a config file whenever it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload ReloadFunc

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
}

// Watch starts watching path. The parent directory is watched rather than the
// file so that atomic renames (used by Save and most editors) are seen.
func Watch(path string, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	if onReload == nil {
		return nil, fmt.Errorf("watch %s: reload callback is required", path)
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		path:     absPath,
		debounce: debounce,
		onReload: onReload,
		watcher:  fsw,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.processEvents()

	log.Printf("CONFIG_WATCH | path=%s debounce=%s", absPath, debounce)
	return w, nil
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

// processEvents filters events down to the watched file and schedules reloads.
func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("CONFIG_WATCH_ERROR | path=%s error=%v", w.path, err)
		}
	}
}

// schedule (re)starts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	if _, err := os.Stat(w.path); err != nil {
		// Renamed away mid-save; the Create for the new file follows.
		return
	}
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		log.Printf("CONFIG_RELOAD_FAILED | path=%s error=%v", w.path, err)
	} else {
		log.Printf("CONFIG_RELOADED | path=%s model=%s", w.path, cfg.Chat.Model)
	}
	w.onReload(cfg, err)
}
