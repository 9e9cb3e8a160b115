// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the write+rename bursts an atomic save produces.
const watchDebounce = 250 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk and hands
// the result to a callback. Invalid intermediate states are skipped; the
// callback only ever sees a configuration that passed validation.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	onLoad  func(*Config)
	cancel  context.CancelFunc
}

// NewWatcher watches the config file at path. onLoad runs on the watcher
// goroutine for every successful reload.
func NewWatcher(path string, onLoad func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: atomic saves replace the inode
	// and a file watch would go stale after the first rename.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:    path,
		watcher: fsw,
		onLoad:  onLoad,
		cancel:  cancel,
	}
	go w.run(ctx)
	return w, nil
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return

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
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watcher error: %v", err)

		case <-fire:
			cfg, err := LoadFromPath(w.path)
			if err != nil {
				log.Printf("config: reload skipped: %v", err)
				continue
			}
			w.onLoad(cfg)
		}
	}
}
