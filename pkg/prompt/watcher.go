// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before reloading.
const DefaultDebounce = 100 * time.Millisecond

// Watcher keeps a template in sync with its file. A change that fails to
// parse, or leaves the file empty, is logged and the previous template
// stays live.
type Watcher struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration

	mu        sync.RWMutex
	current   *Template
	listeners []func(*Template)

	fsw      *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchLogger sets the logger for reload diagnostics.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets how long events are coalesced before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher loads the template at path. Call Start to follow changes.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	w := &Watcher{
		path:     filepath.Clean(path),
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	tmpl, err := Load(w.path)
	if err != nil {
		return nil, err
	}
	w.current = tmpl
	return w, nil
}

// Current returns the live template.
func (w *Watcher) Current() *Template {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers fn to run after each successful reload.
func (w *Watcher) OnChange(fn func(*Template)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Start watches the template's directory, so editors that replace the file
// on save are followed too. Watching stops on Stop or when ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.fsw != nil {
		w.mu.Unlock()
		return errors.New("template watcher already started")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Unlock()
		_ = fsw.Close()
		return err
	}
	w.fsw = fsw
	w.mu.Unlock()

	go w.watch(ctx)
	return nil
}

// Stop ends watching and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.mu.RLock()
	started := w.fsw != nil
	w.mu.RUnlock()
	if started {
		<-w.doneCh
	}
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)
	defer w.fsw.Close()

	// Saving a file is usually a truncate followed by one or more writes,
	// so events are coalesced and the reload runs once they settle.
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-timer.C:
			w.reload()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("template watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Error("failed to read prompt template, keeping previous", "path", w.path, "error", err)
		return
	}
	if strings.TrimSpace(string(raw)) == "" {
		w.logger.Debug("prompt template is empty, keeping previous", "path", w.path)
		return
	}
	tmpl, err := Parse(filepath.Base(w.path), string(raw))
	if err != nil {
		w.logger.Error("failed to reload prompt template, keeping previous", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	w.current = tmpl
	listeners := make([]func(*Template), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	w.logger.Info("prompt template reloaded", "path", w.path)
	for _, fn := range listeners {
		fn(tmpl)
	}
}
