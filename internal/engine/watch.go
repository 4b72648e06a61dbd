package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dejo1307/cxxmodel/internal/grammar"
	"github.com/dejo1307/cxxmodel/internal/scheduler"
)

// Watch follows file system changes under every loaded project until ctx
// ends. Changed files are queued at Head once events have been quiet for
// the configured debounce interval; removed files are retracted.
func (e *Engine) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	for _, p := range e.Projects() {
		if err := e.addWatches(w, p.Root); err != nil {
			return fmt.Errorf("watching %s: %w", p.Name, err)
		}
	}

	debounce := time.Duration(e.cfg.Watch.DebounceMS) * time.Millisecond
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	pending := make(map[string]fsnotify.Op)
	logger.Infof("watching %d projects (debounce %s)", len(e.Projects()), debounce)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
					if err := e.addWatches(w, ev.Name); err != nil {
						logger.Warnf("watching new directory %s: %v", ev.Name, err)
					}
					continue
				}
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			pending[ev.Name] |= ev.Op
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("watch error: %v", err)
		case <-timer.C:
			e.applyChanges(pending)
			clear(pending)
		}
	}
}

// applyChanges turns a batch of debounced events into scheduler work.
func (e *Engine) applyChanges(changes map[string]fsnotify.Op) {
	e.sched.Suspend()
	defer e.sched.Resume()

	queued, removed := 0, 0
	for path, op := range changes {
		if !grammar.IsSource(path, e.cfg.Extensions) || e.isIgnored(path, false) {
			continue
		}
		p, rel, ok := e.projectFor(path)
		if !ok {
			continue
		}
		_, statErr := os.Stat(path)
		gone := errors.Is(statErr, fs.ErrNotExist)
		if gone || (op.Has(fsnotify.Remove) && statErr != nil) {
			e.sched.Remove(p.File(rel))
			e.forget(p.File(rel))
			removed++
			continue
		}
		if e.sched.Enqueue(p.File(rel), []scheduler.State{scheduler.NextState}, scheduler.Head, false) {
			queued++
		}
	}
	if queued+removed > 0 {
		logger.Infof("changes: %d files queued, %d removed", queued, removed)
	}
}

// addWatches adds root and every directory below it that is not ignored.
func (e *Engine) addWatches(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		if e.isIgnored(path, true) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			logger.Warnf("failed to watch %s: %v", path, err)
		}
		return nil
	})
}
