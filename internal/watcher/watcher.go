// Package watcher submits analysis documents dropped into an inbox directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler is called once for every analysis document found in the inbox.
type Handler func(ctx context.Context, path string) error

// InboxWatcher watches a single directory, non-recursively.
type InboxWatcher struct {
	dir     string
	handler Handler
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	// settle gives writers time to finish before a new file is handled.
	settle time.Duration

	// seen holds the modification time of each handled file, so a document
	// dropped again under the same name is handled again.
	mu   sync.Mutex
	seen map[string]time.Time
}

func New(dir string, handler Handler, logger *slog.Logger) (*InboxWatcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	return &InboxWatcher{
		dir:     dir,
		handler: handler,
		logger:  logger,
		watcher: fw,
		settle:  500 * time.Millisecond,
		seen:    make(map[string]time.Time),
	}, nil
}

// Start handles the files already in the inbox, then every new one, until
// ctx is cancelled.
func (w *InboxWatcher) Start(ctx context.Context) error {
	w.logger.Info("inbox watcher started", "dir", w.dir)

	if err := w.scanExisting(ctx); err != nil {
		w.logger.Error("failed to scan inbox", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.forget(event.Name)
				continue
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !IsAnalysisFile(event.Name) {
				w.logger.Debug("ignoring inbox file", "path", event.Name)
				continue
			}

			select {
			case <-time.After(w.settle):
			case <-ctx.Done():
				return ctx.Err()
			}
			w.handle(ctx, event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *InboxWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *InboxWatcher) scanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsAnalysisFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		w.handle(ctx, filepath.Join(w.dir, name))
	}
	return nil
}

func (w *InboxWatcher) handle(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		w.logger.Warn("inbox file vanished", "path", path, "error", err)
		w.forget(path)
		return
	}
	modTime := info.ModTime()

	w.mu.Lock()
	if prev, ok := w.seen[path]; ok && prev.Equal(modTime) {
		w.mu.Unlock()
		return
	}
	w.seen[path] = modTime
	w.mu.Unlock()

	w.logger.Info("new analysis document", "path", path)

	if err := w.handler(ctx, path); err != nil {
		w.logger.Error("failed to handle inbox file", "path", path, "error", err)
		w.forget(path)
	}
}

func (w *InboxWatcher) forget(path string) {
	w.mu.Lock()
	delete(w.seen, path)
	w.mu.Unlock()
}

// IsAnalysisFile reports whether path names a visible .json file.
func IsAnalysisFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".json")
}
