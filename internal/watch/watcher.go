// Package watch surfaces file-change notifications for the post store.
package watch

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to a single file. The parent directory is
// watched rather than the file itself: the stores publish via
// rename-over, which replaces the inode and would silently detach a
// direct file watch.
type Watcher struct {
	fsw     *fsnotify.Watcher
	path    string
	changes chan struct{}
	logger  *log.Logger
}

// New creates a watcher for the given file path.
func New(path string, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		fsw:     fsw,
		path:    filepath.Clean(path),
		changes: make(chan struct{}, 1),
		logger:  logger,
	}, nil
}

// Changes delivers one signal per observed change. The channel has
// capacity 1; bursts coalesce when the consumer is behind.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run consumes filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			select {
			case w.changes <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("[watch] %v", err)
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
