package source

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// ErrWatchClosed is returned by Wait after Close.
var ErrWatchClosed = errors.New("watcher closed")

// Watcher reports changes to a single file. The containing directory is
// watched so editors that replace the file on save are still noticed.
type Watcher struct {
	path   string
	w      *fsnotify.Watcher
	logger *log.Logger
}

// Watch starts watching path.
func Watch(path string, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	logger.Debug("fsnotify watching dir", "dir", dir)
	return &Watcher{path: filepath.Clean(path), w: w, logger: logger}, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

// Wait blocks until the file is written or created.
func (w *Watcher) Wait(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.w.Events:
			if !ok {
				return ErrWatchClosed
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			return nil
		case err, ok := <-w.w.Errors:
			if !ok {
				return ErrWatchClosed
			}
			w.logger.Debug("fsnotify error", "path", w.path, "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.w.Close()
}
