package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// TableWatcher reloads the auth tables file when it changes on disk.
type TableWatcher struct {
	path    string
	source  *TableSource
	watcher *fsnotify.Watcher

	// OnReload, if set, is called after a successful reload.
	OnReload func(*Tables)

	// OnError, if set, is called when a reload attempt fails. The
	// previous snapshot stays active.
	OnError func(error)
}

// NewTableWatcher watches the directory containing path. Watching the
// directory rather than the file survives editors that replace the file
// by rename.
func NewTableWatcher(path string, source *TableSource) (*TableWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &TableWatcher{
		path:    path,
		source:  source,
		watcher: watcher,
	}, nil
}

// Run processes filesystem events until the context is cancelled.
func (w *TableWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if w.OnError != nil {
				w.OnError(err)
			}
		}
	}
}

func (w *TableWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *TableWatcher) reload() {
	tables, err := LoadTables(w.path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(err)
		}
		return
	}

	w.source.Replace(tables)
	if w.OnReload != nil {
		w.OnReload(tables)
	}
}
