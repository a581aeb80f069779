package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports created or written guideline files in a directory.
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  *log.Logger
}

func NewWatcher(logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{watcher: w, logger: logger}, nil
}

// Run calls onChange for every supported file created or written under dir,
// subdirectories included, until ctx is done. Errors from onChange are
// logged and do not stop the watch.
func (w *Watcher) Run(ctx context.Context, dir string, onChange func(ctx context.Context, path string) error) error {
	if err := w.addTree(dir); err != nil {
		return err
	}
	w.logger.Printf("watching %s for guideline changes", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.watchNewDir(ctx, event.Name, onChange)
					continue
				}
			}
			if !Supported(event.Name) {
				continue
			}
			if err := onChange(ctx, event.Name); err != nil {
				w.logger.Printf("re-ingest failed for %s: %v", event.Name, err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// watchNewDir starts watching a directory created during the run and reports
// the files that landed in it before the watch was added.
func (w *Watcher) watchNewDir(ctx context.Context, dir string, onChange func(ctx context.Context, path string) error) {
	if err := w.addTree(dir); err != nil {
		w.logger.Printf("watcher error: %v", err)
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() || !Supported(path) {
			return nil
		}
		if err := onChange(ctx, path); err != nil {
			w.logger.Printf("re-ingest failed for %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
