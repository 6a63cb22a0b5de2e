package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-indexes a project when class files or jars under its root change.
// Events are debounced; one IndexProject run covers every change in a burst.
type Watcher struct {
	indexer  *Indexer
	root     string
	config   *Config
	debounce time.Duration
	watcher  *fsnotify.Watcher

	// OnIndexed, when set, receives the outcome of every run
	OnIndexed func(*Statistics, error)
}

// NewWatcher watches root and every non-hidden directory below it
func NewWatcher(idx *Indexer, root string, config *Config, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	w := &Watcher{
		indexer:  idx,
		root:     root,
		config:   config,
		debounce: debounce,
		watcher:  fw,
	}
	if err := w.addWatches(root); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to add watches starting from %s: %w", root, err)
	}
	return w, nil
}

// Run processes events until ctx is done. Pending changes are dropped on exit.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(event) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("File watcher error: %v", err)

		case <-timer.C:
			stats, err := w.indexer.IndexProject(ctx, w.root, w.config)
			if errors.Is(err, ErrIndexingInProgress) {
				// Someone else is indexing; try again once they are done
				timer.Reset(w.debounce)
				continue
			}
			if err != nil {
				log.Printf("Re-index of %s failed: %v", w.root, err)
			}
			if w.OnIndexed != nil {
				w.OnIndexed(stats, err)
			}
		}
	}
}

// handleEvent reports whether event should trigger a re-index
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	path := event.Name
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !isHidden(info.Name()) {
				if err := w.addWatches(path); err != nil {
					log.Printf("Warning: failed to add watch for new directory %s: %v", path, err)
				}
			}
			// Class files may have landed before the watch was added
			return true
		}
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return strings.HasSuffix(path, classSuffix) || strings.HasSuffix(path, jarSuffix)
}

// addWatches adds a watch for dir and each non-hidden directory beneath it
func (w *Watcher) addWatches(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			log.Printf("Warning: failed to add watch for %s: %v", path, err)
		}
		return nil
	})
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
