package daemon

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
	"github.com/open-filament/catalogbuilder/internal/logfields"
)

// DefaultDebounce is the quiet window used when none is configured.
const DefaultDebounce = time.Second

// Watcher reports changes below source trees and to single files, coalescing
// bursts of events into one notification per quiet window.
type Watcher struct {
	fs       *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration
	roots    []string
	files    map[string]bool
}

// NewWatcher creates a watcher with the given quiet window.
func NewWatcher(logger *slog.Logger, debounce time.Duration) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.RuntimeError("failed to create file watcher").WithCause(err).Build()
	}
	return &Watcher{fs: w, logger: logger, debounce: debounce, files: make(map[string]bool)}, nil
}

// AddTree watches root and every directory below it. Directories created
// later are picked up as they appear.
func (w *Watcher) AddTree(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return ferrors.FileSystemError("failed to resolve watch root").WithCause(err).WithContext("path", root).Build()
	}
	if _, err := os.Stat(abs); err != nil {
		return ferrors.FileSystemError("watch root does not exist").WithCause(err).WithContext("path", abs).Build()
	}
	w.roots = append(w.roots, abs)
	w.addDirs(abs)
	return nil
}

// AddFile watches a single file through its parent directory, which
// survives editors that replace the file on save.
func (w *Watcher) AddFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ferrors.FileSystemError("failed to resolve watched file").WithCause(err).WithContext("path", path).Build()
	}
	if err := w.fs.Add(filepath.Dir(abs)); err != nil {
		return ferrors.FileSystemError("failed to watch directory").WithCause(err).WithContext("path", filepath.Dir(abs)).Build()
	}
	w.files[abs] = true
	return nil
}

// Run delivers debounced change notifications to trigger until ctx ends.
// trigger receives the last changed path of the burst.
func (w *Watcher) Run(ctx context.Context, trigger func(path string)) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	var (
		fire <-chan time.Time
		last string
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			last = ev.Name
			timer.Reset(w.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			trigger(last)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", logfields.Error(err))
		}
	}
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if w.files[ev.Name] {
		return true
	}
	if !w.underRoot(ev.Name) || shouldIgnoreEvent(ev.Name) {
		return false
	}
	if ev.Op.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			w.addDirs(ev.Name)
		}
	}
	return true
}

func (w *Watcher) underRoot(path string) bool {
	for _, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) addDirs(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

// shouldIgnoreEvent reports hidden, editor swap and OS metadata files.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return base == "Thumbs.db"
}
