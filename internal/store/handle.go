package store

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/open-filament/catalogbuilder/internal/catalog"
	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

// Handle is a loaded catalog guarded by an advisory file lock.
type Handle struct {
	path      string
	lock      *flock.Flock
	producers []*catalog.Producer
}

// Open locks path+".lock" without blocking and loads the catalog.
// A lock held elsewhere yields ErrCatalogLocked.
func Open(path string) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ferrors.FileSystemError("failed to create catalog directory").
			WithCause(err).
			WithContext("path", filepath.Dir(path)).
			Build()
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, ferrors.CatalogError("failed to acquire catalog lock").
			WithCause(err).
			WithContext("path", lock.Path()).
			Build()
	}
	if !locked {
		return nil, ErrCatalogLocked
	}

	producers, err := Load(path)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return &Handle{path: path, lock: lock, producers: producers}, nil
}

// Path returns the catalog file path.
func (h *Handle) Path() string { return h.path }

// Producers returns the loaded tree. Callers mutate it in place or replace it
// with SetProducers before Save.
func (h *Handle) Producers() []*catalog.Producer { return h.producers }

func (h *Handle) SetProducers(producers []*catalog.Producer) { h.producers = producers }

// Save writes the held tree atomically.
func (h *Handle) Save() error {
	return Save(h.path, h.producers)
}

// Close releases the lock. It is safe to call more than once.
func (h *Handle) Close() error {
	if h.lock == nil {
		return nil
	}
	err := h.lock.Unlock()
	h.lock = nil
	return err
}
