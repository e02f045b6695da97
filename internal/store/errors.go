package store

import (
	"fmt"

	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

// ErrCatalogLocked is returned by Open when another process holds the lock.
var ErrCatalogLocked = ferrors.CatalogError("catalog is locked by another process").Build()

// CorruptCatalogError reports a catalog file that exists but does not match
// the expected structure. It unwraps to a fatal catalog-category error.
type CorruptCatalogError struct {
	Path   string
	Reason string

	classified *ferrors.ClassifiedError
}

func newCorruptCatalogError(path, reason string, cause error) *CorruptCatalogError {
	b := ferrors.CatalogError(fmt.Sprintf("corrupt catalog %s: %s", path, reason)).
		WithContext("path", path)
	if cause != nil {
		b = b.WithCause(cause)
	}
	return &CorruptCatalogError{Path: path, Reason: reason, classified: b.Build()}
}

func (e *CorruptCatalogError) Error() string {
	return fmt.Sprintf("corrupt catalog %s: %s", e.Path, e.Reason)
}

func (e *CorruptCatalogError) Unwrap() error {
	return e.classified
}
