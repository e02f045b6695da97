package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/open-filament/catalogbuilder/internal/catalog"
	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

// Load reads the catalog at path. A missing file yields an empty catalog.
func Load(path string) ([]*catalog.Producer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*catalog.Producer{}, nil
		}
		return nil, ferrors.CatalogError("failed to read catalog").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return Decode(path, data)
}

// Decode parses catalog bytes; path is used for error reporting only.
func Decode(path string, data []byte) ([]*catalog.Producer, error) {
	var records []producerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, newCorruptCatalogError(path, "invalid JSON structure", err)
	}
	if records == nil {
		return nil, newCorruptCatalogError(path, "top level must be an array", nil)
	}
	producers, reason := fromWire(records)
	if reason != "" {
		return nil, newCorruptCatalogError(path, reason, nil)
	}
	if v := catalog.Validate(producers); !v.Valid {
		return nil, newCorruptCatalogError(path, "invalid catalog", v.ToError())
	}
	return producers, nil
}

// Snapshot returns the exact bytes Save writes for producers.
func Snapshot(producers []*catalog.Producer) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(toWire(producers)); err != nil {
		return nil, ferrors.InternalError("failed to encode catalog").WithCause(err).Build()
	}
	return buf.Bytes(), nil
}

// Save replaces the catalog at path with producers. The new content is written
// to path+".tmp" first and renamed, so readers see either the old or the new
// file.
func Save(path string, producers []*catalog.Producer) error {
	data, err := Snapshot(producers)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ferrors.FileSystemError("failed to create catalog directory").
				WithCause(err).
				WithContext("path", dir).
				Build()
		}
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return ferrors.FileSystemError("failed to write temporary catalog file").
			WithCause(err).
			WithContext("path", tempPath).
			Build()
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return ferrors.FileSystemError(fmt.Sprintf("failed to replace catalog %s", path)).
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return nil
}
