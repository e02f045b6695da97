package source

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

// DefaultPatterns match authored producer documents.
var DefaultPatterns = []string{"*.yml", "*.yaml"}

// Discover walks dir recursively and returns the files whose base name
// matches any of patterns, sorted for a deterministic merge order. Hidden
// directories are skipped.
func Discover(dir string, patterns ...string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	for _, p := range patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, ferrors.ConfigError("invalid source pattern").
				WithCause(err).
				WithContext("pattern", p).
				Build()
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		for _, p := range patterns {
			if ok, _ := filepath.Match(p, d.Name()); ok {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, ferrors.SourceError("failed to discover source documents").
			WithCause(err).
			WithContext("dir", dir).
			Build()
	}
	sort.Strings(files)
	return files, nil
}
