// Package store persists the catalog as a single JSON document.
//
// Load is strict: any structural mismatch is reported as a CorruptCatalogError
// before the caller has a chance to write anything. Save replaces the file
// atomically by writing a sibling temporary file and renaming it into place.
// Open adds an advisory lock so a second writer on the same catalog is
// detected instead of silently racing.
package store
