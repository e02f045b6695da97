// Package errors provides the classified error primitives used across catalogbuilder.
//
// A ClassifiedError carries a category (catalog, source, render, ...), a
// severity and a retry hint plus structured context. The build pipeline uses
// the category to decide propagation: catalog errors abort a run, source and
// render errors are absorbed into the run report.
//
// Example usage:
//
//	err := errors.CatalogError("catalog is not a JSON array").
//		WithCause(jsonErr).
//		WithContext("path", path).
//		Build()
package errors
