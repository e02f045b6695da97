// Package render produces the per-filament leaf artifacts (printable QR tag
// model, QR image, previews) by delegating to a Renderer.
package render

import (
	"context"
	"strings"
)

// DefaultBaseURL is the public site that filament QR codes point to.
const DefaultBaseURL = "https://open-filament.github.io"

// Job describes one leaf rendering task.
type Job struct {
	ID       string // filament identifier
	URL      string // page the QR code encodes
	Dir      string // leaf output directory
	BaseName string // normalized filament name, used as file stem
}

// Asset is a renderer output advertised in the filament descriptor.
type Asset struct {
	Name     string
	Filename string
	Preview  bool
}

// Renderer renders leaf artifacts for a job. Implementations must be safe
// for concurrent use; Render is called from pool workers.
type Renderer interface {
	Render(ctx context.Context, job Job) error
	// Assets lists the files Render produces for baseName.
	Assets(baseName string) []Asset
}

// PageURL returns the public URL of a filament page.
func PageURL(baseURL, id string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimRight(baseURL, "/") + "/f/" + id
}

// Thumbnail returns the filename of the first preview asset, if any.
func Thumbnail(assets []Asset) string {
	for _, a := range assets {
		if a.Preview {
			return a.Filename
		}
	}
	return ""
}

// NoopRenderer renders nothing and declares no assets.
type NoopRenderer struct{}

func (NoopRenderer) Render(context.Context, Job) error { return nil }
func (NoopRenderer) Assets(string) []Asset             { return nil }
