package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyProducer   = "producer"
	KeyMaterial   = "material"
	KeyFilament   = "filament"
	KeyFilamentID = "filament_id"
	KeyDocument   = "document"
	KeyPath       = "path"
	KeyCount      = "count"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr      { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func Producer(name string) slog.Attr   { return slog.String(KeyProducer, name) }
func Material(name string) slog.Attr   { return slog.String(KeyMaterial, name) }
func Filament(name string) slog.Attr   { return slog.String(KeyFilament, name) }
func FilamentID(id string) slog.Attr   { return slog.String(KeyFilamentID, id) }
func Document(path string) slog.Attr   { return slog.String(KeyDocument, path) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
