package catalog

import "github.com/google/uuid"

// IDGenerator mints a fresh filament identifier.
type IDGenerator func() string

// NewUUID returns a random version-4 UUID in canonical text form.
func NewUUID() string {
	return uuid.NewString()
}

// Backfill assigns gen() to every filament without an ID and returns how many
// were assigned. Existing IDs are never touched, so a second call assigns none.
// A nil gen uses NewUUID.
func Backfill(producers []*Producer, gen IDGenerator) int {
	if gen == nil {
		gen = NewUUID
	}
	assigned := 0
	Walk(producers, func(e Entry) bool {
		if e.Filament.ID == "" {
			e.Filament.ID = gen()
			assigned++
		}
		return true
	})
	return assigned
}

// IsUUID reports whether id parses as a UUID.
func IsUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
