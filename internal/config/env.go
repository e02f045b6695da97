package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

// envFiles are loaded in order. godotenv never overrides a variable that is
// already set, so the process environment wins, then .env.local, then .env.
var envFiles = []string{".env.local", ".env"}

func loadEnvFiles() error {
	for _, name := range envFiles {
		if _, err := os.Stat(name); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return ferrors.ConfigError("failed to load environment file").
				WithCause(err).
				WithContext("path", name).
				Build()
		}
	}
	return nil
}
