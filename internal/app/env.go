package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DotEnvFile is read from the data directory.
const DotEnvFile = ".env"

// LoadDotEnv loads <dataDir>/.env into the process environment. Variables
// that are already set win. A missing file is not an error.
func LoadDotEnv(dataDir string) error {
	path := filepath.Join(dataDir, DotEnvFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
