package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetPackratHome returns the packrat home directory
// Priority order:
//   1. PACKRAT_HOME environment variable (if set)
//   2. $HOME/.packrat
//   3. .packrat in the current working directory (no home directory)
// The directory is created if it doesn't exist
func GetPackratHome() (string, error) {
	home := os.Getenv("PACKRAT_HOME")
	if home == "" {
		base, err := os.UserHomeDir()
		if err != nil {
			if base, err = os.Getwd(); err != nil {
				return "", fmt.Errorf("get working directory: %w", err)
			}
		}
		home = filepath.Join(base, ".packrat")
	}

	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create packrat home directory: %w", err)
	}
	return home, nil
}

// GetHistoryDBPath returns the default history database path
// Always returns: $PACKRAT_HOME/history.db
func GetHistoryDBPath() (string, error) {
	home, err := GetPackratHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "history.db"), nil
}
