package helpers

import (
	"errors"
	"os"
	"path/filepath"
)

var rootMarkers = []string{".env", "go.mod"}

// Return application's root directory (first parent holding .env or go.mod).
func GetRootDir() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, marker := range rootMarkers {
			if _, err := os.Stat(filepath.Join(currentDir, marker)); err == nil {
				return currentDir, nil
			}
		}

		parent := filepath.Dir(currentDir)
		if parent == currentDir {
			return "", errors.New("unable to resolve root directory")
		}
		currentDir = parent
	}
}
