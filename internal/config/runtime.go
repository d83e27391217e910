package config

import (
	"os"
	"path/filepath"
)

// GetRuntimePath returns the directory holding the database and .env file.
// Relative paths are resolved against the working directory, so each
// project gets its own memory.
func GetRuntimePath() string {
	path := os.Getenv("MNEMO_RUNTIME_PATH")
	if path == "" {
		path = ".mnemo"
	}
	return resolvePath(path)
}

func resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, path)
}
