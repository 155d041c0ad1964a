package appdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const dirName = ".uantap"

var appDirCache string

// AppDir returns the per-user state directory. It falls back to the working
// directory when no home directory is known.
func AppDir() string {
	if appDirCache == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		appDirCache = filepath.Join(home, dirName)
	}
	return appDirCache
}

// EnsureDir creates the state directory if missing.
func EnsureDir() (string, error) {
	dir := AppDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("appdir: cannot create %s: %w", dir, err)
	}
	return dir, nil
}

// Path resolves name inside the state directory unless it is already absolute.
func Path(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	dir, err := EnsureDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
