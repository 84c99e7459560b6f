// Package appdata owns the per-OS application-data directory and the
// persisted AppState document described in spec §6's on-disk layout.
package appdata

import (
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DataDir resolves the per-OS application data directory: XDG on
// Linux, AppData\Roaming on Windows, Library/Application Support on
// macOS. Grounded on the teacher's internal/config/paths.go.
func DataDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		return filepath.Join(appData, "imagenetdl")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "imagenetdl")
	case "linux":
		dataHome := os.Getenv("XDG_DATA_HOME")
		if dataHome == "" {
			home, _ := os.UserHomeDir()
			dataHome = filepath.Join(home, ".local", "share")
		}
		return filepath.Join(dataHome, "imagenetdl")
	default:
		dir, _ := os.UserConfigDir()
		return filepath.Join(dir, "imagenetdl")
	}
}

// EnsureDataDir creates DataDir() if missing and returns it.
func EnsureDataDir() (string, error) {
	dir := DataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// ParseDestination unwraps a file:// URI into a plain filesystem path,
// otherwise returns the trimmed input unchanged. Grounded on the
// original's DownloadConfiguration._parse_url.
func ParseDestination(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}
	if u, err := url.Parse(trimmed); err == nil && u.Scheme == "file" {
		return filepath.Join(u.Host, filepath.FromSlash(u.Path))
	}
	return trimmed
}
