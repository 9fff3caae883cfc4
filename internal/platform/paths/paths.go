package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const appDir = "slothunter"

// ResolveDataRoot returns the directory holding config and logs.
// SLOTHUNTER_DATA_ROOT wins, then the user config dir.
func ResolveDataRoot() string {
	if root := os.Getenv("SLOTHUNTER_DATA_ROOT"); root != "" {
		return root
	}
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, appDir)
	}
	return "." + appDir
}

// ResolveConfigPath returns the config file to load.
func ResolveConfigPath(customPath string) string {
	if customPath != "" {
		return customPath
	}
	if p := os.Getenv("SLOTHUNTER_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(ResolveDataRoot(), "config", "default.yaml")
}

// EnsureDirs creates the standard data subdirectories if they don't exist.
func EnsureDirs() error {
	dataRoot := ResolveDataRoot()
	for _, sub := range []string{"config", "logs"} {
		path := filepath.Join(dataRoot, sub)
		if err := os.MkdirAll(path, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}
	return nil
}
