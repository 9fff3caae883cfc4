package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveDataRoot(t *testing.T) {
	t.Setenv("SLOTHUNTER_DATA_ROOT", "/tmp/custom-data")
	assert.Equal(t, "/tmp/custom-data", ResolveDataRoot())
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("SLOTHUNTER_DATA_ROOT", "/srv/sh")
	t.Setenv("SLOTHUNTER_CONFIG", "")

	// 1. explicit path wins
	assert.Equal(t, "/etc/sh.yaml", ResolveConfigPath("/etc/sh.yaml"))

	// 2. default under data root
	assert.Equal(t, filepath.Join("/srv/sh", "config", "default.yaml"), ResolveConfigPath(""))

	// 3. env override
	t.Setenv("SLOTHUNTER_CONFIG", "/opt/sh.yaml")
	assert.Equal(t, "/opt/sh.yaml", ResolveConfigPath(""))
}

func TestEnsureDirs(t *testing.T) {
	tmpRoot := filepath.Join(t.TempDir(), "data")
	t.Setenv("SLOTHUNTER_DATA_ROOT", tmpRoot)

	err := EnsureDirs()
	assert.NoError(t, err)

	for _, sub := range []string{"config", "logs"} {
		info, err := os.Stat(filepath.Join(tmpRoot, sub))
		if assert.NoError(t, err) {
			assert.True(t, info.IsDir())
		}
	}
}
