package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOverlay(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadOverlayMissingFile(t *testing.T) {
	vars, err := LoadOverlay(filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestLoadOverlayReadsPairs(t *testing.T) {
	path := writeOverlay(t, "SPRING_PROFILES_ACTIVE=prod\nFEATURE_FLAGS=a,b\n")
	vars, err := LoadOverlay(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"SPRING_PROFILES_ACTIVE": "prod",
		"FEATURE_FLAGS":          "a,b",
	}, vars)
}

func TestLoadOverlayRejectsReservedKeys(t *testing.T) {
	for _, key := range reservedOverlayKeys {
		t.Run(key, func(t *testing.T) {
			path := writeOverlay(t, key+"=jdbc:postgresql://stale:5432/old\n")
			_, err := LoadOverlay(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestOverlayKeysStableOrder(t *testing.T) {
	keys := OverlayKeys(map[string]string{"B": "2", "A": "1", "C": "3"})
	assert.Equal(t, []string{"A", "B", "C"}, keys)
}
