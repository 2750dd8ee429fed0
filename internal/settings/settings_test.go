package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_MissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nested", "settings.yaml"))
	require.NoError(t, err)
	assert.Empty(t, s.GodotExecutablePath())
}

func TestStore_PersistsExecutablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetGodotExecutablePath("/opt/godot/godot"))
	assert.Equal(t, "/opt/godot/godot", s.GodotExecutablePath())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/godot/godot", reopened.GodotExecutablePath())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "godotExecutablePath: /opt/godot/godot")
}

func TestStore_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("godotExecutablePath: [unterminated"), 0o644))

	_, err := Open(path)
	require.Error(t, err)
}

func TestMemory(t *testing.T) {
	var m Memory
	assert.Empty(t, m.GodotExecutablePath())
	require.NoError(t, m.SetGodotExecutablePath("/usr/bin/godot"))
	assert.Equal(t, "/usr/bin/godot", m.GodotExecutablePath())
}
