package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	require.Equal(t, 50, cfg.MaxInlineValueSize)
	require.False(t, cfg.RemoveVoidProperties)
	require.Equal(t, 90*time.Second, cfg.LockTimeout)
	require.Equal(t, BackendMemory, cfg.Backend)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acebase.yaml")
	contents := `
max_inline_value_size: 100
remove_void_properties: true
backend: sqlite
dsn: "file:test.db"
debug: true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 100, cfg.MaxInlineValueSize)
	require.True(t, cfg.RemoveVoidProperties)
	require.Equal(t, BackendSQLite, cfg.Backend)
	require.Equal(t, "file:test.db", cfg.DSN)
	require.True(t, cfg.Debug)
	require.Equal(t, 15*time.Minute, cfg.LockTimeout)
}
