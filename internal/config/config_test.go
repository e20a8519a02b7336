package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, &Config{}, cfg)
}

func TestLoadDecodesFields(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(
		"root = \"origin/main\"\nno_update = true\nqueue_capacity = 8\n",
	), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, &Config{Root: "origin/main", NoUpdate: true, QueueCap: 8}, cfg)
}

func TestLoadMalformedFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("not valid toml = ["), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}
