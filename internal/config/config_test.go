package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "accounts.yaml", cfg.AccountsFile)
	assert.Equal(t, 15*time.Minute, cfg.ScanInterval)
	assert.False(t, cfg.FileNameOriginal)
	assert.True(t, cfg.FormatCompatibility)
	assert.False(t, cfg.NotifyEnabled)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "state.db", filepath.Base(cfg.StateDBPath))
	assert.Equal(t, ".photosync", filepath.Base(filepath.Dir(cfg.StateDBPath)))
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PHOTOSYNC_ACCOUNTS_FILE", "/etc/photosync/accounts.yaml")
	t.Setenv("PHOTOSYNC_STATE_DB", "/var/lib/photosync/state.db")
	t.Setenv("PHOTOSYNC_LIBRARY_DIR", "/srv/photos")
	t.Setenv("PHOTOSYNC_SCAN_INTERVAL", "5m")
	t.Setenv("PHOTOSYNC_FILENAME_MASK", "yyyy-MM-dd_HHmmss")
	t.Setenv("PHOTOSYNC_FILENAME_ORIGINAL", "true")
	t.Setenv("PHOTOSYNC_FORMAT_COMPATIBILITY", "false")
	t.Setenv("PHOTOSYNC_NOTIFY", "true")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/etc/photosync/accounts.yaml", cfg.AccountsFile)
	assert.Equal(t, "/var/lib/photosync/state.db", cfg.StateDBPath)
	assert.Equal(t, "/srv/photos", cfg.LibraryDir)
	assert.Equal(t, 5*time.Minute, cfg.ScanInterval)
	assert.Equal(t, "yyyy-MM-dd_HHmmss", cfg.FileNameMask)
	assert.True(t, cfg.FileNameOriginal)
	assert.False(t, cfg.FormatCompatibility)
	assert.True(t, cfg.NotifyEnabled)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoadRejectsShortScanInterval(t *testing.T) {
	t.Setenv("PHOTOSYNC_SCAN_INTERVAL", "10s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PHOTOSYNC_SCAN_INTERVAL")
}

func TestLoadRejectsEmptyAccountsFile(t *testing.T) {
	t.Setenv("PHOTOSYNC_ACCOUNTS_FILE", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PHOTOSYNC_ACCOUNTS_FILE")
}

func TestLoadRejectsMalformedInterval(t *testing.T) {
	t.Setenv("PHOTOSYNC_SCAN_INTERVAL", "soon")

	_, err := Load()
	assert.Error(t, err)
}
