package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSyncSettingsDefaults(t *testing.T) {
	settings, err := LoadSyncSettings("")
	require.NoError(t, err)

	assert.Equal(t, "Books", settings.TargetFolder)
	assert.Equal(t, "Stomy-", settings.LibraryFolderPrefix)
	assert.True(t, settings.SyncReadingProgress)
	assert.True(t, settings.SyncAnnotations)
	assert.False(t, settings.SyncVocabulary)
	assert.Equal(t, 100, settings.MaxFileSizeMB)
	assert.Equal(t, MergePolicyMonotonic, settings.MergePolicy)
	assert.Equal(t, 30*time.Second, settings.DeviceIOTimeout)
	assert.Equal(t, int64(100*1024*1024), settings.MaxFileSizeBytes())
}

func TestLoadSyncSettingsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync-settings.yaml")
	contents := `
target_folder: /Books/
use_library_folders: true
max_file_size_mb: 50
merge_policy: last-writer-wins
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	settings, err := LoadSyncSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "/Books/", settings.TargetFolder)
	assert.True(t, settings.UseLibraryFolders)
	assert.Equal(t, 50, settings.MaxFileSizeMB)
	assert.Equal(t, MergePolicyLastWriterWins, settings.MergePolicy)
	// Untouched keys keep their defaults.
	assert.Equal(t, "Stomy-", settings.LibraryFolderPrefix)
	assert.True(t, settings.SyncReadingProgress)
}

func TestLoadSyncSettingsEnvOverride(t *testing.T) {
	t.Setenv("STOMY_SYNC_MERGE_POLICY", "last-writer-wins")
	t.Setenv("STOMY_SYNC_MAX_FILE_SIZE_MB", "25")

	settings, err := LoadSyncSettings("")
	require.NoError(t, err)

	assert.Equal(t, MergePolicyLastWriterWins, settings.MergePolicy)
	assert.Equal(t, 25, settings.MaxFileSizeMB)
}

func TestLoadSyncSettingsInvalid(t *testing.T) {
	t.Setenv("STOMY_SYNC_MERGE_POLICY", "newest-wins")

	_, err := LoadSyncSettings("")
	require.Error(t, err)
}

func TestLoadSyncSettingsMissingFileIsIgnored(t *testing.T) {
	settings, err := LoadSyncSettings(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Books", settings.TargetFolder)
}
