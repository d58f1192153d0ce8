package config

import (
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// Merge policy values for reconciling device progress into the library.
const (
	MergePolicyMonotonic      = "monotonic"
	MergePolicyLastWriterWins = "last-writer-wins"
)

const settingsEnvPrefix = "STOMY_SYNC_"

// SyncSettings is the user-facing configuration surface of the sync engine.
// Values are layered: struct defaults, then the YAML settings file, then
// STOMY_SYNC_* environment variables.
type SyncSettings struct {
	TargetFolder        string        `koanf:"target_folder" default:"Books"`
	UseLibraryFolders   bool          `koanf:"use_library_folders"`
	LibraryFolderPrefix string        `koanf:"library_folder_prefix" default:"Stomy-"`
	SyncReadingProgress bool          `koanf:"sync_reading_progress" default:"true"`
	SyncAnnotations     bool          `koanf:"sync_annotations" default:"true"`
	SyncVocabulary      bool          `koanf:"sync_vocabulary"`
	MaxFileSizeMB       int           `koanf:"max_file_size_mb" default:"100" validate:"gte=0"`
	MergePolicy         string        `koanf:"merge_policy" default:"monotonic" validate:"oneof=monotonic last-writer-wins"`
	AutoSync            bool          `koanf:"auto_sync"`
	DeviceIOTimeout     time.Duration `koanf:"device_io_timeout" default:"30s" validate:"gt=0"`
	ShowNotifications   bool          `koanf:"show_notifications" default:"true"`
	VerboseMode         bool          `koanf:"verbose_mode"`
}

// MaxFileSizeBytes returns the configured transfer size ceiling in bytes.
// Zero means no ceiling.
func (s *SyncSettings) MaxFileSizeBytes() int64 {
	return int64(s.MaxFileSizeMB) * 1024 * 1024
}

// LoadSyncSettings builds SyncSettings from defaults, an optional YAML file,
// and STOMY_SYNC_* environment variables (e.g. STOMY_SYNC_MERGE_POLICY).
func LoadSyncSettings(path string) (*SyncSettings, error) {
	settings := &SyncSettings{}
	if err := defaults.Set(settings); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, errors.Wrapf(err, "failed to load settings file %s", path)
			}
		}
	}

	envProvider := env.Provider(settingsEnvPrefix, ".", func(key string) string {
		return strings.ToLower(strings.TrimPrefix(key, settingsEnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.Unmarshal("", settings); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := validator.New().Struct(settings); err != nil {
		return nil, errors.Wrap(err, "invalid sync settings")
	}

	return settings, nil
}
