package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	DatabaseConnectRetryCount int
	DatabaseConnectRetryDelay time.Duration
	DatabaseBusyTimeout       time.Duration
	DatabaseMaxRetries        int
	DatabaseDebug             bool
	DatabaseFilePath          string
	Hostname                  string
	SettingsFilePath          string
}

const environmentENV = "ENVIRONMENT"

func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseMaxRetries:        5,
		Hostname:                  hostname,
	}

	switch os.Getenv(environmentENV) {
	case "development", "":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	return cfg, nil
}

func dataDir() string {
	if dir := os.Getenv("DATA_DIRECTORY"); dir != "" {
		return dir
	}
	return "/data"
}

func loadDevelopmentConfig(cfg *Config) {
	cfg.DatabaseDebug = os.Getenv("DATABASE_DEBUG") == "true"
	cfg.DatabaseFilePath = filepath.Join("tmp", "stomy-sync.db")
	cfg.SettingsFilePath = filepath.Join("tmp", "sync-settings.yaml")
}

func loadTestConfig(cfg *Config) {
	cfg.DatabaseConnectRetryCount = 1
	cfg.DatabaseConnectRetryDelay = 0
	cfg.DatabaseFilePath = ":memory:"
	cfg.SettingsFilePath = ""
}

func loadProductionConfig(cfg *Config) {
	cfg.DatabaseFilePath = filepath.Join(dataDir(), "stomy-sync.db")
	cfg.SettingsFilePath = filepath.Join(dataDir(), "sync-settings.yaml")
}
