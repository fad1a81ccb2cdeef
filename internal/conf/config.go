// Package conf loads, validates and saves lpr-ingest configuration.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/anprfile/lpr-ingest/internal/logger"
)

// ConfigFileName is the base name searched for in the config paths.
const ConfigFileName = "config.yaml"

// WatchSettings controls which directory tree is watched.
type WatchSettings struct {
	Root        string // directory tree to watch, created if missing
	Pattern     string // doublestar pattern matched against slash-relative paths
	ScanOnStart bool   // ingest the existing backlog before accepting events
	Recursive   bool   // watch subdirectories as they appear
}

// ReaderSettings controls the retrying file reader.
type ReaderSettings struct {
	MaxRetries   int           // retries after the first attempt
	InitialDelay time.Duration // base delay, doubled per retry
	MaxJitter    time.Duration // upper bound of random jitter added per retry
}

// IngestSettings controls the dispatcher and worker pool.
type IngestSettings struct {
	Workers      int           // worker goroutines, 0 selects NumCPU capped at 8
	QueueSize    int           // bounded event queue length
	DedupeWindow time.Duration // duplicate notification suppression window
	StopTimeout  time.Duration // how long Stop waits for workers
	ScanRate     float64       // backlog files per second, 0 is unlimited
}

// SQLiteSettings configures the SQLite backend.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings configures the MySQL backend.
type MySQLSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// DatastoreSettings selects and tunes the record store.
type DatastoreSettings struct {
	MaxHandles    int           // concurrent repository handles
	SlowThreshold time.Duration // queries slower than this are logged at warn
	SQLite        SQLiteSettings
	MySQL         MySQLSettings
}

// MetricsSettings controls the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool
	Listen  string
}

// SentrySettings controls opt-in error telemetry.
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
	Debug       bool
}

// Settings is the root configuration.
type Settings struct {
	Debug     bool
	Watch     WatchSettings
	Reader    ReaderSettings
	Ingest    IngestSettings
	Datastore DatastoreSettings
	Logging   logger.LoggingConfig
	Metrics   MetricsSettings
	Sentry    SentrySettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the config file and environment variables into
// Settings and validates the result. An empty configFile searches the
// default config paths; a missing file there is not an error.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults and environment bindings, then reads the
// config file.
func initViper(configFile string) error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("fatal error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	for _, path := range GetDefaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			GetLogger().Debug("no config file found, using defaults and environment")
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in priority order.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "lpr-ingest"))
	}
	return append(paths, "/etc/lpr-ingest")
}

// ConfigFileUsed returns the config file viper read, or an empty string.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// GetSettings returns the most recently loaded settings.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath as YAML. The file is written
// to a temporary file first and renamed into place. Comments in an existing
// file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}

// GetLogger returns the config module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
