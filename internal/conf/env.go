package conf

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding maps an environment variable onto a viper key
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "LPR_DEBUG", validateEnvBool},

		// Watch
		{"watch.root", "LPR_WATCH_ROOT", validateEnvNonEmpty},
		{"watch.pattern", "LPR_WATCH_PATTERN", validateEnvNonEmpty},
		{"watch.scanonstart", "LPR_WATCH_SCANONSTART", validateEnvBool},

		// Reader
		{"reader.maxretries", "LPR_READER_MAXRETRIES", validateEnvNonNegativeInt},
		{"reader.initialdelay", "LPR_READER_INITIALDELAY", validateEnvDuration},

		// Ingest
		{"ingest.workers", "LPR_INGEST_WORKERS", validateEnvNonNegativeInt},
		{"ingest.queuesize", "LPR_INGEST_QUEUESIZE", validateEnvPositiveInt},
		{"ingest.stoptimeout", "LPR_INGEST_STOPTIMEOUT", validateEnvDuration},

		// Datastore
		{"datastore.maxhandles", "LPR_DATASTORE_MAXHANDLES", validateEnvPositiveInt},
		{"datastore.sqlite.enabled", "LPR_DATASTORE_SQLITE_ENABLED", validateEnvBool},
		{"datastore.sqlite.path", "LPR_DATASTORE_SQLITE_PATH", validateEnvNonEmpty},
		{"datastore.mysql.enabled", "LPR_MYSQL_ENABLED", validateEnvBool},
		{"datastore.mysql.host", "LPR_MYSQL_HOST", validateEnvHost},
		{"datastore.mysql.port", "LPR_MYSQL_PORT", validateEnvPort},
		{"datastore.mysql.username", "LPR_MYSQL_USERNAME", nil},
		{"datastore.mysql.password", "LPR_MYSQL_PASSWORD", nil},
		{"datastore.mysql.database", "LPR_MYSQL_DATABASE", validateEnvNonEmpty},

		// Logging
		{"logging.defaultlevel", "LPR_LOG_LEVEL", validateEnvLogLevel},
		{"logging.fileoutput.enabled", "LPR_LOG_FILE_ENABLED", validateEnvBool},
		{"logging.fileoutput.path", "LPR_LOG_FILE_PATH", validateEnvNonEmpty},

		// Metrics and telemetry
		{"metrics.enabled", "LPR_METRICS_ENABLED", validateEnvBool},
		{"metrics.listen", "LPR_METRICS_LISTEN", validateEnvListenAddr},
		{"sentry.enabled", "LPR_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "LPR_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds every variable and validates the ones that are set.
// All problems are collected into a single error.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue, ok := os.LookupEnv(binding.EnvVar); ok {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvNonEmpty(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("value must not be empty")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("must be non-negative, got %d", n)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("duration must be non-negative, got %s", d)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvHost(value string) error {
	host := strings.TrimSpace(value)
	if host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if strings.ContainsAny(host, " /@") {
		return fmt.Errorf("host contains invalid characters: %s", host)
	}
	return nil
}

func validateEnvListenAddr(value string) error {
	if _, _, err := net.SplitHostPort(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("listen address must be host:port: %w", err)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("must be one of: trace, debug, info, warn, error")
	}
}
