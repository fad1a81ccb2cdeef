package conf

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func() error{
		func() error { return validateWatchSettings(&settings.Watch) },
		func() error { return validateReaderSettings(&settings.Reader) },
		func() error { return validateIngestSettings(&settings.Ingest) },
		func() error { return validateDatastoreSettings(&settings.Datastore) },
		func() error { return validateMetricsSettings(&settings.Metrics) },
		func() error { return validateSentrySettings(&settings.Sentry) },
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateWatchSettings(settings *WatchSettings) error {
	var errs []string

	if strings.TrimSpace(settings.Root) == "" {
		errs = append(errs, "watch root must not be empty")
	}
	if settings.Pattern == "" {
		errs = append(errs, "watch pattern must not be empty")
	} else if !doublestar.ValidatePattern(settings.Pattern) {
		errs = append(errs, fmt.Sprintf("watch pattern %q is not a valid glob", settings.Pattern))
	}

	if len(errs) > 0 {
		return fmt.Errorf("watch settings errors: %v", errs)
	}
	return nil
}

func validateReaderSettings(settings *ReaderSettings) error {
	var errs []string

	if settings.MaxRetries < 0 {
		errs = append(errs, "reader maxretries must be at least 0")
	}
	if settings.InitialDelay < 0 {
		errs = append(errs, "reader initialdelay must be non-negative")
	}
	if settings.MaxJitter < 0 {
		errs = append(errs, "reader maxjitter must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("reader settings errors: %v", errs)
	}
	return nil
}

func validateIngestSettings(settings *IngestSettings) error {
	var errs []string

	if settings.Workers < 0 {
		errs = append(errs, "ingest workers must be at least 0")
	}
	if settings.QueueSize < 1 {
		errs = append(errs, "ingest queuesize must be at least 1")
	}
	if settings.DedupeWindow < 0 {
		errs = append(errs, "ingest dedupewindow must be non-negative")
	}
	if settings.StopTimeout <= 0 {
		errs = append(errs, "ingest stoptimeout must be positive")
	}
	if settings.ScanRate < 0 {
		errs = append(errs, "ingest scanrate must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("ingest settings errors: %v", errs)
	}
	return nil
}

// validateDatastoreSettings requires exactly one backend
func validateDatastoreSettings(settings *DatastoreSettings) error {
	var errs []string

	switch {
	case settings.SQLite.Enabled && settings.MySQL.Enabled:
		errs = append(errs, "only one of datastore sqlite and mysql may be enabled")
	case !settings.SQLite.Enabled && !settings.MySQL.Enabled:
		errs = append(errs, "one of datastore sqlite or mysql must be enabled")
	}

	if settings.SQLite.Enabled && strings.TrimSpace(settings.SQLite.Path) == "" {
		errs = append(errs, "sqlite path must not be empty")
	}

	if settings.MySQL.Enabled {
		if settings.MySQL.Host == "" {
			errs = append(errs, "mysql host must not be empty")
		}
		if settings.MySQL.Port < 1 || settings.MySQL.Port > 65535 {
			errs = append(errs, fmt.Sprintf("mysql port must be between 1 and 65535, got %d", settings.MySQL.Port))
		}
		if settings.MySQL.Database == "" {
			errs = append(errs, "mysql database must not be empty")
		}
		if settings.MySQL.Username == "" {
			errs = append(errs, "mysql username must not be empty")
		}
	}

	if settings.MaxHandles < 1 {
		errs = append(errs, "datastore maxhandles must be at least 1")
	}
	if settings.SlowThreshold < 0 {
		errs = append(errs, "datastore slowthreshold must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("datastore settings errors: %v", errs)
	}
	return nil
}

func validateMetricsSettings(settings *MetricsSettings) error {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return fmt.Errorf("metrics listen address %q is invalid: %w", settings.Listen, err)
	}
	return nil
}

func validateSentrySettings(settings *SentrySettings) error {
	if settings.Enabled && settings.DSN == "" {
		return errors.New("sentry dsn is required when sentry is enabled")
	}
	return nil
}
