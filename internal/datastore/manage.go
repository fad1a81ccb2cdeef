package datastore

import (
	"gorm.io/gorm"

	"github.com/anprfile/lpr-ingest/internal/conf"
	"github.com/anprfile/lpr-ingest/internal/logger"
)

// Open opens the backend enabled in settings. Exactly one must be enabled.
func Open(settings *conf.DatastoreSettings, opts ...Option) (*DataStore, error) {
	switch {
	case settings.SQLite.Enabled && settings.MySQL.Enabled:
		return nil, validationError("only one datastore backend may be enabled", "datastore", "sqlite+mysql")
	case settings.SQLite.Enabled:
		return OpenSQLite(settings, opts...)
	case settings.MySQL.Enabled:
		return OpenMySQL(settings, opts...)
	default:
		return nil, validationError("no datastore backend enabled", "datastore", "")
	}
}

// gormConfig routes GORM logging through the datastore module logger.
func gormConfig(settings *conf.DatastoreSettings) *gorm.Config {
	return &gorm.Config{
		Logger:                 logger.NewGormLoggerAdapter(getLogger(), settings.SlowThreshold),
		SkipDefaultTransaction: true,
		TranslateError:         false,
	}
}

// getLogger returns the datastore module logger.
func getLogger() logger.Logger {
	return logger.Global().Module("datastore")
}
