package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/anprfile/lpr-ingest/internal/conf"
)

// sqlitePragmas enables WAL and waits on locks instead of failing fast.
const sqlitePragmas = "_journal_mode=WAL&_busy_timeout=5000"

// OpenSQLite opens (creating if needed) the SQLite database at settings.SQLite.Path.
func OpenSQLite(settings *conf.DatastoreSettings, opts ...Option) (*DataStore, error) {
	if settings.SQLite.Path == "" {
		return nil, validationError("sqlite path must not be empty", "datastore.sqlite.path", "")
	}

	absPath, err := filepath.Abs(settings.SQLite.Path)
	if err != nil {
		return nil, dbError(err, "resolve_sqlite_path", "", "path", settings.SQLite.Path)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o750); err != nil {
		return nil, dbError(fmt.Errorf("failed to create database directory: %w", err),
			"open_sqlite", "", "path", absPath)
	}

	dsn := fmt.Sprintf("file:%s?%s", absPath, sqlitePragmas)
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(settings))
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to open SQLite database: %w", err),
			"open_sqlite", "", "path", absPath)
	}

	// A single connection serialises writers; WAL keeps this cheap.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "open_sqlite", "", "path", absPath)
	}
	sqlDB.SetMaxOpenConns(1)

	return newDataStore(db, "sqlite", absPath, settings.MaxHandles, opts...), nil
}
