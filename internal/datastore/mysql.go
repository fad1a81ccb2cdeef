package datastore

import (
	"fmt"
	"net"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/anprfile/lpr-ingest/internal/conf"
	"github.com/anprfile/lpr-ingest/internal/logger"
)

// mysqlDSN builds the driver DSN. Times are stored and read as UTC.
func mysqlDSN(settings *conf.MySQLSettings) string {
	cfg := gomysql.NewConfig()
	cfg.User = settings.Username
	cfg.Passwd = settings.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port))
	cfg.DBName = settings.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// OpenMySQL connects to the configured MySQL database.
func OpenMySQL(settings *conf.DatastoreSettings, opts ...Option) (*DataStore, error) {
	dsn := mysqlDSN(&settings.MySQL)
	location := logger.RedactSensitiveData(dsn)

	db, err := gorm.Open(mysql.Open(dsn), gormConfig(settings))
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to open MySQL database: %w", err),
			"open_mysql", "", "location", location)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "open_mysql", "", "location", location)
	}
	maxConns := max(settings.MaxHandles, 1)
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return newDataStore(db, "mysql", location, settings.MaxHandles, opts...), nil
}
