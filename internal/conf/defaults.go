package conf

import (
	"runtime"
	"time"

	"github.com/spf13/viper"

	"github.com/anprfile/lpr-ingest/internal/logger"
)

const maxDefaultWorkers = 8

// DefaultWorkers is runtime.NumCPU capped at 8.
func DefaultWorkers() int {
	return min(runtime.NumCPU(), maxDefaultWorkers)
}

// setDefaultConfig registers a default for every configuration key.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("watch.root", "./lpr")
	viper.SetDefault("watch.pattern", "**/*.lpr")
	viper.SetDefault("watch.scanonstart", true)
	viper.SetDefault("watch.recursive", true)

	viper.SetDefault("reader.maxretries", 5)
	viper.SetDefault("reader.initialdelay", 500*time.Millisecond)
	viper.SetDefault("reader.maxjitter", 100*time.Millisecond)

	viper.SetDefault("ingest.workers", 0)
	viper.SetDefault("ingest.queuesize", 256)
	viper.SetDefault("ingest.dedupewindow", 2*time.Second)
	viper.SetDefault("ingest.stoptimeout", 10*time.Second)
	viper.SetDefault("ingest.scanrate", 0.0)

	viper.SetDefault("datastore.maxhandles", 4)
	viper.SetDefault("datastore.slowthreshold", 200*time.Millisecond)
	viper.SetDefault("datastore.sqlite.enabled", true)
	viper.SetDefault("datastore.sqlite.path", "lpr.db")
	viper.SetDefault("datastore.mysql.enabled", false)
	viper.SetDefault("datastore.mysql.host", "localhost")
	viper.SetDefault("datastore.mysql.port", 3306)
	viper.SetDefault("datastore.mysql.username", "")
	viper.SetDefault("datastore.mysql.password", "")
	viper.SetDefault("datastore.mysql.database", "anpr")

	viper.SetDefault("logging.defaultlevel", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.fileoutput.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.fileoutput.path", logger.DefaultLogPath)
	viper.SetDefault("logging.fileoutput.level", logger.DefaultLogLevel)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "127.0.0.1:9464")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.debug", false)
}
