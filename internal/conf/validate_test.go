package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Watch:  WatchSettings{Root: "/data", Pattern: "**/*.lpr", ScanOnStart: true, Recursive: true},
		Reader: ReaderSettings{MaxRetries: 5, InitialDelay: 500 * time.Millisecond, MaxJitter: 100 * time.Millisecond},
		Ingest: IngestSettings{QueueSize: 256, DedupeWindow: 2 * time.Second, StopTimeout: 10 * time.Second},
		Datastore: DatastoreSettings{
			MaxHandles:    4,
			SlowThreshold: 200 * time.Millisecond,
			SQLite:        SQLiteSettings{Enabled: true, Path: "lpr.db"},
		},
		Metrics: MetricsSettings{Listen: "127.0.0.1:9464"},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"empty root", func(s *Settings) { s.Watch.Root = " " }, "watch root must not be empty"},
		{"bad pattern", func(s *Settings) { s.Watch.Pattern = "[a-" }, "not a valid glob"},
		{"negative retries", func(s *Settings) { s.Reader.MaxRetries = -1 }, "maxretries"},
		{"zero queue", func(s *Settings) { s.Ingest.QueueSize = 0 }, "queuesize"},
		{"zero stop timeout", func(s *Settings) { s.Ingest.StopTimeout = 0 }, "stoptimeout"},
		{"no backend", func(s *Settings) { s.Datastore.SQLite.Enabled = false }, "must be enabled"},
		{"both backends", func(s *Settings) {
			s.Datastore.MySQL = MySQLSettings{Enabled: true, Host: "db", Port: 3306, Username: "u", Database: "anpr"}
		}, "only one of"},
		{"mysql missing database", func(s *Settings) {
			s.Datastore.SQLite.Enabled = false
			s.Datastore.MySQL = MySQLSettings{Enabled: true, Host: "db", Port: 3306, Username: "u"}
		}, "mysql database"},
		{"mysql bad port", func(s *Settings) {
			s.Datastore.SQLite.Enabled = false
			s.Datastore.MySQL = MySQLSettings{Enabled: true, Host: "db", Port: 0, Username: "u", Database: "anpr"}
		}, "mysql port"},
		{"zero handles", func(s *Settings) { s.Datastore.MaxHandles = 0 }, "maxhandles"},
		{"metrics bad listen", func(s *Settings) {
			s.Metrics = MetricsSettings{Enabled: true, Listen: "9464"}
		}, "metrics listen"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "sentry dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)

			err := ValidateSettings(s)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSettingsAggregates(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Watch.Root = ""
	s.Ingest.QueueSize = 0
	s.Datastore.MaxHandles = 0

	var ve ValidationError
	require.ErrorAs(t, ValidateSettings(s), &ve)
	assert.Len(t, ve.Errors, 3)
}

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		validate func(string) error
		value    string
		wantErr  bool
	}{
		{"bool true", validateEnvBool, " true ", false},
		{"bool yes", validateEnvBool, "yes", true},
		{"port ok", validateEnvPort, "3306", false},
		{"port high", validateEnvPort, "70000", true},
		{"duration ok", validateEnvDuration, "750ms", false},
		{"duration negative", validateEnvDuration, "-1s", true},
		{"duration garbage", validateEnvDuration, "soon", true},
		{"workers zero", validateEnvNonNegativeInt, "0", false},
		{"queue zero", validateEnvPositiveInt, "0", true},
		{"host ok", validateEnvHost, "db.internal", false},
		{"host with creds", validateEnvHost, "user@db", true},
		{"listen ok", validateEnvListenAddr, ":9464", false},
		{"listen no port", validateEnvListenAddr, "localhost", true},
		{"level warning", validateEnvLogLevel, "WARNING", false},
		{"level verbose", validateEnvLogLevel, "verbose", true},
		{"empty", validateEnvNonEmpty, "  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
