package observability

import "github.com/anprfile/lpr-ingest/internal/logger"

// getLogger returns the metrics module logger.
func getLogger() logger.Logger {
	return logger.Global().Module("metrics")
}
