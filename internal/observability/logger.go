// Package observability wires zerolog structured logging around the
// engine, grounded on the teacher's zerolog usage in
// internal/application/executor/node_executors.go (package-level
// log.Debug()/Warn() calls) and its ConsoleLogger's per-event-type
// formatting (internal/infrastructure/monitoring/console_logger.go),
// generalized from a bespoke LogEvent type to logging the DomainEvent
// stream the bus already carries.
package observability

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Setup builds the process-wide zerolog.Logger at the given level,
// writing structured JSON to stdout.
func Setup(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	l := parseLevel(level)
	logger := zerolog.New(os.Stdout).Level(l).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(l)
	return logger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
