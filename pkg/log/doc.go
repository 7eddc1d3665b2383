/*
Package log provides structured logging for steward using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Usage

Initializing the Logger:

	import "github.com/wpsteward/steward/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
	})

Component Loggers:

	apiLog := log.WithComponent("api")
	apiLog.Info().Str("path", "/tasks/backup").Msg("task enqueued")

	taskLog := log.WithTaskID("5f1c...")
	taskLog.Error().Err(err).Msg("handler failed")

# Security

Never log secrets. Site records are logged exclusively through their
Redacted() projection; passwords, private-key material, key paths and
database passwords must not reach any log line or persisted result.
*/
package log
