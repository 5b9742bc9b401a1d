/*
Package log provides structured logging for radgate using zerolog.

The package exposes a global Logger configured once at process start via
Init, plus helpers that derive child loggers scoped to a component or a
server endpoint. All radgate packages log through component-scoped child
loggers so every line carries a "component" field.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("server")
	logger.Info().Str("address", addr).Msg("listening")

Console output (the default) renders human-readable lines; JSON output is
intended for log shippers.
*/
package log
