// Package logging builds the shared slog logger and attribute helpers.
//
// Loggers write to stdout plus a rotating-free daemon log file when a log
// directory is configured. The console format renders a compact
// human-readable line; the json format emits one structured record per line
// for ingestion. Components attach a stable "component" attribute via
// NewComponentLogger so operator logs can be filtered per pipeline stage.
package logging
