// Package logging assembles the slog loggers used by the Mirage CLI and pipeline.
//
// A run logger always writes to the configured log file and tees to a
// human-readable console handler unless the run is silent. Context helpers tag
// records with the run ID, stage, and per-attempt correlation ID.
package logging
