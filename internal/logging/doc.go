// Package logging constructs the daemon's slog loggers and provides shared
// attribute helpers and standardized field names used across components.
package logging
