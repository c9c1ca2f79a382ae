// Package logger builds the slog loggers used across the module. Output
// level and format come from LOG_LEVEL and LOG_FORMAT, defaulting to JSON at
// info for production log aggregation.
package logger
