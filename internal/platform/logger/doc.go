// Package logger configures the process-wide slog JSON logger.
//
// Setup reads the level and optional log file from config; the file is
// rotated by lumberjack. Request-scoped loggers travel in a context.Context
// via WithLogger and FromContext.
package logger
