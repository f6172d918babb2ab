// Package logger builds configured slog.Logger instances for the service.
//
// Production deployments use JSON output at info level for log aggregation;
// development uses human-readable text at debug level. Context extractors
// inject request-scoped attributes (request id, user id) into every record
// without each call site having to pass them explicitly.
package logger
