// Package observability builds the process-wide zap logger and installs the
// OpenTelemetry trace and meter providers.
//
// Request-scoped fields (request_id, tenant_id) are attached by callers with
// logger.With; spans are started where the work happens.
package observability
