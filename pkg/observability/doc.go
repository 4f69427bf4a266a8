// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing and health probes.
//
// # Structured Logging
//
// Logger wraps logrus with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("project_id", 42).Info("project created")
//
// Request-scoped loggers travel in the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("capability denied")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordCapabilityCheck("add_member", true, elapsed)
//
// A nil *Metrics is valid and records nothing, so domain packages can take
// metrics as an optional dependency.
//
// # Tracing
//
// InitOTel installs OTLP gRPC trace and metric exporters as the global
// providers. Tracer returns the package-wide tracer used for spans around
// capability checks and commands.
//
// # Health Checks
//
// HealthChecker pings the database and, when configured, Redis.
// RegisterOpsRoutes mounts /health, /health/live, /health/ready and /metrics
// on a gorilla/mux router.
package observability
