// Package observability provides structured logging, Prometheus metrics,
// health probes, and OpenTelemetry tracing for the auth service.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("provider_id", sub).Info("user provisioned")
//
// Request-scoped loggers travel through the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("slow token exchange")
//
// # Metrics
//
//	metrics := observability.NewMetrics(nil)
//	metrics.ObserveLogin("DESKTOP_ADMIN", observability.OutcomeSuccess, elapsed)
//
// The metrics handler is exposed on the health port alongside /healthz and
// /readyz.
//
// # Tracing
//
// OTLP/gRPC trace export is opt-in via configuration; when disabled all
// tracing calls are no-ops through the default global provider.
package observability
