// Package observability provides structured logging, metrics, and tracing
// for the session SDK.
//
// This package implements:
//   - Structured logging with contextual fields (zap-based)
//   - Prometheus metrics for token validations and JWKS fetches
//   - The OpenTelemetry tracer used by the validator and key resolver
//   - Request ID propagation
//
// Every validation and key set fetch is instrumented.
package observability
