// Package server provides the HTTP surfaces of the responder.
//
// # Key Components
//
// HTTPServer serves the Gmail Pub/Sub push endpoint (POST /pubsub/push) and
// the Kubernetes probes (/healthz, /readyz, /healthz/detailed). Every route
// is wrapped with request metrics.
//
// PushHandler authenticates Pub/Sub push deliveries with a shared token,
// decodes the Gmail notification and signals the ingest scheduler. It
// acknowledges immediately; the ingest pass runs in the background.
//
// HealthChecker reports liveness unconditionally and readiness from named
// dependency checks (Redis, Postgres) run with a short timeout.
//
// MetricsServer exposes Prometheus metrics on a dedicated port, isolated
// from the push endpoint.
package server
