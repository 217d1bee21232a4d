// Package app assembles and runs the CallPulse web server.
//
// NewApplication wires the components in dependency order:
//
//  1. Configuration (defaults, optional YAML file, CCP_* environment)
//  2. Structured logging
//  3. Working directories (data, uploads, outputs, charts, logs)
//  4. OpenTelemetry tracing and Prometheus metrics
//  5. Services: WebSocket hub, LLM provider, analysis pipeline,
//     job queue, file manager, HTTP service layer
//  6. Router and HTTP server
//
// The route tree keeps three surfaces deliberately separate:
//
//   - /ws is registered before the middleware group so the upgraded
//     connection never passes through timeout or compression handlers.
//   - /static and /charts serve plain files with compression only.
//   - /api and the dashboard pages run behind the full chain: request
//     ID, OTel spans and metrics, structured logging, panic recovery,
//     security headers, CORS, and optional rate limiting. Within /api,
//     short endpoints share the read timeout while analysis endpoints
//     get the longer operation timeout.
//
// /metrics is mounted outside the instrumented group so Prometheus
// scrapes do not count themselves.
//
// Run blocks until SIGINT or SIGTERM. Stop shuts down in reverse
// order: the listener stops accepting, the job queue drains running
// analyses, the hub disconnects clients, telemetry flushes.
package app
