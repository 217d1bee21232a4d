// Package services implements the business logic layer between the HTTP
// handlers and the analysis pipeline. Handlers translate requests and
// responses; services decide what happens.
//
// # Available Services
//
//   - AnalysisService: dataset uploads, run submission through the job
//     queue, run status and per-run result access
//   - ReportService: listing and streaming of generated report files
//   - HealthService: liveness, readiness and version information
//
// Services receive their dependencies through constructors and log with
// an injected *slog.Logger. Errors cross the boundary as the sentinel
// values in errors.go so handlers can map them to HTTP status codes
// without string matching.
package services
