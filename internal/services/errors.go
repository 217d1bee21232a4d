package services

import "errors"

// Service-level errors mapped to HTTP status codes by the handlers.
var (
	// Dataset errors
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrNoDatasets      = errors.New("no datasets found")

	// Run errors
	ErrRunNotFound      = errors.New("run not found")
	ErrArtifactNotReady = errors.New("result not available yet")

	// Report errors
	ErrReportNotFound = errors.New("report not found")
	ErrNoReportsFound = errors.New("no reports found")

	// General errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)
