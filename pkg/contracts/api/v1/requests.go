// Package api defines the versioned request and response frames of the
// CallPulse HTTP API. Analysis payloads such as KPI sets and insight
// sections reuse the domain contract types directly.
package api

import "callpulse/pkg/contracts/domain"

// RunStartRequest is the body of POST /api/analysis/run. DatasetID
// names a previously uploaded file and Path points at a server-side
// file or directory; exactly one of the two must be set.
type RunStartRequest struct {
	DatasetID string     `json:"dataset_id,omitempty"`
	Path      string     `json:"path,omitempty"`
	Options   RunOptions `json:"options"`
}

// RunOptions carries the per-run knobs accepted over the API.
type RunOptions struct {
	Format         string `json:"format,omitempty"`
	NoLLM          bool   `json:"no_llm,omitempty"`
	RemoveOutliers bool   `json:"remove_outliers,omitempty"`
}

// RunStartResponse is the body of a successful POST /api/analysis/run.
// PollURL is the run detail endpoint for clients without a WebSocket.
type RunStartResponse struct {
	Status  string `json:"status"`
	RunID   string `json:"run_id"`
	PollURL string `json:"poll_url"`
}

// UploadResponse is the data payload of a successful dataset upload.
type UploadResponse struct {
	DatasetID string               `json:"dataset_id"`
	Rows      int                  `json:"rows"`
	Columns   int                  `json:"columns"`
	SizeBytes int64                `json:"size_bytes"`
	Quality   domain.QualityReport `json:"quality"`
}
