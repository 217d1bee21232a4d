package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Pipeline-specific errors (using errors package for sentinel errors)
var (
	ErrDataFileNotFound  = errors.New("data file not found")
	ErrDataFileEmpty     = errors.New("data file is empty")
	ErrDataMalformed     = errors.New("data file is malformed")
	ErrSchemaMismatch    = errors.New("required columns missing")
	ErrTooFewRows        = errors.New("too few data rows")
	ErrRunAlreadyActive  = errors.New("analysis run already active")
	ErrRunCancelled      = errors.New("analysis run cancelled")
	ErrLLMUnavailable    = errors.New("llm provider unavailable")
	ErrLLMResponseFormat = errors.New("llm response format invalid")
	ErrUnsupportedFormat = errors.New("unsupported report format")
	ErrReportWriteFailed = errors.New("report write failed")
	ErrChromeUnavailable = errors.New("headless chrome unavailable")
)

// DataQualityDetails provides additional context for dataset errors
type DataQualityDetails struct {
	FilePath       string   `json:"file_path,omitempty"`
	RowCount       int      `json:"row_count,omitempty"`
	MinRows        int      `json:"min_rows,omitempty"`
	MissingColumns []string `json:"missing_columns,omitempty"`
	TypeErrors     []string `json:"type_errors,omitempty"`
	QualityScore   float64  `json:"quality_score,omitempty"`
}

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	// Add standard fields
	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	// Add extensions
	for k, v := range pd.Extensions {
		data[k] = v
	}

	// Use standard JSON marshaling
	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// NewDataQualityError creates an enhanced error for datasets that fail validation
func NewDataQualityError(details *DataQualityDetails, traceID string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusUnprocessableEntity,
		"/errors/data/quality",
		"Dataset Failed Validation",
		"The uploaded dataset does not meet the minimum quality requirements for analysis.",
		fmt.Sprintf("/api/analysis/upload#%s", traceID),
	)

	problem.WithExtension("error_type", "data_quality").
		WithExtension("trace_id", traceID)

	if details != nil {
		if details.FilePath != "" {
			problem.WithExtension("file_path", details.FilePath)
		}
		if details.MinRows > 0 {
			problem.WithExtension("row_count", details.RowCount)
			problem.WithExtension("min_rows", details.MinRows)
		}
		if len(details.MissingColumns) > 0 {
			problem.WithExtension("missing_columns", details.MissingColumns)
		}
		if len(details.TypeErrors) > 0 {
			problem.WithExtension("type_errors", details.TypeErrors)
		}
		if details.QualityScore > 0 {
			problem.WithExtension("quality_score", details.QualityScore)
		}
	}

	return problem
}

// MapPipelineError maps domain errors to HTTP problem details
func MapPipelineError(err error, traceID string) render.Renderer {
	instance := fmt.Sprintf("/api/analysis#trace-%s", traceID)

	// Check if it's an APIError from errors.go
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode == "RUN_NOT_FOUND" {
			return NewProblemDetails(
				http.StatusNotFound,
				"/errors/run-not-found",
				"Analysis Run Not Found",
				"No analysis run with that ID exists.",
				instance,
			).WithExtension("trace_id", traceID).
				WithExtension("error_code", "RUN_NOT_FOUND")
		}
	}

	switch {
	case errors.Is(err, ErrDataFileNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			"/errors/data-file-not-found",
			"Data File Not Found",
			"The input CSV file does not exist or is not readable.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "DATA_FILE_NOT_FOUND")

	case errors.Is(err, ErrDataFileEmpty):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			"/errors/data-file-empty",
			"Data File Empty",
			"The input CSV file contains no data rows.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "DATA_FILE_EMPTY")

	case errors.Is(err, ErrDataMalformed):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			"/errors/data-malformed",
			"Data File Malformed",
			"The input file could not be parsed as CSV.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "DATA_MALFORMED")

	case errors.Is(err, ErrSchemaMismatch):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			"/errors/schema-mismatch",
			"Required Columns Missing",
			"The dataset is missing columns required for analysis.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "SCHEMA_MISMATCH")

	case errors.Is(err, ErrTooFewRows):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			"/errors/too-few-rows",
			"Too Few Data Rows",
			"The dataset has fewer rows than the minimum required for statistical analysis.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "TOO_FEW_ROWS")

	case errors.Is(err, ErrRunAlreadyActive):
		return NewProblemDetails(
			http.StatusConflict,
			"/errors/run-already-active",
			"Analysis Run Already Active",
			"Another analysis run is currently in progress. Wait for it to finish or cancel it first.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "RUN_ALREADY_ACTIVE")

	case errors.Is(err, ErrRunCancelled):
		return NewProblemDetails(
			http.StatusConflict,
			"/errors/run-cancelled",
			"Analysis Run Cancelled",
			"The analysis run was cancelled before it completed.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "RUN_CANCELLED")

	case errors.Is(err, ErrLLMUnavailable):
		return NewProblemDetails(
			http.StatusServiceUnavailable,
			"/errors/llm-unavailable",
			"LLM Provider Unavailable",
			"The configured LLM provider could not be reached. Template insights were used instead.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "LLM_UNAVAILABLE")

	case errors.Is(err, ErrLLMResponseFormat):
		return NewProblemDetails(
			http.StatusBadGateway,
			"/errors/llm-response-format",
			"LLM Response Invalid",
			"The LLM provider returned a response that could not be parsed.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "LLM_RESPONSE_FORMAT")

	case errors.Is(err, ErrUnsupportedFormat):
		return NewProblemDetails(
			http.StatusBadRequest,
			"/errors/unsupported-format",
			"Unsupported Report Format",
			"The requested report format is not supported. Use html, txt, xlsx or pdf.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "UNSUPPORTED_FORMAT")

	case errors.Is(err, ErrReportWriteFailed):
		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/report-write-failed",
			"Report Write Failed",
			"The report could not be written to the output directory.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "REPORT_WRITE_FAILED")

	case errors.Is(err, ErrChromeUnavailable):
		return NewProblemDetails(
			http.StatusNotImplemented,
			"/errors/chrome-unavailable",
			"Headless Chrome Unavailable",
			"PDF reports require a Chrome or Chromium installation on the server.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "CHROME_UNAVAILABLE")

	default:
		// Generic error
		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/internal-error",
			"Internal Server Error",
			"An unexpected error occurred while processing your request.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "INTERNAL_ERROR")
	}
}
