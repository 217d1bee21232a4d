package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemDetails_MarshalJSON(t *testing.T) {
	pd := NewProblemDetails(
		http.StatusUnprocessableEntity,
		"/errors/too-few-rows",
		"Too Few Data Rows",
		"dataset has 12 rows, 30 required",
		"/api/analysis/upload",
	).WithExtension("row_count", 12).
		WithExtension("min_rows", 30)

	data, err := json.Marshal(pd)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "/errors/too-few-rows", decoded["type"])
	assert.Equal(t, "Too Few Data Rows", decoded["title"])
	assert.Equal(t, float64(http.StatusUnprocessableEntity), decoded["status"])
	assert.Equal(t, float64(12), decoded["row_count"])
	assert.Equal(t, float64(30), decoded["min_rows"])
}

func TestMapPipelineError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"file not found", ErrDataFileNotFound, http.StatusNotFound, "DATA_FILE_NOT_FOUND"},
		{"file empty", ErrDataFileEmpty, http.StatusUnprocessableEntity, "DATA_FILE_EMPTY"},
		{"malformed", ErrDataMalformed, http.StatusUnprocessableEntity, "DATA_MALFORMED"},
		{"schema mismatch", ErrSchemaMismatch, http.StatusUnprocessableEntity, "SCHEMA_MISMATCH"},
		{"too few rows", ErrTooFewRows, http.StatusUnprocessableEntity, "TOO_FEW_ROWS"},
		{"run active", ErrRunAlreadyActive, http.StatusConflict, "RUN_ALREADY_ACTIVE"},
		{"run cancelled", ErrRunCancelled, http.StatusConflict, "RUN_CANCELLED"},
		{"llm unavailable", ErrLLMUnavailable, http.StatusServiceUnavailable, "LLM_UNAVAILABLE"},
		{"llm response format", ErrLLMResponseFormat, http.StatusBadGateway, "LLM_RESPONSE_FORMAT"},
		{"unsupported format", ErrUnsupportedFormat, http.StatusBadRequest, "UNSUPPORTED_FORMAT"},
		{"report write failed", ErrReportWriteFailed, http.StatusInternalServerError, "REPORT_WRITE_FAILED"},
		{"unknown error", assert.AnError, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer := MapPipelineError(tt.err, "trace-abc")

			pd, ok := renderer.(*ProblemDetails)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, pd.Status)
			assert.Equal(t, tt.wantCode, pd.Extensions["error_code"])
			assert.Equal(t, "trace-abc", pd.Extensions["trace_id"])
		})
	}
}

func TestMapPipelineError_WrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("validating uploads/agents.csv: %w", ErrTooFewRows)
	renderer := MapPipelineError(wrapped, "trace-xyz")

	pd, ok := renderer.(*ProblemDetails)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, pd.Status)
	assert.Equal(t, "TOO_FEW_ROWS", pd.Extensions["error_code"])
}

func TestMapPipelineError_APIError(t *testing.T) {
	renderer := MapPipelineError(ErrRunNotFound, "trace-123")

	pd, ok := renderer.(*ProblemDetails)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, pd.Status)
	assert.Equal(t, "RUN_NOT_FOUND", pd.Extensions["error_code"])
}

func TestNewDataQualityError(t *testing.T) {
	details := &DataQualityDetails{
		FilePath:       "uploads/agents.csv",
		RowCount:       12,
		MinRows:        30,
		MissingColumns: []string{"handle_time"},
		QualityScore:   41.7,
	}

	pd := NewDataQualityError(details, "trace-q")

	assert.Equal(t, http.StatusUnprocessableEntity, pd.Status)
	assert.Equal(t, "uploads/agents.csv", pd.Extensions["file_path"])
	assert.Equal(t, 12, pd.Extensions["row_count"])
	assert.Equal(t, 30, pd.Extensions["min_rows"])
	assert.Equal(t, []string{"handle_time"}, pd.Extensions["missing_columns"])
	assert.Equal(t, 41.7, pd.Extensions["quality_score"])
}

func TestNewDataQualityError_NilDetails(t *testing.T) {
	pd := NewDataQualityError(nil, "trace-n")

	assert.Equal(t, http.StatusUnprocessableEntity, pd.Status)
	assert.Equal(t, "trace-n", pd.Extensions["trace_id"])
	assert.NotContains(t, pd.Extensions, "row_count")
}
