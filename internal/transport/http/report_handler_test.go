package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	apierrors "callpulse/internal/errors"
	"callpulse/internal/files"
	"callpulse/internal/services"
	"callpulse/pkg/contracts/domain"
)

// MockReportService is a mock implementation of ReportServiceInterface
type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) ListReports(ctx context.Context) ([]domain.ReportInfo, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ReportInfo), args.Error(1)
}

func (m *MockReportService) GetReport(ctx context.Context, name string) (domain.ReportInfo, error) {
	args := m.Called(name)
	return args.Get(0).(domain.ReportInfo), args.Error(1)
}

func (m *MockReportService) OpenReport(ctx context.Context, name string) (io.ReadCloser, domain.ReportInfo, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, domain.ReportInfo{}, args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(domain.ReportInfo), args.Error(2)
}

func (m *MockReportService) ListCharts(ctx context.Context) ([]files.FileInfo, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]files.FileInfo), args.Error(1)
}

func newReportHandler(t *testing.T, service ReportServiceInterface) *ReportHandler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	errorHandler := apierrors.NewErrorHandler(logger, false)
	return NewReportHandler(service, logger, errorHandler)
}

func TestReportHandler_ListReports(t *testing.T) {
	mockService := new(MockReportService)
	mockService.On("ListReports").Return([]domain.ReportInfo{
		{Name: "analysis_report_20250803.html", Format: "html", SizeBytes: 9001},
		{Name: "analysis_report_20250801.xlsx", Format: "xlsx", SizeBytes: 2048},
	}, nil)

	handler := newReportHandler(t, mockService)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)
	assert.Contains(t, rec.Body.String(), "analysis_report_20250803.html")
	mockService.AssertExpectations(t)
}

func TestReportHandler_DownloadReport(t *testing.T) {
	t.Run("html report renders inline", func(t *testing.T) {
		mockService := new(MockReportService)
		content := "<html>august report</html>"
		mockService.On("OpenReport", "report.html").Return(
			io.NopCloser(strings.NewReader(content)),
			domain.ReportInfo{Name: "report.html", Format: "html", SizeBytes: int64(len(content))},
			nil,
		)

		handler := newReportHandler(t, mockService)

		req := httptest.NewRequest("GET", "/report.html", nil)
		rec := httptest.NewRecorder()

		handler.Routes().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, "inline", rec.Header().Get("Content-Disposition"))
		assert.Equal(t, content, rec.Body.String())
		mockService.AssertExpectations(t)
	})

	t.Run("xlsx report downloads as attachment", func(t *testing.T) {
		mockService := new(MockReportService)
		mockService.On("OpenReport", "report.xlsx").Return(
			io.NopCloser(strings.NewReader("workbook")),
			domain.ReportInfo{Name: "report.xlsx", Format: "xlsx", SizeBytes: 8},
			nil,
		)

		handler := newReportHandler(t, mockService)

		req := httptest.NewRequest("GET", "/report.xlsx", nil)
		rec := httptest.NewRecorder()

		handler.Routes().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "report.xlsx")
		mockService.AssertExpectations(t)
	})

	t.Run("missing report", func(t *testing.T) {
		mockService := new(MockReportService)
		mockService.On("OpenReport", "ghost.html").Return(nil, domain.ReportInfo{}, services.ErrReportNotFound)

		handler := newReportHandler(t, mockService)

		req := httptest.NewRequest("GET", "/ghost.html", nil)
		rec := httptest.NewRecorder()

		handler.Routes().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "REPORT_NOT_FOUND")
		mockService.AssertExpectations(t)
	})

	t.Run("path traversal rejected", func(t *testing.T) {
		mockService := new(MockReportService)
		handler := newReportHandler(t, mockService)

		req := httptest.NewRequest("GET", "/secret..html", nil)
		rec := httptest.NewRecorder()

		handler.Routes().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockService.AssertExpectations(t)
	})
}

func TestReportHandler_ListCharts(t *testing.T) {
	mockService := new(MockReportService)
	mockService.On("ListCharts").Return([]files.FileInfo{
		{Name: "calls_trend.png", Size: 14000},
		{Name: "aht_by_agent.png", Size: 12000},
	}, nil)

	handler := newReportHandler(t, mockService)

	req := httptest.NewRequest("GET", "/charts", nil)
	rec := httptest.NewRecorder()

	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "calls_trend.png")
	assert.Contains(t, rec.Body.String(), `"count":2`)
	mockService.AssertExpectations(t)
}
