package config

import "time"

// Application constants for the CallPulse analytics system
const (
	// Application Info
	AppName = "CallPulse"

	// EnvPrefix namespaces all environment variables (CCP_*)
	EnvPrefix = "CCP"

	// Rate Limiting
	DefaultRateLimit = 100
	DefaultBurstSize = 50

	// Network Timeouts
	DefaultHTTPTimeout  = 30 * time.Second
	WebSocketPingPeriod = 30 * time.Second
	WebSocketPongWait   = 60 * time.Second

	// WebSocket Buffer Sizes
	WebSocketReadBufferSize  = 1024
	WebSocketWriteBufferSize = 1024

	// Log Settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// File Paths (relative to base directory)
	DefaultDataDir    = "data"
	DefaultUploadsDir = "data/uploads"
	DefaultOutputDir  = "outputs"
	DefaultChartsDir  = "outputs/charts"
	DefaultLogsDir    = "logs"
	DefaultWebDir     = "web"

	// Upload limits
	DefaultMaxUploadBytes = int64(64 << 20) // 64MB

	// Operation Timeouts
	DefaultOperationTimeout = 30 * time.Minute
	ReportGenerationTimeout = 15 * time.Minute

	// Report file naming
	ReportFilePrefix    = "callcenter_report"
	ReportTimestampText = "20060102_150405"

	// API Endpoints (internal)
	APIBasePath       = "/api"
	AnalysisEndpoint  = "/api/analysis"
	ReportsEndpoint   = "/api/reports"
	HealthEndpoint    = "/api/health"
	MetricsEndpoint   = "/metrics"
	WebSocketEndpoint = "/ws"
)

// Dataset column names recognized by the KPI calculators. Individual
// columns are optional; a KPI is only computed when its inputs exist.
const (
	ColDate              = "date"
	ColAgentID           = "agent_id"
	ColTeam              = "team"
	ColHandleTime        = "handle_time"
	ColFirstCallRes      = "first_call_resolution"
	ColCallsOffered      = "calls_offered"
	ColCallsAnswered     = "calls_answered"
	ColAnswerTime        = "answer_time"
	ColLoggedTime        = "logged_time"
	ColProductiveTime    = "productive_time"
	ColScheduledTime     = "scheduled_time"
	ColActualTime        = "actual_time"
	ColQAScore           = "qa_score"
	ColCSATScore         = "csat_score"
	ColNPSScore          = "nps_score"
	ColCompliancePass    = "compliance_pass"
	ColErrorCount        = "error_count"
	ColTotalInteractions = "total_interactions"
)
