package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Security   SecurityConfig   `yaml:"security" envconfig:"SECURITY"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
	WebSocket  WebSocketConfig  `yaml:"websocket" envconfig:"WEBSOCKET"`
	Data       DataConfig       `yaml:"data" envconfig:"DATA"`
	Analysis   AnalysisConfig   `yaml:"analysis" envconfig:"ANALYSIS"`
	Thresholds ThresholdsConfig `yaml:"kpi_thresholds" envconfig:"THRESHOLDS"`
	LLM        LLMConfig        `yaml:"llm" envconfig:"LLM"`
	Report     ReportConfig     `yaml:"report" envconfig:"REPORT"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port             int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout     time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes   int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	OperationTimeout time.Duration `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" validate:"min=1"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=stdout file both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	BaseDir    string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR"`
	UploadsDir string `yaml:"uploads_dir" envconfig:"UPLOADS_DIR"`
	OutputDir  string `yaml:"output_dir" envconfig:"OUTPUT_DIR"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
	WebDir     string `yaml:"web_dir" envconfig:"WEB_DIR"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// DataConfig controls CSV ingestion
type DataConfig struct {
	DateLayout      string   `yaml:"date_layout" envconfig:"DATE_LAYOUT"`
	RequiredColumns []string `yaml:"required_columns" envconfig:"REQUIRED_COLUMNS"`
	FilePattern     string   `yaml:"file_pattern" envconfig:"FILE_PATTERN"`
}

// AnalysisConfig controls the statistical pipeline
type AnalysisConfig struct {
	CorrelationThreshold float64       `yaml:"correlation_threshold" envconfig:"CORRELATION_THRESHOLD" validate:"min=0,max=1"`
	CorrelationMethod    string        `yaml:"correlation_method" envconfig:"CORRELATION_METHOD" validate:"oneof=pearson spearman kendall"`
	OutlierStd           float64       `yaml:"outlier_std" envconfig:"OUTLIER_STD" validate:"gt=0"`
	MinDataPoints        int           `yaml:"min_data_points" envconfig:"MIN_DATA_POINTS" validate:"min=1"`
	MaxConcurrency       int           `yaml:"max_concurrency" envconfig:"MAX_CONCURRENCY"`
	CalculationTimeout   time.Duration `yaml:"calculation_timeout" envconfig:"CALCULATION_TIMEOUT"`
}

// ThresholdsConfig holds the KPI targets used for comparisons and
// issue extraction.
type ThresholdsConfig struct {
	Performance PerformanceTargets `yaml:"performance" envconfig:"PERFORMANCE"`
	Quality     QualityTargets     `yaml:"quality" envconfig:"QUALITY"`
}

// PerformanceTargets are the operational KPI targets
type PerformanceTargets struct {
	AHTTarget          float64 `yaml:"aht_target" envconfig:"AHT_TARGET"`
	FCRTarget          float64 `yaml:"fcr_target" envconfig:"FCR_TARGET"`
	ServiceLevelTarget float64 `yaml:"service_level_target" envconfig:"SERVICE_LEVEL_TARGET"`
}

// QualityTargets are the quality KPI targets
type QualityTargets struct {
	QAScoreTarget float64 `yaml:"qa_score_target" envconfig:"QA_SCORE_TARGET"`
	CSATTarget    float64 `yaml:"csat_target" envconfig:"CSAT_TARGET"`
	NPSTarget     float64 `yaml:"nps_target" envconfig:"NPS_TARGET"`
}

// LLMConfig configures the insight provider
type LLMConfig struct {
	Provider          string        `yaml:"provider" envconfig:"PROVIDER" validate:"oneof=openai anthropic ollama mock"`
	Model             string        `yaml:"model" envconfig:"MODEL"`
	Temperature       float64       `yaml:"temperature" envconfig:"TEMPERATURE" validate:"min=0,max=2"`
	MaxTokens         int           `yaml:"max_tokens" envconfig:"MAX_TOKENS" validate:"min=1"`
	APIKey            string        `yaml:"api_key" envconfig:"API_KEY"`
	APIKeyEnv         string        `yaml:"api_key_env" envconfig:"API_KEY_ENV"`
	BaseURL           string        `yaml:"base_url" envconfig:"BASE_URL"`
	Timeout           time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	MaxRetries        int           `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	RequestsPerMinute float64       `yaml:"requests_per_minute" envconfig:"REQUESTS_PER_MINUTE"`
}

// ReportConfig controls report generation
type ReportConfig struct {
	Format        string `yaml:"format" envconfig:"FORMAT" validate:"oneof=html txt xlsx pdf"`
	Title         string `yaml:"title" envconfig:"TITLE"`
	IncludeCharts bool   `yaml:"include_charts" envconfig:"INCLUDE_CHARTS"`
	ExportKPIsCSV bool   `yaml:"export_kpis_csv" envconfig:"EXPORT_KPIS_CSV"`
}

// Load loads configuration from defaults, an optional YAML file, and
// environment variables. Precedence: env > file > defaults.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom loads configuration using an explicit config file path. An
// empty path skips the file layer.
func LoadFrom(configFile string) (*Config, error) {
	// A .env in the working directory feeds the environment layer during
	// development. Variables already set in the environment win.
	_ = godotenv.Load()

	cfg := Default()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			if err := overlayFile(cfg, configFile); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", configFile, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", configFile, err)
		}
	}

	// Environment variables override file values. Fields without a
	// matching CCP_* variable keep whatever the earlier layers set.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// overlayFile unmarshals the YAML file over cfg; only keys present in
// the file overwrite.
func overlayFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// normalize fills derived values and repairs soft misconfiguration.
func (c *Config) normalize() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Analysis.CorrelationMethod = strings.ToLower(strings.TrimSpace(c.Analysis.CorrelationMethod))
	c.Report.Format = strings.ToLower(strings.TrimSpace(c.Report.Format))

	if c.Analysis.MaxConcurrency <= 0 {
		c.Analysis.MaxConcurrency = runtime.NumCPU()
	}
	if c.Analysis.MaxConcurrency > 32 {
		c.Analysis.MaxConcurrency = 32
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		c.Logging.Format = "json"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if ok := asValidationErrors(err, &errs); ok && len(errs) > 0 {
			fe := errs[0]
			return fmt.Errorf("invalid value for %s: failed %s check", fe.Namespace(), fe.Tag())
		}
		return err
	}

	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be positive")
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

// ResolveAPIKey returns the configured LLM API key, falling back to
// the provider's conventional environment variable.
func (c *LLMConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	env := c.APIKeyEnv
	if env == "" {
		switch c.Provider {
		case "openai":
			env = "OPENAI_API_KEY"
		case "anthropic":
			env = "ANTHROPIC_API_KEY"
		default:
			return ""
		}
	}
	return os.Getenv(env)
}

// ResolveBaseURL returns the provider endpoint base.
func (c *LLMConfig) ResolveBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	switch c.Provider {
	case "openai":
		return "https://api.openai.com"
	case "anthropic":
		return "https://api.anthropic.com"
	case "ollama":
		return "http://localhost:11434"
	}
	return ""
}

// Target returns the configured target for a KPI key, stripped of its
// _avg/_rate suffix the way the comparison layer looks targets up.
func (t *ThresholdsConfig) Target(category, key string) (float64, bool) {
	base := strings.TrimSuffix(strings.TrimSuffix(key, "_avg"), "_rate")
	switch category {
	case "performance":
		switch base {
		case "aht":
			return t.Performance.AHTTarget, true
		case "fcr":
			return t.Performance.FCRTarget, true
		case "service_level":
			return t.Performance.ServiceLevelTarget, true
		}
	case "quality":
		switch base {
		case "qa_score":
			return t.Quality.QAScoreTarget, true
		case "csat":
			return t.Quality.CSATTarget, true
		case "nps":
			return t.Quality.NPSTarget, true
		}
	}
	return 0, false
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      60 * time.Second,
			MaxHeaderBytes:   1 << 20,
			ShutdownTimeout:  30 * time.Second,
			OperationTimeout: DefaultOperationTimeout,
			MaxUploadBytes:   DefaultMaxUploadBytes,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Output:      "stdout",
			FilePath:    "logs/app.log",
			Development: false,
		},
		Paths: PathsConfig{
			BaseDir:    "",
			DataDir:    DefaultDataDir,
			UploadsDir: DefaultUploadsDir,
			OutputDir:  DefaultOutputDir,
			LogsDir:    DefaultLogsDir,
			WebDir:     DefaultWebDir,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Data: DataConfig{
			DateLayout:  "2006-01-02",
			FilePattern: "*.csv",
		},
		Analysis: AnalysisConfig{
			CorrelationThreshold: 0.3,
			CorrelationMethod:    "pearson",
			OutlierStd:           3,
			MinDataPoints:        30,
			MaxConcurrency:       0,
			CalculationTimeout:   5 * time.Minute,
		},
		Thresholds: ThresholdsConfig{
			Performance: PerformanceTargets{
				AHTTarget:          300,
				FCRTarget:          0.85,
				ServiceLevelTarget: 0.80,
			},
			Quality: QualityTargets{
				QAScoreTarget: 90,
				CSATTarget:    4.0,
				NPSTarget:     50,
			},
		},
		LLM: LLMConfig{
			Provider:          "openai",
			Model:             "gpt-4",
			Temperature:       0.7,
			MaxTokens:         2000,
			Timeout:           60 * time.Second,
			MaxRetries:        3,
			RequestsPerMinute: 20,
		},
		Report: ReportConfig{
			Format:        "html",
			Title:         "Call Center Analytics Report",
			IncludeCharts: true,
			ExportKPIsCSV: true,
		},
	}
}
