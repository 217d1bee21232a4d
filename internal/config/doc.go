// Package config provides centralized configuration management for the
// CallPulse analytics system. It handles loading configuration from
// multiple sources, validation, and a type-safe API for accessing
// configuration values throughout the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of
// precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file (config.yaml or CCP_CONFIG)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern CCP_* for namespacing:
//
//	CCP_SERVER_PORT=8080
//	CCP_LLM_PROVIDER=anthropic
//	CCP_LLM_MODEL=claude-sonnet-4-20250514
//	CCP_ANALYSIS_CORRELATION_THRESHOLD=0.4
//	CCP_LOGGING_LEVEL=debug
//
// Provider API keys are resolved from the conventional variables
// (OPENAI_API_KEY, ANTHROPIC_API_KEY) unless llm.api_key or
// llm.api_key_env is set explicitly.
//
// # KPI Thresholds
//
// The kpi_thresholds section drives target comparisons and the issue
// extraction that feeds recommendation generation:
//
//	kpi_thresholds:
//	  performance:
//	    aht_target: 300
//	    fcr_target: 0.85
//	    service_level_target: 0.80
//	  quality:
//	    qa_score_target: 90
//	    csat_target: 4.0
//	    nps_target: 50
package config
