package operations

import (
	"time"
)

// Config controls pipeline execution behavior
type Config struct {
	// Per-step timeouts, falling back to DefaultStepTimeout
	StepTimeouts map[string]time.Duration `json:"step_timeouts"`

	// Retry behavior for retryable step failures
	Retry RetryConfig `json:"retry"`

	// Whether to keep executing later steps after a failure
	ContinueOnError bool `json:"continue_on_error"`
}

// NewConfig returns the default pipeline configuration
func NewConfig() *Config {
	return &Config{
		StepTimeouts: map[string]time.Duration{
			StepIDLoad:      DefaultLoadTimeout,
			StepIDCorrelate: DefaultCorrelateTimeout,
			StepIDInsights:  DefaultInsightsTimeout,
			StepIDReport:    DefaultReportTimeout,
		},
		Retry:           NewRetryConfig(),
		ContinueOnError: false,
	}
}

// StepTimeout returns the timeout for a specific step
func (c *Config) StepTimeout(stepID string) time.Duration {
	if timeout, ok := c.StepTimeouts[stepID]; ok {
		return timeout
	}
	return DefaultStepTimeout
}

// SetStepTimeout sets the timeout for a specific step
func (c *Config) SetStepTimeout(stepID string, timeout time.Duration) {
	if c.StepTimeouts == nil {
		c.StepTimeouts = make(map[string]time.Duration)
	}
	c.StepTimeouts[stepID] = timeout
}

// ConfigBuilder provides a fluent interface for building pipeline configurations
type ConfigBuilder struct {
	config *Config
}

// NewConfigBuilder creates a configuration builder seeded with defaults
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: NewConfig()}
}

// WithStepTimeout sets the timeout for a step
func (b *ConfigBuilder) WithStepTimeout(stepID string, timeout time.Duration) *ConfigBuilder {
	b.config.SetStepTimeout(stepID, timeout)
	return b
}

// WithRetry sets the retry configuration
func (b *ConfigBuilder) WithRetry(retry RetryConfig) *ConfigBuilder {
	b.config.Retry = retry
	return b
}

// WithContinueOnError sets whether to continue past step failures
func (b *ConfigBuilder) WithContinueOnError(continueOnError bool) *ConfigBuilder {
	b.config.ContinueOnError = continueOnError
	return b
}

// Build returns the built configuration
func (b *ConfigBuilder) Build() *Config {
	return b.config
}
