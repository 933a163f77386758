// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App        AppConfig                  `yaml:"app"`
	Store      StoreConfig                `yaml:"store"`
	Queue      QueueConfig                `yaml:"queue"`
	Execution  ExecutionConfig            `yaml:"execution"`
	Reconcile  ReconcileConfig            `yaml:"reconcile"`
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`
	Webhook    WebhookConfig              `yaml:"webhook"`
	Telemetry  TelemetryConfig            `yaml:"telemetry"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	LogLevel           string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
	AssetClass         string `yaml:"asset_class"`           // Asset universe to sync, e.g. us_equity
	UniverseTTLHours   int    `yaml:"universe_ttl_hours"`    // Staleness window for the tradable universe
	CancelOrdersOnExit bool   `yaml:"cancel_orders_on_exit"` // Cancel all open orders during shutdown
}

// StoreConfig selects the work item / order store backend
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"required,oneof=sqlite memory"`
	Path   string `yaml:"path"` // SQLite file path, required for the sqlite driver
}

// QueueConfig contains worker loop settings
type QueueConfig struct {
	WorkerIntervalMs int `yaml:"worker_interval_ms" validate:"min=10,max=60000"`
	MaxAttempts      int `yaml:"max_attempts" validate:"min=1,max=10"`
}

// ExecutionConfig contains order execution engine settings
type ExecutionConfig struct {
	MaxRetries       int `yaml:"max_retries" validate:"min=1,max=10"`
	SubmitTimeoutSec int `yaml:"submit_timeout_sec" validate:"min=1,max=300"`
	PollIntervalMs   int `yaml:"poll_interval_ms" validate:"min=100,max=60000"`
	MonitorBudgetSec int `yaml:"monitor_budget_sec" validate:"min=1,max=3600"`
}

// ReconcileConfig contains reconciler schedules
type ReconcileConfig struct {
	SyncSchedule   string `yaml:"sync_schedule"`  // cron spec for order book sync
	SweepSchedule  string `yaml:"sweep_schedule"` // cron spec for unreal order sweep
	StaleAfterHour int    `yaml:"stale_after_hours" validate:"min=1,max=168"`
	SweepLimit     int    `yaml:"sweep_limit" validate:"min=1,max=1000"`
}

// RateLimitConfig caps broker calls per tool:role bucket
type RateLimitConfig struct {
	PerMinute  int `yaml:"per_minute" validate:"min=1"`
	PerHour    int `yaml:"per_hour" validate:"min=1"`
	CooldownMs int `yaml:"cooldown_ms" validate:"min=0"`
}

// WebhookConfig contains the outbound event sink settings
type WebhookConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	Path      string `yaml:"path"`
	AuthToken Secret `yaml:"auth_token"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	ServiceName   string `yaml:"service_name"`
	MetricsPort   int    `yaml:"metrics_port"`
	EnableMetrics bool   `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateAppConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateStoreConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateQueueConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateExecutionConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateReconcileConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateRateLimits(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateWebhookConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.App.LogLevel)) {
		return ValidationError{
			Field:   "app.log_level",
			Value:   c.App.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	if c.App.UniverseTTLHours < 0 {
		return ValidationError{
			Field:   "app.universe_ttl_hours",
			Value:   c.App.UniverseTTLHours,
			Message: "must not be negative",
		}
	}
	return nil
}

func (c *Config) validateStoreConfig() error {
	validDrivers := []string{"sqlite", "memory"}
	if !contains(validDrivers, c.Store.Driver) {
		return ValidationError{
			Field:   "store.driver",
			Value:   c.Store.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validDrivers, ", ")),
		}
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return ValidationError{
			Field:   "store.path",
			Message: "path is required for the sqlite driver",
		}
	}
	return nil
}

func (c *Config) validateQueueConfig() error {
	if c.Queue.WorkerIntervalMs < 10 {
		return ValidationError{
			Field:   "queue.worker_interval_ms",
			Value:   c.Queue.WorkerIntervalMs,
			Message: "must be at least 10",
		}
	}
	if c.Queue.MaxAttempts < 1 || c.Queue.MaxAttempts > 10 {
		return ValidationError{
			Field:   "queue.max_attempts",
			Value:   c.Queue.MaxAttempts,
			Message: "must be between 1 and 10",
		}
	}
	return nil
}

func (c *Config) validateExecutionConfig() error {
	if c.Execution.MaxRetries < 1 || c.Execution.MaxRetries > 10 {
		return ValidationError{
			Field:   "execution.max_retries",
			Value:   c.Execution.MaxRetries,
			Message: "must be between 1 and 10",
		}
	}
	if c.Execution.PollIntervalMs < 100 {
		return ValidationError{
			Field:   "execution.poll_interval_ms",
			Value:   c.Execution.PollIntervalMs,
			Message: "must be at least 100",
		}
	}
	if c.Execution.MonitorBudgetSec < 1 {
		return ValidationError{
			Field:   "execution.monitor_budget_sec",
			Value:   c.Execution.MonitorBudgetSec,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validateReconcileConfig() error {
	if c.Reconcile.SyncSchedule == "" || c.Reconcile.SweepSchedule == "" {
		return ValidationError{
			Field:   "reconcile",
			Message: "sync_schedule and sweep_schedule are required",
		}
	}
	if c.Reconcile.StaleAfterHour < 1 {
		return ValidationError{
			Field:   "reconcile.stale_after_hours",
			Value:   c.Reconcile.StaleAfterHour,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validateRateLimits() error {
	for bucket, limit := range c.RateLimits {
		if limit.PerMinute < 1 || limit.PerHour < 1 {
			return ValidationError{
				Field:   fmt.Sprintf("rate_limits.%s", bucketKey(bucket)),
				Message: "per_minute and per_hour must be positive",
			}
		}
		if limit.PerHour < limit.PerMinute {
			return ValidationError{
				Field:   fmt.Sprintf("rate_limits.%s", bucketKey(bucket)),
				Value:   limit.PerHour,
				Message: "per_hour must not be lower than per_minute",
			}
		}
	}
	return nil
}

func (c *Config) validateWebhookConfig() error {
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return ValidationError{
			Field:   "webhook.url",
			Message: "url is required when the webhook sink is enabled",
		}
	}
	return nil
}

// Duration accessors. YAML carries plain ints; components want durations.

func (c *QueueConfig) WorkerInterval() time.Duration {
	return time.Duration(c.WorkerIntervalMs) * time.Millisecond
}

func (c *ExecutionConfig) SubmitTimeout() time.Duration {
	return time.Duration(c.SubmitTimeoutSec) * time.Second
}

func (c *ExecutionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *ExecutionConfig) MonitorBudget() time.Duration {
	return time.Duration(c.MonitorBudgetSec) * time.Second
}

func (c *ReconcileConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterHour) * time.Hour
}

func (c *AppConfig) UniverseTTL() time.Duration {
	return time.Duration(c.UniverseTTLHours) * time.Hour
}

// String returns a string representation of the configuration (with sensitive data masked)
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func bucketKey(bucket string) string {
	if bucket == "" {
		return "(default)"
	}
	return bucket
}

// DefaultConfig returns the configuration defaults; LoadConfig overlays the
// YAML file on top of these.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel:           "INFO",
			AssetClass:         "us_equity",
			UniverseTTLHours:   24,
			CancelOrdersOnExit: false,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "data/autotrader.db",
		},
		Queue: QueueConfig{
			WorkerIntervalMs: 5000,
			MaxAttempts:      3,
		},
		Execution: ExecutionConfig{
			MaxRetries:       3,
			SubmitTimeoutSec: 30,
			PollIntervalMs:   1000,
			MonitorBudgetSec: 30,
		},
		Reconcile: ReconcileConfig{
			SyncSchedule:   "@every 5m",
			SweepSchedule:  "@every 1h",
			StaleAfterHour: 24,
			SweepLimit:     500,
		},
		RateLimits: map[string]RateLimitConfig{
			"": {PerMinute: 60, PerHour: 1200, CooldownMs: 0},
		},
		Webhook: WebhookConfig{
			Enabled: false,
			Path:    "/events",
		},
		Telemetry: TelemetryConfig{
			ServiceName:   "autotrader",
			MetricsPort:   9090,
			EnableMetrics: true,
		},
	}
}
