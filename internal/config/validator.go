package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "monitor.interval_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateMonitor()...)
	errors = append(errors, c.validateCorrelation()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)

	return errors
}

// validateScheduler validates the SchedulerConfig
func (c *Config) validateScheduler() []ValidationError {
	var errors []ValidationError

	// Below 10ms the tick loop is effectively a busy loop
	const minTickMs = 10
	if c.Scheduler.TickIntervalMs < minTickMs {
		errors = append(errors, ValidationError{
			Field:   "scheduler.tick_interval_ms",
			Value:   c.Scheduler.TickIntervalMs,
			Message: fmt.Sprintf("must be at least %d", minTickMs),
		})
	}

	return errors
}

// validateMonitor validates the MonitorConfig
func (c *Config) validateMonitor() []ValidationError {
	var errors []ValidationError

	if c.Monitor.IntervalMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "monitor.interval_ms",
			Value:   c.Monitor.IntervalMs,
			Message: "must be positive",
		})
	}

	if c.Monitor.ActionDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "monitor.action_delay_ms",
			Value:   c.Monitor.ActionDelayMs,
			Message: "must be non-negative",
		})
	}

	if c.Monitor.RuleCooldownSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "monitor.rule_cooldown_seconds",
			Value:   c.Monitor.RuleCooldownSeconds,
			Message: "must be non-negative (0 disables the cooldown)",
		})
	}

	for i, subject := range c.Monitor.Subjects {
		field := fmt.Sprintf("monitor.subjects[%d]", i)
		if strings.TrimSpace(subject) == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   subject,
				Message: "must not be empty",
			})
			continue
		}
		if slices.Index(c.Monitor.Subjects, subject) != i {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   subject,
				Message: "duplicate subject",
			})
		}
	}

	return errors
}

// validateCorrelation validates the CorrelationConfig
func (c *Config) validateCorrelation() []ValidationError {
	var errors []ValidationError

	if c.Correlation.MaxChains <= 0 {
		errors = append(errors, ValidationError{
			Field:   "correlation.max_chains",
			Value:   c.Correlation.MaxChains,
			Message: "must be positive",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	var errors []ValidationError

	if !c.Metrics.Enabled {
		return errors
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
		errors = append(errors, ValidationError{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "must be a host:port listen address",
		})
	}

	return errors
}
