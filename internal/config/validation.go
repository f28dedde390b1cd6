// Package config handles configuration loading and validation for focusd.
package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs validation of the full configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateMonitor(&c.Monitor)...)
	errs = append(errs, validateClassifier(&c.Classifier)...)
	errs = append(errs, validateAudio(&c.Audio)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateServer(&c.Server)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateMonitor(m *MonitorConfig) ValidationErrors {
	var errs ValidationErrors

	if m.Sensitivity < 1 || m.Sensitivity > 5 {
		errs = append(errs, ValidationError{
			Field:   "monitor.sensitivity",
			Message: fmt.Sprintf("must be between 1 and 5, got %d", m.Sensitivity),
		})
	}
	if m.SampleIntervalMs < 1000 {
		errs = append(errs, ValidationError{
			Field:   "monitor.sample_interval_ms",
			Message: fmt.Sprintf("must be at least 1000, got %d", m.SampleIntervalMs),
		})
	}
	if m.WarmupMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "monitor.warmup_ms",
			Message: "must not be negative",
		})
	}

	return errs
}

func validateClassifier(c *ClassifierConfig) ValidationErrors {
	var errs ValidationErrors

	if c.Model == "" {
		errs = append(errs, ValidationError{
			Field:   "classifier.model",
			Message: "must not be empty",
		})
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "classifier.max_attempts",
			Message: fmt.Sprintf("must be at least 1, got %d", c.MaxAttempts),
		})
	}
	if c.RetryBackoffMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "classifier.retry_backoff_ms",
			Message: "must not be negative",
		})
	}
	if c.MaxOutputTokens < 0 {
		errs = append(errs, ValidationError{
			Field:   "classifier.max_output_tokens",
			Message: "must not be negative",
		})
	}

	return errs
}

func validateAudio(a *AudioConfig) ValidationErrors {
	var errs ValidationErrors

	if a.BaseVolume < 0 || a.BaseVolume > 1 {
		errs = append(errs, ValidationError{
			Field:   "audio.base_volume",
			Message: fmt.Sprintf("must be between 0.0 and 1.0, got %v", a.BaseVolume),
		})
	}
	if a.RampMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "audio.ramp_ms",
			Message: "must not be negative",
		})
	}

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Type {
	case "", "memory", "sqlite":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("must be \"memory\" or \"sqlite\", got %q", s.Type),
		})
	}
	if s.Type == "sqlite" && s.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.path",
			Message: "required for sqlite storage",
		})
	}
	if s.HistoryLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.history_limit",
			Message: "must not be negative",
		})
	}

	return errs
}

func validateServer(s *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if s.ListenAddr == "" {
		errs = append(errs, ValidationError{
			Field:   "server.listen_addr",
			Message: "must not be empty",
		})
	} else if _, _, err := net.SplitHostPort(s.ListenAddr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "server.listen_addr",
			Message: fmt.Sprintf("invalid host:port %q", s.ListenAddr),
		})
	}
	if s.ReadTimeoutSec < 0 || s.WriteTimeoutSec < 0 || s.ShutdownTimeoutSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "server",
			Message: "timeouts must not be negative",
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("must be debug, info, warn, or error, got %q", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("must be text or json, got %q", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr", "file":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("must be stdout, stderr, or file, got %q", l.Output),
		})
	}
	if l.Output == "file" && l.FilePath == "" {
		errs = append(errs, ValidationError{
			Field:   "logging.file_path",
			Message: "required when output is file",
		})
	}

	return errs
}
