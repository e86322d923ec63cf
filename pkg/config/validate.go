package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Has reports whether a field failed validation.
func (e ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return ValidationError{Errors: []FieldError{{Field: "config", Message: "configuration is nil"}}}
	}

	var errs []FieldError
	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating configuration: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, formatFieldError(fe))
		}
	}

	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateEvidence(&cfg.Evidence)...)
	errs = append(errs, validateReport(&cfg.Report)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// formatFieldError converts a validator error into a FieldError keyed by the
// yaml path without the root struct name.
func formatFieldError(fe validator.FieldError) FieldError {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "oneof":
		msg = fmt.Sprintf("invalid value %q: must be one of [%s]", fmt.Sprint(fe.Value()), fe.Param())
	case "min":
		msg = fmt.Sprintf("must have at least %s entries", fe.Param())
	case "gte":
		msg = fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		msg = fmt.Sprintf("must be at most %s", fe.Param())
	case "hostname_port":
		msg = fmt.Sprintf("invalid address %q: must be host:port", fmt.Sprint(fe.Value()))
	case "url|startswith=git@", "url":
		msg = fmt.Sprintf("invalid repository %q: must be a URL or git@ address", fmt.Sprint(fe.Value()))
	default:
		msg = fmt.Sprintf("failed %q validation", fe.Tag())
	}
	return FieldError{Field: field, Message: msg}
}

func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	if cfg.Mode == "file" && cfg.FilePath == "" {
		errs = append(errs, FieldError{
			Field:   "policy.file_path",
			Message: "file path is required when mode is 'file'",
		})
	}

	if cfg.Mode == "git" {
		if cfg.Git.LocalPath == "" {
			errs = append(errs, FieldError{
				Field:   "policy.git.local_path",
				Message: "local path is required when mode is 'git'",
			})
		}
		if cfg.Git.Path == "" {
			errs = append(errs, FieldError{
				Field:   "policy.git.path",
				Message: "policy path is required when mode is 'git'",
			})
		}
		switch cfg.Git.Auth.Type {
		case "token":
			if cfg.Git.Auth.Token == "" {
				errs = append(errs, FieldError{
					Field:   "policy.git.auth.token",
					Message: "token is required when auth type is 'token'",
				})
			}
		case "ssh":
			if cfg.Git.Auth.SSHKeyPath == "" {
				errs = append(errs, FieldError{
					Field:   "policy.git.auth.ssh_key_path",
					Message: "ssh key path is required when auth type is 'ssh'",
				})
			}
		}
	}

	return errs
}

func validateEvidence(cfg *EvidenceConfig) []FieldError {
	var errs []FieldError

	if cfg.Backend == "sqlite" && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{
			Field:   "evidence.sqlite.path",
			Message: "path is required when backend is 'sqlite'",
		})
	}
	if cfg.SQLite.MaxOpenConns > 0 && cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
		errs = append(errs, FieldError{
			Field:   "evidence.sqlite.max_idle_conns",
			Message: fmt.Sprintf("max idle connections (%d) cannot exceed max open connections (%d)", cfg.SQLite.MaxIdleConns, cfg.SQLite.MaxOpenConns),
		})
	}
	if cfg.Query.MaxLimit > 0 && cfg.Query.DefaultLimit > cfg.Query.MaxLimit {
		errs = append(errs, FieldError{
			Field:   "evidence.query.default_limit",
			Message: fmt.Sprintf("default limit (%d) cannot exceed max limit (%d)", cfg.Query.DefaultLimit, cfg.Query.MaxLimit),
		})
	}

	return errs
}

func validateReport(cfg *ReportConfig) []FieldError {
	var errs []FieldError

	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "report.schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Schedule, err),
			})
		}
		if cfg.OutputDir == "" {
			errs = append(errs, FieldError{
				Field:   "report.output_dir",
				Message: "output directory is required when a schedule is set",
			})
		}
	}

	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.Auth.Enabled && len(cfg.Auth.Keys) == 0 {
		errs = append(errs, FieldError{
			Field:   "server.auth.keys",
			Message: "at least one key is required when auth is enabled",
		})
	}
	seen := make(map[string]bool, len(cfg.Auth.Keys))
	for i, k := range cfg.Auth.Keys {
		field := fmt.Sprintf("server.auth.keys[%d]", i)
		if k.Key == "" && k.KeyEnv == "" {
			errs = append(errs, FieldError{
				Field:   field + ".key",
				Message: "one of key or key_env is required",
			})
		}
		if k.Key != "" && k.KeyEnv != "" {
			errs = append(errs, FieldError{
				Field:   field + ".key_env",
				Message: "key and key_env are mutually exclusive",
			})
		}
		if k.ID != "" && seen[k.ID] {
			errs = append(errs, FieldError{
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate key id %q", k.ID),
			})
		}
		seen[k.ID] = true
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: fmt.Sprintf("path %q must start with '/'", cfg.Metrics.Path),
		})
	}
	if cfg.Health.Enabled {
		for field, path := range map[string]string{
			"telemetry.health.liveness_path":  cfg.Health.LivenessPath,
			"telemetry.health.readiness_path": cfg.Health.ReadinessPath,
		} {
			if !strings.HasPrefix(path, "/") {
				errs = append(errs, FieldError{
					Field:   field,
					Message: fmt.Sprintf("path %q must start with '/'", path),
				})
			}
		}
	}
	if cfg.Tracing.Enabled && cfg.Tracing.ServiceName == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.service_name",
			Message: "service name is required when tracing is enabled",
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Exporter == "otlp" && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required for the otlp exporter",
		})
	}

	return errs
}
