package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "POLICYCARD_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// An empty path returns the validated defaults. The configuration is not
// modified by environment variables; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// decode unmarshals YAML over the defaults already present in cfg. Unknown
// keys are rejected so typos surface at startup.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention POLICYCARD_SECTION_FIELD (e.g., POLICYCARD_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// A malformed boolean, integer or duration is an error rather than being
// silently ignored.
func applyEnvOverrides(cfg *Config) error {
	e := &envReader{}

	// Policy overrides
	e.str("POLICY_MODE", &cfg.Policy.Mode)
	e.str("POLICY_FILE_PATH", &cfg.Policy.FilePath)
	e.boolean("POLICY_WATCH", &cfg.Policy.Watch)
	e.duration("POLICY_WATCH_DEBOUNCE", &cfg.Policy.WatchDebounce)
	e.str("POLICY_GIT_REPOSITORY", &cfg.Policy.Git.Repository)
	e.str("POLICY_GIT_LOCAL_PATH", &cfg.Policy.Git.LocalPath)
	e.str("POLICY_GIT_BRANCH", &cfg.Policy.Git.Branch)
	e.str("POLICY_GIT_PATH", &cfg.Policy.Git.Path)
	e.str("POLICY_GIT_AUTH_TYPE", &cfg.Policy.Git.Auth.Type)
	e.str("POLICY_GIT_TOKEN", &cfg.Policy.Git.Auth.Token)
	e.str("POLICY_GIT_SSH_KEY_PATH", &cfg.Policy.Git.Auth.SSHKeyPath)
	e.str("POLICY_GIT_SSH_KEY_PASSPHRASE", &cfg.Policy.Git.Auth.SSHKeyPassphrase)
	e.duration("POLICY_GIT_POLL_INTERVAL", &cfg.Policy.Git.PollInterval)

	// Evidence overrides
	e.str("EVIDENCE_BACKEND", &cfg.Evidence.Backend)
	e.str("EVIDENCE_SQLITE_PATH", &cfg.Evidence.SQLite.Path)
	e.str("EVIDENCE_SQLITE_DRIVER", &cfg.Evidence.SQLite.Driver)
	e.boolean("EVIDENCE_SQLITE_WAL_MODE", &cfg.Evidence.SQLite.WALMode)
	e.integer("EVIDENCE_RECORDER_ASYNC_BUFFER", &cfg.Evidence.Recorder.AsyncBuffer)
	e.duration("EVIDENCE_RECORDER_WRITE_TIMEOUT", &cfg.Evidence.Recorder.WriteTimeout)
	e.boolean("EVIDENCE_RECORDER_RECORD_CONTEXT", &cfg.Evidence.Recorder.RecordContext)

	// Report overrides
	e.str("REPORT_SCHEDULE", &cfg.Report.Schedule)
	e.str("REPORT_OUTPUT_DIR", &cfg.Report.OutputDir)
	e.boolean("REPORT_PRETTY", &cfg.Report.Pretty)

	// Server overrides
	e.str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	e.duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	e.duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	e.duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	e.boolean("SERVER_AUTH_ENABLED", &cfg.Server.Auth.Enabled)
	e.integer("SERVER_RATE_LIMIT_MAX_CONCURRENT", &cfg.Server.RateLimit.MaxConcurrent)

	// Telemetry overrides
	e.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	e.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	e.boolean("TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	e.boolean("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	e.str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	e.boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	e.float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
	e.str("TELEMETRY_TRACING_EXPORTER", &cfg.Telemetry.Tracing.Exporter)
	e.str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	e.boolean("TELEMETRY_TRACING_OTLP_INSECURE", &cfg.Telemetry.Tracing.OTLP.Insecure)
	e.boolean("TELEMETRY_HEALTH_ENABLED", &cfg.Telemetry.Health.Enabled)

	return e.err()
}

type envReader struct {
	errs []FieldError
}

func (e *envReader) lookup(key string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (e *envReader) fail(key, val string, err error) {
	e.errs = append(e.errs, FieldError{
		Field:   EnvPrefix + key,
		Message: fmt.Sprintf("invalid value %q: %v", val, err),
	})
}

func (e *envReader) str(key string, dst *string) {
	if val, ok := e.lookup(key); ok {
		*dst = val
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if val, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			e.fail(key, val, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(key string, dst *int) {
	if val, ok := e.lookup(key); ok {
		i, err := strconv.Atoi(val)
		if err != nil {
			e.fail(key, val, err)
			return
		}
		*dst = i
	}
}

func (e *envReader) float(key string, dst *float64) {
	if val, ok := e.lookup(key); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			e.fail(key, val, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if val, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			e.fail(key, val, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid environment override: %w", ValidationError{Errors: e.errs})
}
