package config

import (
	"os"
	"time"
)

// Config is the root configuration for the policy card auditor.
type Config struct {
	// Policy selects where the policy card is loaded from.
	Policy PolicyConfig `yaml:"policy"`

	// Evidence configures recording and archiving.
	Evidence EvidenceConfig `yaml:"evidence"`

	// Report configures scheduled report snapshots.
	Report ReportConfig `yaml:"report"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Telemetry configures logging, metrics, tracing and health checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// PolicyConfig contains policy card source configuration.
type PolicyConfig struct {
	// Mode is the policy source.
	// Options: "file", "git"
	// Default: "file"
	Mode string `yaml:"mode" validate:"oneof=file git"`

	// FilePath is the policy card file for file mode.
	// Default: "./policy.yaml"
	FilePath string `yaml:"file_path"`

	// Watch enables hot reload on file change or new commits.
	// Default: false
	Watch bool `yaml:"watch"`

	// WatchDebounce is the quiet period before a file change reloads.
	// Default: 100ms
	WatchDebounce time.Duration `yaml:"watch_debounce" validate:"gte=0"`

	// Git contains git mode configuration.
	Git GitPolicyConfig `yaml:"git"`
}

// GitPolicyConfig configures loading the policy card from a git repository.
type GitPolicyConfig struct {
	// Repository is the remote URL. Empty means LocalPath is used as is.
	Repository string `yaml:"repository" validate:"omitempty,url|startswith=git@"`

	// LocalPath is the working copy location.
	// Default: "data/policy-repo"
	LocalPath string `yaml:"local_path"`

	// Branch is the branch to read. Empty reads HEAD.
	Branch string `yaml:"branch"`

	// Path is the policy card file relative to the repository root.
	// Default: "policy.yaml"
	Path string `yaml:"path"`

	// Auth configures repository authentication.
	Auth GitAuthConfig `yaml:"auth"`

	// PollInterval is how often to check for new commits when watching.
	// Default: 30s
	PollInterval time.Duration `yaml:"poll_interval" validate:"gte=0"`

	// Timeout bounds clone and pull operations.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// GitAuthConfig configures git authentication.
type GitAuthConfig struct {
	// Type is the authentication method.
	// Options: "none", "token", "ssh"
	Type string `yaml:"type" validate:"omitempty,oneof=none token ssh"`

	// Token is a personal access token. Prefer POLICYCARD_POLICY_GIT_TOKEN.
	Token string `yaml:"token"`

	// SSHKeyPath is the private key file for ssh auth.
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase is optional.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// EvidenceConfig contains evidence recording and archive configuration.
type EvidenceConfig struct {
	// Backend is the archive backend.
	// Options: "none", "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend" validate:"oneof=none memory sqlite"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Recorder configures the evidence recorder.
	Recorder RecorderConfig `yaml:"recorder"`

	// Query configures archive query limits.
	Query QueryConfig `yaml:"query"`
}

// SQLiteConfig configures the sqlite evidence archive.
type SQLiteConfig struct {
	// Path is the database file.
	// Default: "data/evidence.db"
	Path string `yaml:"path"`

	// Driver is the database/sql driver.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite sqlite3"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns" validate:"gte=0"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns" validate:"gte=0"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout" validate:"gte=0"`
}

// RecorderConfig configures the evidence recorder.
type RecorderConfig struct {
	// AsyncBuffer is the archive queue length.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer" validate:"gte=0"`

	// WriteTimeout bounds each archive write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`

	// RecordContext stores the escalation context on each evidence entry.
	// Default: true
	RecordContext bool `yaml:"record_context"`
}

// QueryConfig configures archive query limits.
type QueryConfig struct {
	// DefaultLimit applies when a query sets no limit.
	// Default: 100
	DefaultLimit int `yaml:"default_limit" validate:"gte=0"`

	// MaxLimit caps any query limit.
	// Default: 10000
	MaxLimit int `yaml:"max_limit" validate:"gte=0"`
}

// ReportConfig configures scheduled report snapshots.
type ReportConfig struct {
	// Schedule is a five-field cron expression. Empty disables snapshots.
	Schedule string `yaml:"schedule"`

	// OutputDir receives snapshot files.
	// Default: "data/reports"
	OutputDir string `yaml:"output_dir"`

	// Pretty enables indented JSON snapshots.
	// Default: true
	Pretty bool `yaml:"pretty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// ListenAddress is the host:port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address" validate:"hostname_port"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout" validate:"gte=0"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout" validate:"gte=0"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// MaxBodyBytes caps request bodies.
	// Default: 1MB
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"gte=0"`

	// CORS configures cross-origin access to the API.
	CORS CORSConfig `yaml:"cors"`

	// Auth configures API key authentication for /v1 routes.
	Auth AuthConfig `yaml:"auth"`

	// RateLimit throttles /v1 routes per client.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures per-client throttling. Clients are identified
// by API key when authentication is enabled and by remote address otherwise.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client. Zero disables
	// rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`

	// Burst is the bucket capacity.
	// Default: RequestsPerSecond rounded up, at least 1
	Burst int `yaml:"burst" validate:"gte=0"`

	// MaxConcurrent caps in-flight /v1 requests across all clients. Zero
	// means no cap.
	MaxConcurrent int `yaml:"max_concurrent" validate:"gte=0"`
}

// AuthConfig configures API key authentication. Health, metrics and version
// endpoints are never authenticated.
type AuthConfig struct {
	// Enabled requires a key on every /v1 route.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Keys are the accepted API keys.
	Keys []APIKeyConfig `yaml:"keys" validate:"dive"`
}

// APIKeyConfig is one accepted API key.
type APIKeyConfig struct {
	// ID names the key in logs. It is never the secret.
	ID string `yaml:"id" validate:"required"`

	// Key is the secret. Prefer KeyEnv.
	Key string `yaml:"key"`

	// KeyEnv names an environment variable holding the secret.
	KeyEnv string `yaml:"key_env"`

	// Scopes granted to the key.
	// Options: "evaluate", "read", "admin"
	Scopes []string `yaml:"scopes" validate:"min=1,dive,oneof=evaluate read admin"`

	// Disabled rejects the key without removing it.
	Disabled bool `yaml:"disabled"`
}

// Secret returns the key's secret, reading KeyEnv when Key is empty.
func (k APIKeyConfig) Secret() string {
	if k.Key != "" {
		return k.Key
	}
	if k.KeyEnv != "" {
		return os.Getenv(k.KeyEnv)
	}
	return ""
}

// CORSConfig configures Cross-Origin Resource Sharing. An empty origin list
// disables CORS headers.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" validate:"dive,required"`
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int `yaml:"max_age" validate:"gte=0"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format" validate:"oneof=json text"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactKeys masks values of sensitive attribute keys (token, password,
	// api_key) in log output.
	// Default: true
	RedactKeys bool `yaml:"redact_keys"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "policycard"
	Namespace string `yaml:"namespace"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Exporter selects the span exporter.
	// Options: "stdout", "otlp"
	// Default: "stdout"
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=stdout otlp"`

	// Endpoint is the OTLP gRPC collector address (host:port). Required for
	// the otlp exporter.
	Endpoint string `yaml:"endpoint" validate:"omitempty,hostname_port"`

	// OTLP holds OTLP exporter settings.
	OTLP OTLPConfig `yaml:"otlp"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`

	// ServiceName is the service name in traces.
	// Default: "policycard"
	ServiceName string `yaml:"service_name"`
}

// OTLPConfig configures the OTLP gRPC exporter.
type OTLPConfig struct {
	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// HealthConfig configures health endpoints.
type HealthConfig struct {
	// Enabled controls whether health endpoints are served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is the liveness endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the readiness endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout bounds each component check.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout" validate:"gte=0"`
}
