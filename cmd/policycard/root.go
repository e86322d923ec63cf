package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/cli"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/config"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/recorder"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/storage"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/source"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "policycard",
	Short: "Policy card evaluation and audit engine",
	Long: `Policycard evaluates AI capabilities against a declarative policy card,
records every decision in a hash-chained evidence log and produces audit
reports with KPI, detector and assurance coverage results.

Configuration is read from --config (YAML) with POLICYCARD_* environment
overrides. Without --config, built-in defaults apply.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil && !cli.Silent(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads the configuration named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	return cfg, nil
}

// commandLogger is the logger for short-lived commands: text on stderr,
// warnings only unless --verbose.
func commandLogger(w io.Writer) *slog.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{
		Level:      level,
		Format:     "text",
		RedactKeys: true,
		Writer:     w,
	})
	if err != nil {
		return logging.Discard()
	}
	return logger
}

// openStorage opens the evidence archive for backend. "none" returns nil.
func openStorage(cfg config.EvidenceConfig, backend string) (evidence.Storage, error) {
	if backend == "" {
		backend = cfg.Backend
	}
	switch backend {
	case "none":
		return nil, nil
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		return storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			Driver:       cfg.SQLite.Driver,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
	default:
		return nil, cli.NewConfigError("evidence.backend", fmt.Sprintf("unknown archive backend %q", backend))
	}
}

// policySource builds the configured policy source. A non-empty path
// overrides the configuration with a file source.
func policySource(cfg config.PolicyConfig, path string) (source.Source, error) {
	if path != "" {
		return source.NewFileSource(path, cfg.WatchDebounce), nil
	}
	switch cfg.Mode {
	case "git":
		return source.NewGitSource(source.GitConfig{
			LocalPath: cfg.Git.LocalPath,
			URL:       cfg.Git.Repository,
			Branch:    cfg.Git.Branch,
			File:      cfg.Git.Path,
			Auth: source.GitAuth{
				Type:             cfg.Git.Auth.Type,
				Token:            cfg.Git.Auth.Token,
				SSHKeyPath:       cfg.Git.Auth.SSHKeyPath,
				SSHKeyPassphrase: cfg.Git.Auth.SSHKeyPassphrase,
			},
			Timeout:      cfg.Git.Timeout,
			PollInterval: cfg.Git.PollInterval,
		})
	default:
		return source.NewFileSource(cfg.FilePath, cfg.WatchDebounce), nil
	}
}

// recorderConfig maps the file configuration onto the recorder.
func recorderConfig(cfg config.RecorderConfig) recorder.Config {
	return recorder.Config{
		Archive:       true,
		AsyncBuffer:   cfg.AsyncBuffer,
		WriteTimeout:  cfg.WriteTimeout,
		RecordContext: cfg.RecordContext,
	}
}

// readMap decodes a YAML or JSON mapping given inline or as @file.
func readMap(value, flag string) (map[string]any, error) {
	if value == "" {
		return nil, nil
	}
	data := []byte(value)
	if strings.HasPrefix(value, "@") {
		var err error
		if data, err = os.ReadFile(value[1:]); err != nil {
			return nil, cli.NewConfigError(flag, err.Error())
		}
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, cli.NewConfigError(flag, fmt.Sprintf("not valid YAML or JSON: %v", err))
	}
	if raw == nil {
		return map[string]any{}, nil
	}
	m, ok := card.Normalize(raw).(map[string]any)
	if !ok {
		return nil, cli.NewConfigError(flag, "must be a mapping")
	}
	return m, nil
}
