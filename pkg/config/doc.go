// Package config provides configuration management for the policy card
// auditor.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("policycard.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("policycard.yaml")
//
// An empty path yields the defaults.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention POLICYCARD_SECTION_FIELD.
// For example:
//
//   - POLICYCARD_POLICY_FILE_PATH overrides policy.file_path
//   - POLICYCARD_EVIDENCE_BACKEND overrides evidence.backend
//   - POLICYCARD_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// Validate checks struct tags with go-playground/validator and then applies
// cross-field rules. Every failure is reported in one ValidationError.
package config
