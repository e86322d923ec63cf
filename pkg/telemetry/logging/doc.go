// Package logging builds the process logger.
//
// The auditor logs through log/slog. Components derive their own logger with
// a "component" attribute from the default logger that New installs:
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json", RedactKeys: true})
//	slog.SetDefault(logger)
//
// Request scoped fields (request id, audit id, policy name) travel in the
// context and are attached with FromContext.
//
// # Redaction
//
// When RedactKeys is set, attribute values whose key names a credential
// (token, password, passphrase, secret, authorization, api_key) are replaced
// with "[REDACTED]" and bearer or access tokens embedded in string values
// are masked. Evidence context values are never logged.
package logging
