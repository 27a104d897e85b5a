// Package logger provides structured logging for Framelink.
//
// This package wraps log/slog for structured JSON logging:
//
//   - logger.go: Logger interface, slog handler configuration
//   - context.go: Context-aware logging with session ID propagation
//   - redact.go: Sensitive data redaction
//
// Features:
//
//   - JSON and text output formats
//   - Dynamic log level adjustment
//   - Automatic masking of secret-looking attributes
//   - Context propagation for per-session log correlation
package logger
