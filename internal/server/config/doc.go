// Package config provides daemon configuration for framelink-host.
//
// This package defines the host configuration structure and validation:
//
//   - spec.go: HostConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (addresses, limits, paths)
//   - sanitize.go: Log sanitization (hide sensitive values)
//   - session.go: Conversion to the session package's immutable Config
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: files and environment variables.
package config
