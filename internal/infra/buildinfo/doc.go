// Package buildinfo exposes version information injected at build time.
//
// Values are set via ldflags, e.g.:
//
//	go build -ldflags "-X .../buildinfo.Version=1.0.0 -X .../buildinfo.Commit=abc123"
package buildinfo
