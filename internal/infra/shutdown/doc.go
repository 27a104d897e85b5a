// Package shutdown provides graceful shutdown for the Framelink daemon.
//
// A Handler waits for SIGINT or SIGTERM (or a programmatic Trigger) and
// then runs registered cleanup hooks in reverse order of registration,
// bounded by a timeout.
package shutdown
