// Command framelink-host runs a headless netplay session host.
//
// It binds the handshake UDP port, admits guests into a lobby after
// compatibility validation, and starts the session once every guest has
// readied up. Configuration comes from a YAML file, FRAMELINK_*
// environment variables, and flags, in ascending precedence.
package main
