// Package session implements the FLHS lobby lifecycle state machines.
//
// The Host owns the authoritative lobby: it accepts joins, validates
// peer compatibility, tracks readiness and produces the SessionStart
// broadcast that hands control to the rollback engine. The Guest is the
// symmetric client role: it requests a slot, mirrors lobby updates and
// hole-punches the other guests once the session starts.
//
// Both machines are single-threaded and message-driven. The embedding
// application pulls datagrams off the transport and feeds them in one
// at a time; every HandleMessage call runs to completion before the
// next, so no handler ever observes a partially updated lobby and no
// locking is needed. Sends are fire-and-forget: failures are logged and
// counted, never retried or awaited, because over an unreliable
// transport they are indistinguishable from packet loss.
package session
