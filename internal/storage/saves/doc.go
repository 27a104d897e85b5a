// Package saves persists emulator save slots on disk.
//
// A slot file carries magic bytes, a JSON header, the save payload and a
// sha256 trailer, so a truncated or bit-rotted file is detected before its
// contents reach the emulator. Payloads are optionally sealed with
// XChaCha20-Poly1305 when the host is configured with an encryption key.
//
// The store also backs synchronized-save sessions: the host loads a slot
// into the SessionStart save config, and guests persist the received data
// through the same store.
package saves
