// Package rollback provides state snapshot and buffer pool support for
// rollback netcode.
//
// During a session every peer speculatively executes ahead of its
// neighbors. When a remote input arrives late and disproves the
// speculation, the rollback engine rewinds to the last confirmed frame
// and replays. This package supplies the pieces that make the rewind
// cheap and verifiable:
//
//   - Snapshot: a full capture of game state at one frame, carrying an
//     xxHash checksum so peers can compare state by exchanging eight
//     bytes instead of megabytes.
//   - Pool: pre-sized reusable buffers so the save path does not
//     allocate at a steady state of many saves per second.
//   - Manager: retains the snapshot window, drives save/load against a
//     StateSource, and recycles buffers once frames are confirmed.
//
// The package performs no I/O and owns no socket. It is designed for
// sequential use from the simulation loop; callers that span threads
// must supply their own synchronization.
package rollback
