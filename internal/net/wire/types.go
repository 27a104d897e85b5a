package wire

import "fmt"

// Message size limits.
const (
	// MaxPlayerNameLen is the longest player name a peer may present.
	MaxPlayerNameLen = 32

	// MaxPlayerSlots bounds the lobby roster; handles are 0..MaxPlayerSlots-1.
	MaxPlayerSlots = 8
)

// ConsoleType identifies the virtual console a ROM targets.
// Peers must agree on it before a session can form.
type ConsoleType uint8

const (
	ConsoleZX ConsoleType = iota
	ConsoleChroma
)

// String returns the human-readable console name.
func (c ConsoleType) String() string {
	switch c {
	case ConsoleZX:
		return "zx"
	case ConsoleChroma:
		return "chroma"
	default:
		return fmt.Sprintf("console(%d)", uint8(c))
	}
}

// TickRate is the fixed simulation rate of a session.
type TickRate uint8

const (
	Tick30 TickRate = iota
	Tick60
	Tick120
)

// Hz returns the tick rate in ticks per second, or 0 for an unknown value.
func (t TickRate) Hz() uint32 {
	switch t {
	case Tick30:
		return 30
	case Tick60:
		return 60
	case Tick120:
		return 120
	default:
		return 0
	}
}

// String returns the rate formatted as "<n>Hz".
func (t TickRate) String() string {
	if hz := t.Hz(); hz != 0 {
		return fmt.Sprintf("%dHz", hz)
	}
	return fmt.Sprintf("tickrate(%d)", uint8(t))
}

// RejectReason explains why a host turned a JoinRequest away.
type RejectReason uint8

const (
	RejectConsoleTypeMismatch RejectReason = iota
	RejectROMHashMismatch
	RejectTickRateMismatch
	RejectLobbyFull
	RejectGameInProgress
	RejectValidationFailed
)

// String returns the reason as a stable snake_case token.
func (r RejectReason) String() string {
	switch r {
	case RejectConsoleTypeMismatch:
		return "console_type_mismatch"
	case RejectROMHashMismatch:
		return "rom_hash_mismatch"
	case RejectTickRateMismatch:
		return "tick_rate_mismatch"
	case RejectLobbyFull:
		return "lobby_full"
	case RejectGameInProgress:
		return "game_in_progress"
	case RejectValidationFailed:
		return "validation_failed"
	default:
		return fmt.Sprintf("reject(%d)", uint8(r))
	}
}

// SaveMode selects how save data is synchronized across peers.
type SaveMode uint8

const (
	// SavePerPlayer lets every peer use its own save slot.
	SavePerPlayer SaveMode = iota
	// SaveSynchronized distributes the host's save data to all peers.
	SaveSynchronized
	// SaveNewGame starts fresh, ignoring any saves.
	SaveNewGame
)

// PlayerInfo is the display identity a player presents to the lobby.
type PlayerInfo struct {
	Name     string
	AvatarID uint16
	Color    [3]uint8
}

// DefaultPlayerInfo returns the placeholder identity used for empty slots.
func DefaultPlayerInfo() PlayerInfo {
	return PlayerInfo{Name: "Player", Color: [3]uint8{255, 255, 255}}
}

// PlayerSlot is one roster entry in a LobbyState. Inactive slots keep
// their handle so every peer renders a stable-sized roster.
type PlayerSlot struct {
	Handle uint8
	Active bool
	Info   *PlayerInfo
	Ready  bool
	Addr   *string
}

// LobbyState is the full lobby roster. Players always enumerates every
// handle slot 0..MaxPlayers-1, active or not.
type LobbyState struct {
	Players    []PlayerSlot
	MaxPlayers uint8
	HostHandle uint8
}

// PlayerConnectionInfo describes how to reach one peer once the session
// starts. Inactive placeholder entries keep the array shape identical on
// every peer regardless of actual headcount.
type PlayerConnectionInfo struct {
	Handle uint8
	Active bool
	Info   PlayerInfo
	// Addr is the peer's handshake address, e.g. "192.168.1.50:7770".
	Addr string
	// SyncPort carries rollback traffic; by convention handshake port + 1.
	SyncPort uint16
}

// NetworkConfig tunes the rollback engine every peer runs after start.
// It is distributed in SessionStart so all peers simulate identically.
type NetworkConfig struct {
	InputDelay            uint8
	MaxRollback           uint8
	DisconnectTimeoutMSec uint32
	DesyncDetection       bool
}

// DefaultNetworkConfig returns the settings used when the host does not
// override them.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		InputDelay:            2,
		MaxRollback:           8,
		DisconnectTimeoutMSec: 5000,
		DesyncDetection:       true,
	}
}

// SaveConfig tells peers which save slot to use and, in synchronized
// mode, carries the host's save data.
type SaveConfig struct {
	SlotIndex        uint8
	Mode             SaveMode
	SynchronizedSave []byte
}
