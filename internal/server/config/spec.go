// Package config defines the host daemon configuration structure.
package config

import "time"

// HostConfig is the root configuration for framelink-host.
type HostConfig struct {
	Session SessionSection `koanf:"session"`
	Network NetworkSection `koanf:"network"`
	Server  ServerSection  `koanf:"server"`
	Saves   SavesSection   `koanf:"saves"`
	Log     LogSection     `koanf:"log"`
}

// SessionSection configures the hosted game session.
type SessionSection struct {
	// Console is the emulated console type ("zx" or "chroma").
	Console string `koanf:"console"`

	// ROMPath is the game image whose fingerprint guests must match.
	ROMPath string `koanf:"rom_path"`

	// TickRate is the simulation rate in ticks per second (30, 60, 120).
	TickRate int `koanf:"tick_rate"`

	// MaxPlayers is the lobby capacity including the host (2-8).
	MaxPlayers int `koanf:"max_players"`

	// PlayerName is the host's display name in the lobby.
	PlayerName string `koanf:"player_name"`

	// IdleTimeout evicts guests with no inbound traffic for this long.
	IdleTimeout time.Duration `koanf:"idle_timeout"`
}

// NetworkSection configures the rollback networking parameters that
// travel to every guest in SessionStart.
type NetworkSection struct {
	// InputDelay is the local input delay in frames.
	InputDelay int `koanf:"input_delay"`

	// MaxRollback is the deepest supported rollback in frames.
	MaxRollback int `koanf:"max_rollback"`

	// DisconnectTimeout drops a peer after this long without packets.
	DisconnectTimeout time.Duration `koanf:"disconnect_timeout"`

	// DesyncDetection enables per-frame checksum exchange.
	DesyncDetection bool `koanf:"desync_detection"`

	// JoinRatePerSec caps handshake traffic accepted per source
	// address, protecting the lobby from join floods.
	JoinRatePerSec float64 `koanf:"join_rate_per_sec"`

	// JoinRateBurst is the rate limiter burst size.
	JoinRateBurst int `koanf:"join_rate_burst"`
}

// ServerSection configures daemon endpoints.
type ServerSection struct {
	// ListenAddr is the UDP handshake bind address.
	ListenAddr string `koanf:"listen_addr"`

	// PublicAddr is the address advertised to guests. It must be a
	// concrete reachable address, never a wildcard.
	PublicAddr string `koanf:"public_addr"`

	// MetricsAddr serves Prometheus metrics over HTTP. Empty disables
	// the endpoint.
	MetricsAddr string `koanf:"metrics_addr"`
}

// SavesSection configures the save slot store backing synchronized
// save distribution.
type SavesSection struct {
	// DataDir is the directory save slots are stored in.
	DataDir string `koanf:"data_dir"`

	// EncryptionKey is an optional hex-encoded 32-byte key. When set,
	// save payloads are encrypted at rest.
	EncryptionKey string `koanf:"encryption_key"`

	// Mode selects how saves are synchronized across peers
	// ("per-player", "synchronized", "new-game").
	Mode string `koanf:"mode"`

	// Slot is the save slot index used by this session.
	Slot int `koanf:"slot"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
