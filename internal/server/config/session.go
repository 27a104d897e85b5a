// Package config defines the host daemon configuration structure.
package config

import (
	"fmt"
	"strings"

	"github.com/framelink/framelink-go/internal/net/session"
	"github.com/framelink/framelink-go/internal/net/wire"
)

// ParseConsole maps the configured console name to its wire enum.
func ParseConsole(name string) (wire.ConsoleType, error) {
	switch strings.ToLower(name) {
	case "zx":
		return wire.ConsoleZX, nil
	case "chroma":
		return wire.ConsoleChroma, nil
	default:
		return 0, fmt.Errorf("session.console: unknown console %q", name)
	}
}

// ParseTickRate maps the configured ticks-per-second to its wire enum.
func ParseTickRate(hz int) (wire.TickRate, error) {
	switch hz {
	case 30:
		return wire.Tick30, nil
	case 60:
		return wire.Tick60, nil
	case 120:
		return wire.Tick120, nil
	default:
		return 0, fmt.Errorf("session.tick_rate: unsupported rate %d", hz)
	}
}

// ParseSaveMode maps the configured save mode name to its wire enum.
func ParseSaveMode(name string) (wire.SaveMode, error) {
	switch strings.ToLower(name) {
	case "per-player", "":
		return wire.SavePerPlayer, nil
	case "synchronized":
		return wire.SaveSynchronized, nil
	case "new-game":
		return wire.SaveNewGame, nil
	default:
		return 0, fmt.Errorf("saves.mode: unknown mode %q", name)
	}
}

// ToSessionConfig converts the daemon configuration to the session
// package's immutable Config. romHash is the fingerprint of the ROM at
// session.rom_path, computed by the caller.
func ToSessionConfig(cfg *HostConfig, romHash uint64) (session.Config, error) {
	console, err := ParseConsole(cfg.Session.Console)
	if err != nil {
		return session.Config{}, err
	}
	tickRate, err := ParseTickRate(cfg.Session.TickRate)
	if err != nil {
		return session.Config{}, err
	}

	return session.Config{
		Console:    console,
		ROMHash:    romHash,
		TickRate:   tickRate,
		MaxPlayers: uint8(cfg.Session.MaxPlayers),
		Network: wire.NetworkConfig{
			InputDelay:            uint8(cfg.Network.InputDelay),
			MaxRollback:           uint8(cfg.Network.MaxRollback),
			DisconnectTimeoutMSec: uint32(cfg.Network.DisconnectTimeout.Milliseconds()),
			DesyncDetection:       cfg.Network.DesyncDetection,
		},
	}, nil
}

// HostPlayerInfo builds the host's lobby presence from configuration.
func HostPlayerInfo(cfg *HostConfig) wire.PlayerInfo {
	info := wire.DefaultPlayerInfo()
	info.Name = cfg.Session.PlayerName
	return info
}
