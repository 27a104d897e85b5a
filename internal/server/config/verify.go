// Package config defines the host daemon configuration structure.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"os"

	"github.com/framelink/framelink-go/internal/net/wire"
)

// Verify validates the configuration.
func Verify(cfg *HostConfig) error {
	if err := verifySession(&cfg.Session); err != nil {
		return err
	}
	if err := verifyNetwork(&cfg.Network); err != nil {
		return err
	}
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	return verifySaves(&cfg.Saves)
}

func verifySession(cfg *SessionSection) error {
	if _, err := ParseConsole(cfg.Console); err != nil {
		return err
	}
	if _, err := ParseTickRate(cfg.TickRate); err != nil {
		return err
	}
	if cfg.ROMPath == "" {
		return errors.New("session.rom_path is required")
	}
	if cfg.MaxPlayers < 2 || cfg.MaxPlayers > int(wire.MaxPlayerSlots) {
		return fmt.Errorf("session.max_players must be 2-%d, got %d",
			wire.MaxPlayerSlots, cfg.MaxPlayers)
	}
	if len(cfg.PlayerName) == 0 || len(cfg.PlayerName) > wire.MaxPlayerNameLen {
		return fmt.Errorf("session.player_name must be 1-%d bytes",
			wire.MaxPlayerNameLen)
	}
	if cfg.IdleTimeout <= 0 {
		return errors.New("session.idle_timeout must be positive")
	}
	return nil
}

func verifyNetwork(cfg *NetworkSection) error {
	if cfg.InputDelay < 0 {
		return errors.New("network.input_delay must not be negative")
	}
	if cfg.MaxRollback < 1 {
		return errors.New("network.max_rollback must be at least 1")
	}
	if cfg.DisconnectTimeout <= 0 {
		return errors.New("network.disconnect_timeout must be positive")
	}
	if cfg.JoinRatePerSec <= 0 || cfg.JoinRateBurst < 1 {
		return errors.New("network join rate limits must be positive")
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	listen, err := netip.ParseAddrPort(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server.listen_addr: %w", err)
	}
	if listen.Port() == 0 || listen.Port() == 0xFFFF {
		return fmt.Errorf("server.listen_addr port %d leaves no room for the sync port", listen.Port())
	}

	if cfg.PublicAddr == "" {
		return errors.New("server.public_addr is required")
	}
	public, err := netip.ParseAddrPort(cfg.PublicAddr)
	if err != nil {
		return fmt.Errorf("server.public_addr: %w", err)
	}
	if public.Addr().IsUnspecified() {
		return errors.New("server.public_addr must be a reachable address, not a wildcard")
	}

	if cfg.MetricsAddr != "" {
		if _, err := netip.ParseAddrPort(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("server.metrics_addr: %w", err)
		}
	}
	return nil
}

func verifySaves(cfg *SavesSection) error {
	if cfg.DataDir == "" {
		return errors.New("saves.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("cannot create saves directory: %w", err)
	}
	if cfg.EncryptionKey != "" {
		key, err := hex.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return errors.New("saves.encryption_key must be hex encoded")
		}
		if len(key) != 32 {
			return fmt.Errorf("saves.encryption_key must be 32 bytes, got %d", len(key))
		}
	}
	if _, err := ParseSaveMode(cfg.Mode); err != nil {
		return err
	}
	if cfg.Slot < 0 || cfg.Slot > 255 {
		return fmt.Errorf("saves.slot must be 0-255, got %d", cfg.Slot)
	}
	return nil
}
