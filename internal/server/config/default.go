// Package config defines the host daemon configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultConsole     = "zx"
	DefaultTickRate    = 60
	DefaultMaxPlayers  = 4
	DefaultPlayerName  = "Player"
	DefaultIdleTimeout = 10 * time.Second

	DefaultInputDelay        = 2
	DefaultMaxRollback       = 8
	DefaultDisconnectTimeout = 5 * time.Second
	DefaultJoinRatePerSec    = 5
	DefaultJoinRateBurst     = 10

	DefaultListenAddr  = "0.0.0.0:7770"
	DefaultMetricsAddr = "127.0.0.1:9190"

	DefaultSavesDataDir = "/var/lib/framelink-host/saves"
	DefaultSaveMode     = "per-player"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default host configuration. PublicAddr and
// ROMPath have no sensible defaults and must come from the operator.
func Default() *HostConfig {
	return &HostConfig{
		Session: SessionSection{
			Console:     DefaultConsole,
			TickRate:    DefaultTickRate,
			MaxPlayers:  DefaultMaxPlayers,
			PlayerName:  DefaultPlayerName,
			IdleTimeout: DefaultIdleTimeout,
		},
		Network: NetworkSection{
			InputDelay:        DefaultInputDelay,
			MaxRollback:       DefaultMaxRollback,
			DisconnectTimeout: DefaultDisconnectTimeout,
			DesyncDetection:   true,
			JoinRatePerSec:    DefaultJoinRatePerSec,
			JoinRateBurst:     DefaultJoinRateBurst,
		},
		Server: ServerSection{
			ListenAddr:  DefaultListenAddr,
			MetricsAddr: DefaultMetricsAddr,
		},
		Saves: SavesSection{
			DataDir: DefaultSavesDataDir,
			Mode:    DefaultSaveMode,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
