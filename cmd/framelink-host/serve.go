package main

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/framelink/framelink-go/internal/infra/confloader"
	"github.com/framelink/framelink-go/internal/infra/shutdown"
	"github.com/framelink/framelink-go/internal/net/session"
	"github.com/framelink/framelink-go/internal/net/udp"
	"github.com/framelink/framelink-go/internal/server/config"
	"github.com/framelink/framelink-go/internal/storage/saves"
	"github.com/framelink/framelink-go/internal/telemetry/logger"
	"github.com/framelink/framelink-go/internal/telemetry/metric"
	"github.com/framelink/framelink-go/pkg/romhash"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Host a netplay session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"FRAMELINK_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "rom",
				Usage:   "Path to the ROM image (overrides session.rom_path)",
				EnvVars: []string{"FRAMELINK_ROM"},
			},
			&cli.StringFlag{
				Name:    "public-addr",
				Usage:   "Address advertised to guests (overrides server.public_addr)",
				EnvVars: []string{"FRAMELINK_PUBLIC_ADDR"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting framelink-host",
		"version", c.App.Version,
		"listen_addr", cfg.Server.ListenAddr,
		"public_addr", cfg.Server.PublicAddr,
		"rom_path", cfg.Session.ROMPath)

	metrics := metric.NewRegistry()

	romHash, err := romhash.SumFile(cfg.Session.ROMPath)
	if err != nil {
		return fmt.Errorf("fingerprint rom: %w", err)
	}
	log.Info("rom fingerprinted", "rom_hash", romhash.Format(romHash))

	store, err := initSaves(cfg)
	if err != nil {
		return fmt.Errorf("init save store: %w", err)
	}

	socket, err := udp.Bind(cfg.Server.ListenAddr,
		udp.WithLogger(log),
		udp.WithMetrics(metrics),
		udp.WithJoinLimit(cfg.Network.JoinRatePerSec, cfg.Network.JoinRateBurst),
	)
	if err != nil {
		return fmt.Errorf("bind handshake socket: %w", err)
	}

	host, err := initHost(cfg, romHash, store, socket, log, metrics)
	if err != nil {
		socket.Close()
		return err
	}

	log.Info("session listening",
		"session_id", host.ID(),
		"addr", socket.LocalAddr().String(),
		"max_players", cfg.Session.MaxPlayers)

	shutdownHandler := shutdown.NewHandler(shutdownTimeout)
	ctx, cancel := context.WithCancel(context.Background())

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		sessionLoop(ctx, host, socket, cfg, log)
	}()

	metricsServer := startMetrics(cfg, metrics, log)
	watcher := startConfigWatcher(c.String("config"), log)

	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("stopping session loop")
		cancel()
		<-loopDone
		return socket.Close()
	})
	if metricsServer != nil {
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			log.Info("stopping metrics endpoint")
			return metricsServer.Shutdown(ctx)
		})
	}
	if watcher != nil {
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			return watcher.Stop()
		})
	}

	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("host stopped gracefully")
	return nil
}

// sessionLoop feeds the host state machine from the socket and evicts
// idle lobby guests. It owns the host; nothing else touches it after
// startup.
func sessionLoop(ctx context.Context, host *session.Host, socket *udp.Socket, cfg *config.HostConfig, log logger.Logger) {
	evict := time.NewTicker(time.Second)
	defer evict.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-evict.C:
			evictIdle(host, cfg.Session.IdleTimeout, log)
		default:
		}

		in, ok := socket.Wait(100 * time.Millisecond)
		if !ok {
			continue
		}
		handleEvent(host, host.HandleMessage(in.From, in.Msg), log)
	}
}

func evictIdle(host *session.Host, timeout time.Duration, log logger.Logger) {
	if host.State() != session.Lobby {
		return
	}
	for _, handle := range host.IdleSince(timeout) {
		if info, ok := host.RemovePlayer(handle); ok {
			log.Info("evicted idle player", "handle", handle, "name", info.Name)
		}
	}
}

func handleEvent(host *session.Host, event session.Event, log logger.Logger) {
	switch ev := event.(type) {
	case nil:
	case session.PlayerJoined:
		log.Info("player joined",
			"handle", ev.Handle,
			"name", ev.Info.Name,
			"players", host.PlayerCount())
	case session.PlayerReadyChanged:
		log.Info("player ready changed", "handle", ev.Handle, "ready", ev.Ready)
	case session.AllReady:
		log.Info("all players ready, starting session")
		start, err := host.Start()
		if err != nil {
			log.Error("session start failed", "error", err)
			return
		}
		host.MarkReady()
		log.Info("session started",
			"players", start.PlayerCount,
			"seed", fmt.Sprintf("%016x", start.RandomSeed))
	case session.SessionError:
		log.Warn("session protocol error", "error", ev.Err)
	}
}

// loadConfig merges defaults, the optional config file, environment
// variables and flag overrides, then validates the result.
func loadConfig(c *cli.Context) (*config.HostConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if path := c.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}

	if rom := c.String("rom"); rom != "" {
		cfg.Session.ROMPath = rom
	}
	if addr := c.String("public-addr"); addr != "" {
		cfg.Server.PublicAddr = addr
	}

	if err := config.Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogger(cfg *config.HostConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

func initSaves(cfg *config.HostConfig) (*saves.Store, error) {
	storeCfg := saves.Config{Dir: cfg.Saves.DataDir}
	if cfg.Saves.EncryptionKey != "" {
		key, err := saves.ParseKey(cfg.Saves.EncryptionKey)
		if err != nil {
			return nil, err
		}
		storeCfg.Key = key
	}
	return saves.NewStore(storeCfg)
}

func initHost(cfg *config.HostConfig, romHash uint64, store *saves.Store, sender session.Sender, log logger.Logger, metrics *metric.Registry) (*session.Host, error) {
	sessCfg, err := config.ToSessionConfig(cfg, romHash)
	if err != nil {
		return nil, err
	}

	mode, err := config.ParseSaveMode(cfg.Saves.Mode)
	if err != nil {
		return nil, err
	}
	saveCfg, err := store.SaveConfigFor(romHash, mode, uint8(cfg.Saves.Slot))
	if err != nil {
		return nil, fmt.Errorf("load save slot: %w", err)
	}
	sessCfg.Save = saveCfg

	publicAddr, err := netip.ParseAddrPort(cfg.Server.PublicAddr)
	if err != nil {
		return nil, fmt.Errorf("parse public addr: %w", err)
	}

	return session.NewHost(sessCfg, config.HostPlayerInfo(cfg), publicAddr, sender,
		session.WithLogger(log),
		session.WithMetrics(metrics),
	)
}

// startMetrics serves the Prometheus endpoint when configured.
func startMetrics(cfg *config.HostConfig, metrics *metric.Registry, log logger.Logger) *http.Server {
	if cfg.Server.MetricsAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}

	go func() {
		log.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics endpoint failed", "error", err)
		}
	}()
	return srv
}

// startConfigWatcher hot-reloads the log level when the config file
// changes. Everything else stays fixed for the session's lifetime.
func startConfigWatcher(path string, log logger.Logger) *confloader.Watcher {
	if path == "" {
		return nil
	}

	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		log.Warn("config watcher unavailable", "error", err)
		return nil
	}
	if err := watcher.Watch(path); err != nil {
		log.Warn("cannot watch config file", "path", path, "error", err)
		return nil
	}

	watcher.OnChange(func(changed string) {
		loader := confloader.NewLoader(confloader.WithConfigFile(changed))
		cfg := config.Default()
		if err := loader.Load(cfg); err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	watcher.StartAsync()
	return watcher
}
