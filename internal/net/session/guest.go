package session

import (
	"crypto/rand"
	"encoding/binary"
	"net/netip"
	"time"

	"github.com/framelink/framelink-go/internal/net/wire"
	"github.com/framelink/framelink-go/internal/telemetry/logger"
	"github.com/framelink/framelink-go/internal/telemetry/metric"
)

// GuestState is the guest lifecycle. Failed is terminal.
type GuestState uint8

const (
	// GuestIdle means Join has not been called yet.
	GuestIdle GuestState = iota
	// GuestJoining means a JoinRequest is in flight.
	GuestJoining
	// GuestLobby means the host accepted and we wait for SessionStart.
	GuestLobby
	// GuestPunching means hole punching toward the other guests is
	// in progress.
	GuestPunching
	// GuestReadyState means every peer is reachable and the socket can
	// be handed to the rollback engine.
	GuestReadyState
	// GuestFailedState means the join was rejected or timed out.
	GuestFailedState
)

// String returns the state name.
func (s GuestState) String() string {
	switch s {
	case GuestIdle:
		return "idle"
	case GuestJoining:
		return "joining"
	case GuestLobby:
		return "lobby"
	case GuestPunching:
		return "punching"
	case GuestReadyState:
		return "ready"
	case GuestFailedState:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	joinTimeout        = 5 * time.Second
	joinResendInterval = time.Second
	punchTimeout       = 3 * time.Second
	punchRetryInterval = 200 * time.Millisecond
)

// punchPeer is one guest we must open a NAT hole toward.
type punchPeer struct {
	handle uint8
	addr   netip.AddrPort
	done   bool
}

// Guest is the joining side of the handshake. Like Host it is
// single-threaded and message-driven: the embedding application feeds
// it inbound datagrams via HandleMessage and drives timers via Tick.
type Guest struct {
	cfg      Config
	info     wire.PlayerInfo
	hostAddr netip.AddrPort
	// localAddr is our own handshake address as seen locally, reported
	// to the host for the peer mesh.
	localAddr string

	state  GuestState
	handle uint8
	ready  bool
	lobby  wire.LobbyState
	start  *wire.SessionStart

	peers      []punchPeer
	punchNonce uint32

	joinSentAt   time.Time
	lastResend   time.Time
	punchStarted time.Time
	lastPunch    time.Time

	sender  Sender
	clock   Clock
	log     logger.Logger
	metrics *metric.Registry
}

// NewGuest builds a guest around the same immutable configuration the
// host validates against. localAddr is the guest's own handshake
// address in host:port form.
func NewGuest(cfg Config, info wire.PlayerInfo, hostAddr netip.AddrPort, localAddr string, sender Sender, opts ...Option) (*Guest, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, ErrInvalidConfig.WithDetails("sender is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	nonce, err := randomNonce()
	if err != nil {
		return nil, ErrInvalidConfig.WithCause(err)
	}

	return &Guest{
		cfg:        cfg,
		info:       info,
		hostAddr:   hostAddr,
		localAddr:  localAddr,
		state:      GuestIdle,
		punchNonce: nonce,
		sender:     sender,
		clock:      o.clock,
		log:        o.log.With("host", hostAddr.String()),
		metrics:    o.metrics,
	}, nil
}

// State returns the current lifecycle state.
func (g *Guest) State() GuestState { return g.state }

// Handle returns our assigned player handle once accepted.
func (g *Guest) Handle() (uint8, bool) {
	if g.state == GuestIdle || g.state == GuestJoining {
		return 0, false
	}
	return g.handle, true
}

// Lobby returns the latest roster snapshot from the host.
func (g *Guest) Lobby() wire.LobbyState { return g.lobby }

// SessionStart returns the start message once received.
func (g *Guest) SessionStart() (*wire.SessionStart, bool) {
	return g.start, g.start != nil
}

// Join sends the initial JoinRequest. It may only be called from Idle.
func (g *Guest) Join() error {
	if g.state != GuestIdle {
		return ErrInvalidConfig.WithDetails("join already attempted")
	}
	g.sendJoinRequest()
	g.state = GuestJoining
	g.joinSentAt = g.clock.Now()
	g.lastResend = g.joinSentAt
	return nil
}

// SetReady toggles our ready flag in the lobby.
func (g *Guest) SetReady(ready bool) error {
	if g.state != GuestLobby {
		return ErrInvalidConfig.WithDetails("not in lobby")
	}
	g.ready = ready
	g.send(g.hostAddr, wire.GuestReady{Ready: ready})
	return nil
}

// HandleMessage processes one inbound datagram and returns the event it
// produced, or nil. Lobby traffic is only trusted from the host
// address; punch traffic flows between guests.
func (g *Guest) HandleMessage(from netip.AddrPort, msg wire.Message) GuestEvent {
	g.metrics.MessageReceived(msg.Type().String())

	switch m := msg.(type) {
	case wire.JoinAccept:
		if from != g.hostAddr {
			return nil
		}
		return g.handleAccept(m)
	case wire.JoinReject:
		if from != g.hostAddr {
			return nil
		}
		g.state = GuestFailedState
		g.log.Info("join rejected", "reason", m.Reason.String())
		return Rejected{Reason: m.Reason, Message: m.Message}
	case wire.LobbyUpdate:
		if from != g.hostAddr {
			return nil
		}
		g.lobby = m.Lobby
		return LobbyUpdated{Lobby: m.Lobby}
	case wire.SessionStart:
		if from != g.hostAddr {
			return nil
		}
		return g.handleSessionStart(m)
	case wire.PunchHello:
		return g.handlePunchHello(from, m)
	case wire.PunchAck:
		return g.handlePunchAck(m)
	case wire.Ping:
		g.send(from, wire.Pong{})
		return nil
	case wire.Pong:
		return nil
	default:
		g.log.Warn("unexpected message dropped",
			"type", msg.Type().String(),
			"from", from.String())
		return nil
	}
}

// Tick drives resends and timeouts. Call it on every poll iteration.
func (g *Guest) Tick() GuestEvent {
	now := g.clock.Now()

	switch g.state {
	case GuestJoining:
		if now.Sub(g.joinSentAt) > joinTimeout {
			g.state = GuestFailedState
			g.log.Warn("join timed out")
			return GuestFailed{Err: ErrJoinTimeout}
		}
		if now.Sub(g.lastResend) >= joinResendInterval {
			g.sendJoinRequest()
			g.lastResend = now
		}
	case GuestPunching:
		if now.Sub(g.punchStarted) > punchTimeout {
			g.state = GuestFailedState
			g.log.Warn("hole punching timed out")
			return GuestFailed{Err: ErrPunchTimeout}
		}
		if now.Sub(g.lastPunch) >= punchRetryInterval {
			g.sendPunchHellos()
			g.lastPunch = now
		}
	}
	return nil
}

func (g *Guest) handleAccept(accept wire.JoinAccept) GuestEvent {
	// Duplicate accepts from join retries are absorbed silently.
	if g.state != GuestJoining {
		return nil
	}
	g.handle = accept.PlayerHandle
	g.lobby = accept.Lobby
	g.state = GuestLobby
	g.log = g.log.With("player", accept.PlayerHandle)
	g.log.Info("joined lobby")
	return Accepted{Handle: accept.PlayerHandle, Lobby: accept.Lobby}
}

func (g *Guest) handleSessionStart(start wire.SessionStart) GuestEvent {
	if g.state != GuestLobby {
		g.log.Warn("session start in wrong state", "state", g.state.String())
		return nil
	}

	// The mesh needs holes only toward the other guests; the host
	// already has a working path to us.
	g.peers = g.peers[:0]
	for _, p := range start.Players {
		if !p.Active || p.Handle == g.handle || p.Handle == HostHandle {
			continue
		}
		addr, err := netip.ParseAddrPort(p.Addr)
		if err != nil {
			g.log.Warn("invalid peer address, skipping punch",
				"player", p.Handle,
				"addr", p.Addr,
				"error", err)
			continue
		}
		g.peers = append(g.peers, punchPeer{handle: p.Handle, addr: addr})
	}

	g.start = &start
	g.log.Info("session starting",
		"players", start.PlayerCount,
		"peers_to_punch", len(g.peers))

	if len(g.peers) == 0 {
		// Two-player game: host and us, nothing to punch.
		g.state = GuestReadyState
		return PunchComplete{}
	}

	g.state = GuestPunching
	g.punchStarted = g.clock.Now()
	g.lastPunch = g.punchStarted
	g.sendPunchHellos()
	return SessionStarting{Start: start}
}

func (g *Guest) handlePunchHello(from netip.AddrPort, hello wire.PunchHello) GuestEvent {
	if g.state != GuestPunching {
		return nil
	}
	peer := g.peerByHandle(hello.SenderHandle)
	if peer == nil {
		g.log.Warn("punch hello from unknown peer", "player", hello.SenderHandle)
		return nil
	}

	// Echo the sender's nonce so they can tie the ack to their hello.
	g.send(from, wire.PunchAck{SenderHandle: g.handle, Nonce: hello.Nonce})

	// Their hello reaching us proves the path works in that direction.
	peer.done = true
	return g.punchProgress()
}

func (g *Guest) handlePunchAck(ack wire.PunchAck) GuestEvent {
	if g.state != GuestPunching {
		return nil
	}
	if ack.Nonce != g.punchNonce {
		g.log.Warn("punch ack with stale nonce", "player", ack.SenderHandle)
		return nil
	}
	peer := g.peerByHandle(ack.SenderHandle)
	if peer == nil {
		return nil
	}
	peer.done = true
	return g.punchProgress()
}

// punchProgress moves to Ready once every peer has been heard from.
func (g *Guest) punchProgress() GuestEvent {
	for i := range g.peers {
		if !g.peers[i].done {
			return nil
		}
	}
	g.state = GuestReadyState
	g.log.Info("hole punching complete")
	return PunchComplete{}
}

func (g *Guest) peerByHandle(handle uint8) *punchPeer {
	for i := range g.peers {
		if g.peers[i].handle == handle {
			return &g.peers[i]
		}
	}
	return nil
}

func (g *Guest) sendJoinRequest() {
	g.send(g.hostAddr, wire.JoinRequest{
		Console:    g.cfg.Console,
		ROMHash:    g.cfg.ROMHash,
		TickRate:   g.cfg.TickRate,
		MaxPlayers: g.cfg.MaxPlayers,
		Info:       g.info,
		LocalAddr:  g.localAddr,
	})
}

func (g *Guest) sendPunchHellos() {
	hello := wire.PunchHello{SenderHandle: g.handle, Nonce: g.punchNonce}
	for _, p := range g.peers {
		if p.done {
			continue
		}
		g.send(p.addr, hello)
	}
}

func (g *Guest) send(addr netip.AddrPort, msg wire.Message) {
	if err := g.sender.SendTo(addr, msg); err != nil {
		g.metrics.SendFailed()
		g.log.Warn("send failed",
			"type", msg.Type().String(),
			"to", addr.String(),
			"error", err)
	}
}

func randomNonce() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
