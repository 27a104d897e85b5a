package session

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/framelink/framelink-go/internal/net/wire"
	"github.com/framelink/framelink-go/internal/telemetry/logger"
	"github.com/framelink/framelink-go/internal/telemetry/metric"
)

// State is the host lobby lifecycle. Transitions only move forward:
// Listening → Lobby → Starting → Ready. Once Starting, no player may be
// added.
type State uint8

const (
	// Listening means no guest has joined yet.
	Listening State = iota
	// Lobby means at least one guest is connected.
	Lobby
	// Starting means SessionStart has been produced and sent.
	Starting
	// Ready means the lobby has handed off to the rollback engine.
	Ready
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Lobby:
		return "lobby"
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// HostHandle is the player handle reserved for the host.
const HostHandle uint8 = 0

// SessionIDPrefix is the prefix for session identifiers.
// Format: flgs-{ulid_lowercase}.
const SessionIDPrefix = "flgs-"

// ConnectedPlayer tracks one guest from accepted join to removal. It is
// owned exclusively by the Host; callers see copies.
type ConnectedPlayer struct {
	Handle   uint8
	Info     wire.PlayerInfo
	Addr     netip.AddrPort
	Ready    bool
	LastSeen time.Time
}

// Host is the authoritative lobby state machine. It is single-threaded:
// the embedding application must feed it one datagram at a time and may
// not call its methods concurrently.
type Host struct {
	id         string
	cfg        Config
	hostInfo   wire.PlayerInfo
	publicAddr netip.AddrPort

	state      State
	players    map[uint8]*ConnectedPlayer
	addrIndex  map[netip.AddrPort]uint8
	nextHandle uint8

	seed      uint64
	seeded    bool
	startTime time.Time

	sender  Sender
	clock   Clock
	log     logger.Logger
	metrics *metric.Registry
}

// NewHost builds a host lobby around an immutable session configuration.
// publicAddr is the address guests can reach the host at (a real IP,
// never 0.0.0.0). The handshake port must leave room for the derived
// sync port (port + 1), so 65535 is rejected up front.
func NewHost(cfg Config, hostInfo wire.PlayerInfo, publicAddr netip.AddrPort, sender Sender, opts ...Option) (*Host, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	if publicAddr.Port() == 0xFFFF {
		return nil, ErrPortOverflow.WithDetails("host handshake port is 65535")
	}
	if sender == nil {
		return nil, ErrInvalidConfig.WithDetails("sender is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	h := &Host{
		id:         newSessionID(),
		cfg:        cfg,
		hostInfo:   hostInfo,
		publicAddr: publicAddr,
		state:      Listening,
		players:    make(map[uint8]*ConnectedPlayer),
		addrIndex:  make(map[netip.AddrPort]uint8),
		nextHandle: HostHandle + 1,
		sender:     sender,
		clock:      o.clock,
		metrics:    o.metrics,
	}
	h.log = o.log.With("session", h.id)

	h.log.Info("host lobby created",
		"console", cfg.Console.String(),
		"tick_rate", cfg.TickRate.String(),
		"max_players", cfg.MaxPlayers,
		"addr", publicAddr.String())

	return h, nil
}

// newSessionID generates a session identifier: flgs-{ulid_lowercase}.
func newSessionID() string {
	return SessionIDPrefix + strings.ToLower(ulid.Make().String())
}

// ID returns the session identifier. It never travels on the wire; it
// exists for logs and metrics.
func (h *Host) ID() string { return h.id }

// State returns the current lifecycle state.
func (h *Host) State() State { return h.state }

// GuestCount returns the number of connected guests (host excluded).
func (h *Host) GuestCount() int { return len(h.players) }

// PlayerCount returns the number of players including the host.
func (h *Host) PlayerCount() uint8 { return uint8(1 + len(h.players)) }

// IsFull reports whether the lobby has no free handle slots left.
func (h *Host) IsFull() bool { return h.PlayerCount() >= h.cfg.MaxPlayers }

// AllReady reports whether every connected guest has readied up. It is
// vacuously true with no guests; AllReady events and Start additionally
// require at least two guests.
func (h *Host) AllReady() bool {
	for _, p := range h.players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// Player returns a copy of the tracked state for a handle.
func (h *Host) Player(handle uint8) (ConnectedPlayer, bool) {
	p, ok := h.players[handle]
	if !ok {
		return ConnectedPlayer{}, false
	}
	return *p, true
}

// HandleMessage is the central dispatch for one inbound datagram. It
// runs to completion before the next message may be processed and
// returns the event the embedding application should react to, or nil.
//
// Unknown or out-of-role messages are logged and dropped: a
// forward-compatible peer must never be able to crash the host.
func (h *Host) HandleMessage(from netip.AddrPort, msg wire.Message) Event {
	h.metrics.MessageReceived(msg.Type().String())
	h.touch(from)

	switch m := msg.(type) {
	case wire.JoinRequest:
		return h.handleJoinRequest(from, m)
	case wire.GuestReady:
		return h.handleGuestReady(from, m.Ready)
	case wire.Ping:
		h.send(from, wire.Pong{})
		return nil
	case wire.PunchAck:
		// Guests punch each other, never the host; acks that reach us
		// are stray but harmless.
		return nil
	default:
		h.log.Warn("unexpected message dropped",
			"type", msg.Type().String(),
			"from", from.String())
		return nil
	}
}

// touch refreshes last_seen for any inbound message from a known player.
func (h *Host) touch(from netip.AddrPort) {
	if handle, ok := h.addrIndex[from]; ok {
		if p, ok := h.players[handle]; ok {
			p.LastSeen = h.clock.Now()
		}
	}
}

func (h *Host) handleJoinRequest(from netip.AddrPort, req wire.JoinRequest) Event {
	// A retry from an already-admitted guest means our JoinAccept was
	// lost; resend it with the same handle. Exactly one PlayerJoined is
	// ever emitted per player.
	if handle, ok := h.addrIndex[from]; ok {
		h.send(from, wire.JoinAccept{PlayerHandle: handle, Lobby: h.LobbyState()})
		return nil
	}

	if reject, ok := h.validateJoin(req); ok {
		h.send(from, reject)
		h.metrics.JoinRejected(reject.Reason.String())
		h.log.Info("join rejected",
			"from", from.String(),
			"reason", reject.Reason.String())
		return SessionError{Err: ErrJoinRejected.WithDetails(reject.Reason.String())}
	}

	handle := h.nextHandle
	h.nextHandle++

	h.players[handle] = &ConnectedPlayer{
		Handle:   handle,
		Info:     req.Info,
		Addr:     from,
		Ready:    false,
		LastSeen: h.clock.Now(),
	}
	h.addrIndex[from] = handle

	if h.state == Listening {
		h.state = Lobby
	}

	h.send(from, wire.JoinAccept{PlayerHandle: handle, Lobby: h.LobbyState()})
	h.broadcastLobbyUpdate(handle)

	h.metrics.JoinAccepted()
	h.metrics.SetLobbyPlayers(float64(h.PlayerCount()))
	h.log.Info("player joined", "player", handle, "name", req.Info.Name, "from", from.String())

	return PlayerJoined{Handle: handle, Info: req.Info}
}

// validateJoin checks a join request in fixed order (console type, rom
// hash, tick rate, lobby full, game in progress) and returns the first
// failing reason as a typed reject.
func (h *Host) validateJoin(req wire.JoinRequest) (wire.JoinReject, bool) {
	if req.Console != h.cfg.Console {
		return wire.JoinReject{
			Reason:  wire.RejectConsoleTypeMismatch,
			Message: fmt.Sprintf("expected %s, got %s", h.cfg.Console, req.Console),
		}, true
	}
	if req.ROMHash != h.cfg.ROMHash {
		return wire.JoinReject{
			Reason:  wire.RejectROMHashMismatch,
			Message: "different game version",
		}, true
	}
	if req.TickRate != h.cfg.TickRate {
		return wire.JoinReject{
			Reason:  wire.RejectTickRateMismatch,
			Message: fmt.Sprintf("expected %s, got %s", h.cfg.TickRate, req.TickRate),
		}, true
	}
	if h.IsFull() {
		return wire.JoinReject{Reason: wire.RejectLobbyFull}, true
	}
	if h.state == Starting || h.state == Ready {
		return wire.JoinReject{Reason: wire.RejectGameInProgress}, true
	}
	return wire.JoinReject{}, false
}

func (h *Host) handleGuestReady(from netip.AddrPort, ready bool) Event {
	// A ready toggle from an address we no longer track is a stale
	// datagram from a peer that already left, not an error.
	handle, ok := h.addrIndex[from]
	if !ok {
		return nil
	}
	p := h.players[handle]
	if p.Ready == ready {
		return nil
	}

	p.Ready = ready
	h.broadcastLobbyUpdate(0xFF)
	h.log.Info("player ready changed", "player", handle, "ready", ready)

	if ready && h.AllReady() && len(h.players) >= 2 {
		return AllReady{}
	}
	return PlayerReadyChanged{Handle: handle, Ready: ready}
}

// Start produces the SessionStart broadcast and transitions the lobby
// to Starting. Preconditions: every guest ready and at least two guests
// connected. On any precondition or derivation failure the lobby is
// left untouched.
//
// The returned message carries the one fresh random seed shared by all
// peers (the sole source of simulation-level nondeterminism) plus a
// fixed-length connection list with inactive placeholders, so every
// peer agrees on array shape regardless of headcount.
func (h *Host) Start() (*wire.SessionStart, error) {
	if !h.AllReady() {
		return nil, ErrNotAllReady
	}
	if len(h.players) < 2 {
		return nil, ErrNotEnoughPlayers.WithDetails(
			fmt.Sprintf("have %d", len(h.players)))
	}
	// Derive every sync port before mutating anything; a guest bound to
	// 65535 must fail the whole start, not half of it.
	for _, p := range h.players {
		if p.Addr.Port() == 0xFFFF {
			return nil, ErrPortOverflow.WithDetails(
				fmt.Sprintf("player %d at %s", p.Handle, p.Addr))
		}
	}

	seed, err := randomSeed()
	if err != nil {
		return nil, ErrInvalidConfig.WithCause(err)
	}
	h.seed = seed
	h.seeded = true

	start := &wire.SessionStart{
		LocalPlayerHandle: HostHandle,
		RandomSeed:        seed,
		StartFrame:        0,
		TickRate:          h.cfg.TickRate,
		Players:           h.connectionList(),
		PlayerCount:       h.PlayerCount(),
		Network:           h.cfg.Network,
		Save:              h.cfg.Save,
	}

	h.state = Starting
	h.startTime = h.clock.Now()

	for _, p := range h.players {
		h.send(p.Addr, *start)
	}

	h.metrics.SessionStarted()
	h.log.Info("session started",
		"players", start.PlayerCount,
		"seed", fmt.Sprintf("%016x", seed))

	return start, nil
}

// MarkReady flips Starting to Ready once the embedding application has
// handed the socket over to the rollback engine.
func (h *Host) MarkReady() {
	if h.state == Starting {
		h.state = Ready
	}
}

// StartTime returns when Start succeeded; zero until then.
func (h *Host) StartTime() time.Time { return h.startTime }

// Seed returns the session seed drawn by Start.
func (h *Host) Seed() (uint64, bool) { return h.seed, h.seeded }

// RemovePlayer evicts a guest and rebroadcasts the roster. Eviction
// policy (timeouts, kicks) belongs to the embedding application; the
// state machine only executes it. Removing the last guest drops the
// lobby back to Listening.
func (h *Host) RemovePlayer(handle uint8) (wire.PlayerInfo, bool) {
	p, ok := h.players[handle]
	if !ok {
		return wire.PlayerInfo{}, false
	}
	delete(h.players, handle)
	delete(h.addrIndex, p.Addr)
	h.broadcastLobbyUpdate(0xFF)

	if len(h.players) == 0 && h.state == Lobby {
		h.state = Listening
	}

	h.metrics.SetLobbyPlayers(float64(h.PlayerCount()))
	h.log.Info("player removed", "player", handle)
	return p.Info, true
}

// IdleSince returns the handles of guests whose last inbound message is
// older than timeout, sorted ascending. It never evicts; pair it with
// RemovePlayer in whatever policy the embedding application wants.
func (h *Host) IdleSince(timeout time.Duration) []uint8 {
	now := h.clock.Now()
	var idle []uint8
	for handle, p := range h.players {
		if now.Sub(p.LastSeen) > timeout {
			idle = append(idle, handle)
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i] < idle[j] })
	return idle
}

// LobbyState builds the full roster: the host at slot 0, every admitted
// guest at its handle, and inactive placeholders for the rest, so every
// peer renders a stable-sized list.
func (h *Host) LobbyState() wire.LobbyState {
	slots := make([]wire.PlayerSlot, 0, h.cfg.MaxPlayers)

	hostInfo := h.hostInfo
	hostAddr := h.publicAddr.String()
	slots = append(slots, wire.PlayerSlot{
		Handle: HostHandle,
		Active: true,
		Info:   &hostInfo,
		Ready:  true, // the host is always ready
		Addr:   &hostAddr,
	})

	for handle := HostHandle + 1; handle < h.cfg.MaxPlayers; handle++ {
		if p, ok := h.players[handle]; ok {
			info := p.Info
			addr := p.Addr.String()
			slots = append(slots, wire.PlayerSlot{
				Handle: handle,
				Active: true,
				Info:   &info,
				Ready:  p.Ready,
				Addr:   &addr,
			})
		} else {
			slots = append(slots, wire.PlayerSlot{Handle: handle})
		}
	}

	return wire.LobbyState{
		Players:    slots,
		MaxPlayers: h.cfg.MaxPlayers,
		HostHandle: HostHandle,
	}
}

// connectionList mirrors LobbyState for the post-start peer mesh: a
// fixed MaxPlayers-length list with inactive placeholder entries.
func (h *Host) connectionList() []wire.PlayerConnectionInfo {
	players := make([]wire.PlayerConnectionInfo, 0, h.cfg.MaxPlayers)

	players = append(players, wire.PlayerConnectionInfo{
		Handle:   HostHandle,
		Active:   true,
		Info:     h.hostInfo,
		Addr:     h.publicAddr.String(),
		SyncPort: h.publicAddr.Port() + 1,
	})

	for handle := HostHandle + 1; handle < h.cfg.MaxPlayers; handle++ {
		if p, ok := h.players[handle]; ok {
			players = append(players, wire.PlayerConnectionInfo{
				Handle:   handle,
				Active:   true,
				Info:     p.Info,
				Addr:     p.Addr.String(),
				SyncPort: p.Addr.Port() + 1,
			})
		} else {
			players = append(players, wire.PlayerConnectionInfo{
				Handle: handle,
				Info:   wire.DefaultPlayerInfo(),
			})
		}
	}

	return players
}

// broadcastLobbyUpdate sends the roster to every guest except skip
// (0xFF broadcasts to all). The newly admitted player already got the
// roster inside its JoinAccept.
func (h *Host) broadcastLobbyUpdate(skip uint8) {
	update := wire.LobbyUpdate{Lobby: h.LobbyState()}
	for handle, p := range h.players {
		if handle == skip {
			continue
		}
		h.send(p.Addr, update)
	}
}

// send is fire-and-forget: over an unreliable transport a send failure
// is indistinguishable from packet loss, so it is logged and counted,
// never retried.
func (h *Host) send(addr netip.AddrPort, msg wire.Message) {
	if err := h.sender.SendTo(addr, msg); err != nil {
		h.metrics.SendFailed()
		h.log.Warn("send failed",
			"type", msg.Type().String(),
			"to", addr.String(),
			"error", err)
	}
}

// randomSeed draws the shared simulation seed from the OS entropy pool.
func randomSeed() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
