package session

import (
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/framelink/framelink-go/internal/net/wire"
)

// fakeSender records every outbound message in order.
type fakeSender struct {
	sent []sentMsg
	err  error
}

type sentMsg struct {
	to  netip.AddrPort
	msg wire.Message
}

func (s *fakeSender) SendTo(addr netip.AddrPort, msg wire.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMsg{to: addr, msg: msg})
	return nil
}

func (s *fakeSender) lastTo(addr netip.AddrPort) wire.Message {
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].to == addr {
			return s.sent[i].msg
		}
	}
	return nil
}

func (s *fakeSender) countType(t wire.Type) int {
	n := 0
	for _, m := range s.sent {
		if m.msg.Type() == t {
			n++
		}
	}
	return n
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func addr(s string) netip.AddrPort {
	return netip.MustParseAddrPort(s)
}

func testConfig() Config {
	return Config{
		Console:    wire.ConsoleZX,
		ROMHash:    0xDEADBEEFCAFEF00D,
		TickRate:   wire.Tick60,
		MaxPlayers: 4,
		Network:    wire.DefaultNetworkConfig(),
	}
}

func newTestHost(t *testing.T) (*Host, *fakeSender, *fakeClock) {
	t.Helper()
	sender := &fakeSender{}
	clock := newFakeClock()
	h, err := NewHost(testConfig(), wire.DefaultPlayerInfo(), addr("203.0.113.1:7770"), sender,
		WithClock(clock))
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	return h, sender, clock
}

func joinFrom(t *testing.T, h *Host, from netip.AddrPort, name string) uint8 {
	t.Helper()
	req := wire.JoinRequest{
		Console:    wire.ConsoleZX,
		ROMHash:    0xDEADBEEFCAFEF00D,
		TickRate:   wire.Tick60,
		MaxPlayers: 4,
		Info:       wire.PlayerInfo{Name: name, Color: [3]uint8{255, 0, 0}},
		LocalAddr:  from.String(),
	}
	ev := h.HandleMessage(from, req)
	joined, ok := ev.(PlayerJoined)
	if !ok {
		t.Fatalf("join from %s: got event %T, want PlayerJoined", from, ev)
	}
	return joined.Handle
}

func TestNewHostRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"max players too low", func(c *Config) { c.MaxPlayers = 1 }},
		{"max players too high", func(c *Config) { c.MaxPlayers = wire.MaxPlayerSlots + 1 }},
		{"unknown tick rate", func(c *Config) { c.TickRate = wire.TickRate(99) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mut(&cfg)
			_, err := NewHost(cfg, wire.DefaultPlayerInfo(), addr("203.0.113.1:7770"), &fakeSender{})
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("got %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNewHostRejectsPortOverflow(t *testing.T) {
	_, err := NewHost(testConfig(), wire.DefaultPlayerInfo(), addr("203.0.113.1:65535"), &fakeSender{})
	if !errors.Is(err, ErrPortOverflow) {
		t.Errorf("got %v, want ErrPortOverflow", err)
	}
}

func TestSessionIDFormat(t *testing.T) {
	h, _, _ := newTestHost(t)
	id := h.ID()
	if !strings.HasPrefix(id, SessionIDPrefix) {
		t.Errorf("session id %q missing prefix %q", id, SessionIDPrefix)
	}
	if got := len(id); got != len(SessionIDPrefix)+26 {
		t.Errorf("session id length = %d, want %d", got, len(SessionIDPrefix)+26)
	}
	if id != strings.ToLower(id) {
		t.Errorf("session id %q not lowercase", id)
	}
}

func TestJoinAssignsMonotonicHandles(t *testing.T) {
	h, _, _ := newTestHost(t)

	h1 := joinFrom(t, h, addr("10.0.0.2:5000"), "alice")
	h2 := joinFrom(t, h, addr("10.0.0.3:5000"), "bob")

	if h1 != 1 || h2 != 2 {
		t.Errorf("handles = %d, %d, want 1, 2", h1, h2)
	}
	if h.State() != Lobby {
		t.Errorf("state = %s, want lobby", h.State())
	}

	// Handles are never reused, even after the holder leaves.
	h.RemovePlayer(h2)
	h3 := joinFrom(t, h, addr("10.0.0.4:5000"), "carol")
	if h3 != 3 {
		t.Errorf("handle after removal = %d, want 3", h3)
	}
}

func TestJoinRetryIsIdempotent(t *testing.T) {
	h, sender, _ := newTestHost(t)
	guest := addr("10.0.0.2:5000")

	handle := joinFrom(t, h, guest, "alice")

	// The retry must not fire a second PlayerJoined or grow the lobby.
	req := wire.JoinRequest{
		Console:  wire.ConsoleZX,
		ROMHash:  0xDEADBEEFCAFEF00D,
		TickRate: wire.Tick60,
		Info:     wire.PlayerInfo{Name: "alice"},
	}
	ev := h.HandleMessage(guest, req)
	if ev != nil {
		t.Errorf("retry event = %T, want nil", ev)
	}
	if got := h.GuestCount(); got != 1 {
		t.Errorf("guest count after retry = %d, want 1", got)
	}

	accept, ok := sender.lastTo(guest).(wire.JoinAccept)
	if !ok {
		t.Fatalf("last message to guest = %T, want JoinAccept", sender.lastTo(guest))
	}
	if accept.PlayerHandle != handle {
		t.Errorf("re-accept handle = %d, want %d", accept.PlayerHandle, handle)
	}
}

func TestJoinValidationOrder(t *testing.T) {
	h, sender, _ := newTestHost(t)

	// Fill the lobby so the full check could also fire.
	joinFrom(t, h, addr("10.0.0.2:5000"), "alice")
	joinFrom(t, h, addr("10.0.0.3:5000"), "bob")
	joinFrom(t, h, addr("10.0.0.4:5000"), "carol")

	// Wrong on every axis: console mismatch must win because it is
	// checked first.
	bad := wire.JoinRequest{
		Console:  wire.ConsoleChroma,
		ROMHash:  1,
		TickRate: wire.Tick30,
	}
	from := addr("10.0.0.9:5000")
	ev := h.HandleMessage(from, bad)

	se, ok := ev.(SessionError)
	if !ok {
		t.Fatalf("got event %T, want SessionError", ev)
	}
	if !errors.Is(se.Err, ErrJoinRejected) {
		t.Errorf("got %v, want ErrJoinRejected", se.Err)
	}
	reject, ok := sender.lastTo(from).(wire.JoinReject)
	if !ok {
		t.Fatalf("last message = %T, want JoinReject", sender.lastTo(from))
	}
	if reject.Reason != wire.RejectConsoleTypeMismatch {
		t.Errorf("reason = %s, want console_type_mismatch", reject.Reason)
	}
}

func TestJoinRejectReasons(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*wire.JoinRequest)
		want wire.RejectReason
	}{
		{"rom hash", func(r *wire.JoinRequest) { r.ROMHash = 42 }, wire.RejectROMHashMismatch},
		{"tick rate", func(r *wire.JoinRequest) { r.TickRate = wire.Tick120 }, wire.RejectTickRateMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, sender, _ := newTestHost(t)
			req := wire.JoinRequest{
				Console:  wire.ConsoleZX,
				ROMHash:  0xDEADBEEFCAFEF00D,
				TickRate: wire.Tick60,
			}
			tc.mut(&req)
			from := addr("10.0.0.2:5000")
			h.HandleMessage(from, req)

			reject, ok := sender.lastTo(from).(wire.JoinReject)
			if !ok {
				t.Fatalf("last message = %T, want JoinReject", sender.lastTo(from))
			}
			if reject.Reason != tc.want {
				t.Errorf("reason = %s, want %s", reject.Reason, tc.want)
			}
		})
	}
}

func TestJoinRejectedWhenFull(t *testing.T) {
	h, sender, _ := newTestHost(t)

	joinFrom(t, h, addr("10.0.0.2:5000"), "alice")
	joinFrom(t, h, addr("10.0.0.3:5000"), "bob")
	joinFrom(t, h, addr("10.0.0.4:5000"), "carol")

	from := addr("10.0.0.5:5000")
	h.HandleMessage(from, wire.JoinRequest{
		Console:  wire.ConsoleZX,
		ROMHash:  0xDEADBEEFCAFEF00D,
		TickRate: wire.Tick60,
	})
	reject, ok := sender.lastTo(from).(wire.JoinReject)
	if !ok {
		t.Fatalf("last message = %T, want JoinReject", sender.lastTo(from))
	}
	if reject.Reason != wire.RejectLobbyFull {
		t.Errorf("reason = %s, want lobby_full", reject.Reason)
	}
}

func TestJoinRejectedAfterStart(t *testing.T) {
	h, sender, _ := newTestHost(t)
	a, b := addr("10.0.0.2:5000"), addr("10.0.0.3:5000")
	joinFrom(t, h, a, "alice")
	joinFrom(t, h, b, "bob")
	h.HandleMessage(a, wire.GuestReady{Ready: true})
	h.HandleMessage(b, wire.GuestReady{Ready: true})
	if _, err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	from := addr("10.0.0.9:5000")
	h.HandleMessage(from, wire.JoinRequest{
		Console:  wire.ConsoleZX,
		ROMHash:  0xDEADBEEFCAFEF00D,
		TickRate: wire.Tick60,
	})
	reject, ok := sender.lastTo(from).(wire.JoinReject)
	if !ok {
		t.Fatalf("last message = %T, want JoinReject", sender.lastTo(from))
	}
	if reject.Reason != wire.RejectGameInProgress {
		t.Errorf("reason = %s, want game_in_progress", reject.Reason)
	}
}

func TestReadyToggleAndAllReady(t *testing.T) {
	h, _, _ := newTestHost(t)
	a, b := addr("10.0.0.2:5000"), addr("10.0.0.3:5000")
	joinFrom(t, h, a, "alice")
	joinFrom(t, h, b, "bob")

	ev := h.HandleMessage(a, wire.GuestReady{Ready: true})
	if _, ok := ev.(PlayerReadyChanged); !ok {
		t.Fatalf("first ready event = %T, want PlayerReadyChanged", ev)
	}

	// Duplicate toggle is absorbed.
	if ev := h.HandleMessage(a, wire.GuestReady{Ready: true}); ev != nil {
		t.Errorf("duplicate ready event = %T, want nil", ev)
	}

	ev = h.HandleMessage(b, wire.GuestReady{Ready: true})
	if _, ok := ev.(AllReady); !ok {
		t.Fatalf("last ready event = %T, want AllReady", ev)
	}
}

func TestSingleReadyGuestDoesNotFireAllReady(t *testing.T) {
	h, _, _ := newTestHost(t)
	a := addr("10.0.0.2:5000")
	joinFrom(t, h, a, "alice")

	ev := h.HandleMessage(a, wire.GuestReady{Ready: true})
	if _, ok := ev.(PlayerReadyChanged); !ok {
		t.Errorf("got event %T, want PlayerReadyChanged", ev)
	}
}

func TestReadyFromUnknownAddressIgnored(t *testing.T) {
	h, _, _ := newTestHost(t)
	if ev := h.HandleMessage(addr("10.9.9.9:1234"), wire.GuestReady{Ready: true}); ev != nil {
		t.Errorf("got event %T, want nil", ev)
	}
}

func TestPingAnsweredWithPong(t *testing.T) {
	h, sender, _ := newTestHost(t)
	from := addr("10.0.0.2:5000")
	if ev := h.HandleMessage(from, wire.Ping{}); ev != nil {
		t.Errorf("ping event = %T, want nil", ev)
	}
	if _, ok := sender.lastTo(from).(wire.Pong); !ok {
		t.Errorf("reply = %T, want Pong", sender.lastTo(from))
	}
}

func TestStartPreconditionsLeaveStateUntouched(t *testing.T) {
	h, sender, _ := newTestHost(t)
	a, b := addr("10.0.0.2:5000"), addr("10.0.0.3:5000")
	joinFrom(t, h, a, "alice")

	// One guest, not ready.
	if _, err := h.Start(); !errors.Is(err, ErrNotAllReady) {
		t.Errorf("got %v, want ErrNotAllReady", err)
	}

	h.HandleMessage(a, wire.GuestReady{Ready: true})
	if _, err := h.Start(); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Errorf("got %v, want ErrNotEnoughPlayers", err)
	}

	joinFrom(t, h, b, "bob")
	h.HandleMessage(b, wire.GuestReady{Ready: true})

	if h.State() != Lobby {
		t.Fatalf("state = %s, want lobby", h.State())
	}
	if got := sender.countType(wire.TypeSessionStart); got != 0 {
		t.Fatalf("session starts sent before Start = %d, want 0", got)
	}
}

func TestStartFailsOnGuestPortOverflow(t *testing.T) {
	h, sender, _ := newTestHost(t)
	a, b := addr("10.0.0.2:5000"), addr("10.0.0.3:65535")
	joinFrom(t, h, a, "alice")
	joinFrom(t, h, b, "bob")
	h.HandleMessage(a, wire.GuestReady{Ready: true})
	h.HandleMessage(b, wire.GuestReady{Ready: true})

	_, err := h.Start()
	if !errors.Is(err, ErrPortOverflow) {
		t.Fatalf("got %v, want ErrPortOverflow", err)
	}
	if h.State() != Lobby {
		t.Errorf("state after failed start = %s, want lobby", h.State())
	}
	if got := sender.countType(wire.TypeSessionStart); got != 0 {
		t.Errorf("session starts sent = %d, want 0", got)
	}
	if _, seeded := h.Seed(); seeded {
		t.Error("seed drawn despite failed start")
	}
}

func TestStartBroadcastsAndTransitions(t *testing.T) {
	h, sender, _ := newTestHost(t)
	a, b := addr("10.0.0.2:5000"), addr("10.0.0.3:6000")
	joinFrom(t, h, a, "alice")
	joinFrom(t, h, b, "bob")
	h.HandleMessage(a, wire.GuestReady{Ready: true})
	h.HandleMessage(b, wire.GuestReady{Ready: true})

	start, err := h.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.State() != Starting {
		t.Errorf("state = %s, want starting", h.State())
	}
	if start.PlayerCount != 3 {
		t.Errorf("player count = %d, want 3", start.PlayerCount)
	}
	if got := len(start.Players); got != 4 {
		t.Errorf("players list length = %d, want max_players 4", got)
	}

	// Host slot with derived sync port.
	host := start.Players[0]
	if !host.Active || host.Handle != HostHandle {
		t.Errorf("slot 0 = %+v, want active host", host)
	}
	if host.SyncPort != 7771 {
		t.Errorf("host sync port = %d, want 7771", host.SyncPort)
	}
	if start.Players[1].SyncPort != 5001 || start.Players[2].SyncPort != 6001 {
		t.Errorf("guest sync ports = %d, %d, want 5001, 6001",
			start.Players[1].SyncPort, start.Players[2].SyncPort)
	}
	if start.Players[3].Active {
		t.Error("slot 3 should be an inactive placeholder")
	}

	seed, seeded := h.Seed()
	if !seeded {
		t.Fatal("seed not recorded")
	}
	if seed != start.RandomSeed {
		t.Errorf("recorded seed %016x != broadcast seed %016x", seed, start.RandomSeed)
	}

	// Every guest got the broadcast.
	if got := sender.countType(wire.TypeSessionStart); got != 2 {
		t.Errorf("session starts sent = %d, want 2", got)
	}

	h.MarkReady()
	if h.State() != Ready {
		t.Errorf("state after MarkReady = %s, want ready", h.State())
	}
}

func TestLobbyStateShape(t *testing.T) {
	h, _, _ := newTestHost(t)
	joinFrom(t, h, addr("10.0.0.2:5000"), "alice")

	lobby := h.LobbyState()
	if got := len(lobby.Players); got != 4 {
		t.Fatalf("roster length = %d, want 4", got)
	}
	if lobby.HostHandle != HostHandle || lobby.MaxPlayers != 4 {
		t.Errorf("lobby meta = %+v", lobby)
	}

	if !lobby.Players[0].Active || !lobby.Players[0].Ready {
		t.Error("host slot must be active and ready")
	}
	if !lobby.Players[1].Active || lobby.Players[1].Info.Name != "alice" {
		t.Errorf("guest slot = %+v, want active alice", lobby.Players[1])
	}
	for _, slot := range lobby.Players[2:] {
		if slot.Active || slot.Info != nil || slot.Addr != nil {
			t.Errorf("placeholder slot = %+v, want empty", slot)
		}
	}
}

func TestRemovePlayerKeepsMapsInSync(t *testing.T) {
	h, _, _ := newTestHost(t)
	a := addr("10.0.0.2:5000")
	handle := joinFrom(t, h, a, "alice")

	info, ok := h.RemovePlayer(handle)
	if !ok {
		t.Fatal("RemovePlayer returned false")
	}
	if info.Name != "alice" {
		t.Errorf("removed info name = %q, want alice", info.Name)
	}
	if h.State() != Listening {
		t.Errorf("state after last removal = %s, want listening", h.State())
	}

	// The address must be free for a fresh join with a new handle.
	newHandle := joinFrom(t, h, a, "alice")
	if newHandle == handle {
		t.Errorf("handle %d reused after removal", handle)
	}

	if _, ok := h.RemovePlayer(99); ok {
		t.Error("removing unknown handle reported success")
	}
}

func TestIdleSince(t *testing.T) {
	h, _, clock := newTestHost(t)
	a, b := addr("10.0.0.2:5000"), addr("10.0.0.3:5000")
	ha := joinFrom(t, h, a, "alice")
	joinFrom(t, h, b, "bob")

	clock.Advance(3 * time.Second)
	// Bob pings, refreshing last_seen; Alice stays silent.
	h.HandleMessage(b, wire.Ping{})
	clock.Advance(3 * time.Second)

	idle := h.IdleSince(5 * time.Second)
	if len(idle) != 1 || idle[0] != ha {
		t.Errorf("idle = %v, want [%d]", idle, ha)
	}

	if got := h.IdleSince(time.Minute); got != nil {
		t.Errorf("idle with long timeout = %v, want none", got)
	}
}

func TestUnknownMessageDropped(t *testing.T) {
	h, _, _ := newTestHost(t)
	if ev := h.HandleMessage(addr("10.0.0.2:5000"), wire.SessionStart{}); ev != nil {
		t.Errorf("got event %T, want nil", ev)
	}
}

func TestSendFailureDoesNotAbort(t *testing.T) {
	sender := &fakeSender{err: errors.New("network unreachable")}
	h, err := NewHost(testConfig(), wire.DefaultPlayerInfo(), addr("203.0.113.1:7770"), sender)
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}

	ev := h.HandleMessage(addr("10.0.0.2:5000"), wire.JoinRequest{
		Console:  wire.ConsoleZX,
		ROMHash:  0xDEADBEEFCAFEF00D,
		TickRate: wire.Tick60,
		Info:     wire.PlayerInfo{Name: "alice"},
	})
	// The accept datagram was lost but the player is still admitted;
	// their retry will fetch the handle.
	if _, ok := ev.(PlayerJoined); !ok {
		t.Errorf("got event %T, want PlayerJoined", ev)
	}
	if h.GuestCount() != 1 {
		t.Errorf("guest count = %d, want 1", h.GuestCount())
	}
}
