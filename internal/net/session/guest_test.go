package session

import (
	"errors"
	"testing"

	"github.com/framelink/framelink-go/internal/net/wire"
)

var hostAddr = addr("203.0.113.1:7770")

func newTestGuest(t *testing.T) (*Guest, *fakeSender, *fakeClock) {
	t.Helper()
	sender := &fakeSender{}
	clock := newFakeClock()
	g, err := NewGuest(testConfig(), wire.PlayerInfo{Name: "alice"}, hostAddr, "10.0.0.2:5000", sender,
		WithClock(clock))
	if err != nil {
		t.Fatalf("NewGuest: %v", err)
	}
	return g, sender, clock
}

func joinedGuest(t *testing.T, handle uint8) (*Guest, *fakeSender, *fakeClock) {
	t.Helper()
	g, sender, clock := newTestGuest(t)
	if err := g.Join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	ev := g.HandleMessage(hostAddr, wire.JoinAccept{PlayerHandle: handle})
	if _, ok := ev.(Accepted); !ok {
		t.Fatalf("accept event = %T, want Accepted", ev)
	}
	return g, sender, clock
}

// startFor builds a SessionStart naming us plus the given other guests.
func startFor(ourHandle uint8, guests ...wire.PlayerConnectionInfo) wire.SessionStart {
	players := []wire.PlayerConnectionInfo{
		{Handle: HostHandle, Active: true, Addr: hostAddr.String(), SyncPort: 7771},
		{Handle: ourHandle, Active: true, Addr: "10.0.0.2:5000", SyncPort: 5001},
	}
	players = append(players, guests...)
	return wire.SessionStart{
		LocalPlayerHandle: ourHandle,
		RandomSeed:        0x123456789ABCDEF0,
		TickRate:          wire.Tick60,
		Players:           players,
		PlayerCount:       uint8(len(players)),
		Network:           wire.DefaultNetworkConfig(),
	}
}

func TestGuestJoinFlow(t *testing.T) {
	g, sender, _ := newTestGuest(t)

	if g.State() != GuestIdle {
		t.Fatalf("initial state = %s, want idle", g.State())
	}
	if err := g.Join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if g.State() != GuestJoining {
		t.Errorf("state = %s, want joining", g.State())
	}
	req, ok := sender.lastTo(hostAddr).(wire.JoinRequest)
	if !ok {
		t.Fatalf("sent = %T, want JoinRequest", sender.lastTo(hostAddr))
	}
	if req.Info.Name != "alice" || req.ROMHash != 0xDEADBEEFCAFEF00D {
		t.Errorf("join request = %+v", req)
	}

	if err := g.Join(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("second Join = %v, want ErrInvalidConfig", err)
	}

	ev := g.HandleMessage(hostAddr, wire.JoinAccept{PlayerHandle: 2})
	accepted, ok := ev.(Accepted)
	if !ok {
		t.Fatalf("got event %T, want Accepted", ev)
	}
	if accepted.Handle != 2 {
		t.Errorf("handle = %d, want 2", accepted.Handle)
	}
	if g.State() != GuestLobby {
		t.Errorf("state = %s, want lobby", g.State())
	}
	if h, ok := g.Handle(); !ok || h != 2 {
		t.Errorf("Handle() = %d, %v, want 2, true", h, ok)
	}

	// Duplicate accept from a join retry is absorbed.
	if ev := g.HandleMessage(hostAddr, wire.JoinAccept{PlayerHandle: 2}); ev != nil {
		t.Errorf("duplicate accept event = %T, want nil", ev)
	}
}

func TestGuestIgnoresLobbyTrafficFromNonHost(t *testing.T) {
	g, _, _ := newTestGuest(t)
	g.Join()

	stranger := addr("10.6.6.6:6666")
	if ev := g.HandleMessage(stranger, wire.JoinAccept{PlayerHandle: 5}); ev != nil {
		t.Errorf("accept from stranger = %T, want nil", ev)
	}
	if ev := g.HandleMessage(stranger, wire.JoinReject{Reason: wire.RejectLobbyFull}); ev != nil {
		t.Errorf("reject from stranger = %T, want nil", ev)
	}
	if g.State() != GuestJoining {
		t.Errorf("state = %s, want joining", g.State())
	}
}

func TestGuestRejectedIsTerminal(t *testing.T) {
	g, _, _ := newTestGuest(t)
	g.Join()

	ev := g.HandleMessage(hostAddr, wire.JoinReject{
		Reason:  wire.RejectROMHashMismatch,
		Message: "different game version",
	})
	rejected, ok := ev.(Rejected)
	if !ok {
		t.Fatalf("got event %T, want Rejected", ev)
	}
	if rejected.Reason != wire.RejectROMHashMismatch {
		t.Errorf("reason = %s, want rom_hash_mismatch", rejected.Reason)
	}
	if g.State() != GuestFailedState {
		t.Errorf("state = %s, want failed", g.State())
	}
}

func TestGuestJoinResendAndTimeout(t *testing.T) {
	g, sender, clock := newTestGuest(t)
	g.Join()

	clock.Advance(joinResendInterval)
	if ev := g.Tick(); ev != nil {
		t.Fatalf("tick event = %T, want nil", ev)
	}
	if got := sender.countType(wire.TypeJoinRequest); got != 2 {
		t.Errorf("join requests sent = %d, want 2", got)
	}

	clock.Advance(joinTimeout)
	ev := g.Tick()
	failed, ok := ev.(GuestFailed)
	if !ok {
		t.Fatalf("got event %T, want GuestFailed", ev)
	}
	if !errors.Is(failed.Err, ErrJoinTimeout) {
		t.Errorf("got %v, want ErrJoinTimeout", failed.Err)
	}
	if g.State() != GuestFailedState {
		t.Errorf("state = %s, want failed", g.State())
	}
}

func TestGuestSetReady(t *testing.T) {
	g, sender, _ := joinedGuest(t, 1)

	if err := g.SetReady(true); err != nil {
		t.Fatalf("SetReady: %v", err)
	}
	ready, ok := sender.lastTo(hostAddr).(wire.GuestReady)
	if !ok {
		t.Fatalf("sent = %T, want GuestReady", sender.lastTo(hostAddr))
	}
	if !ready.Ready {
		t.Error("ready flag = false, want true")
	}
}

func TestGuestSetReadyOutsideLobby(t *testing.T) {
	g, _, _ := newTestGuest(t)
	if err := g.SetReady(true); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("got %v, want ErrInvalidConfig", err)
	}
}

func TestGuestTwoPlayerStartSkipsPunching(t *testing.T) {
	g, _, _ := joinedGuest(t, 1)

	// Only the host and us: nothing to punch.
	ev := g.HandleMessage(hostAddr, startFor(1))
	if _, ok := ev.(PunchComplete); !ok {
		t.Fatalf("got event %T, want PunchComplete", ev)
	}
	if g.State() != GuestReadyState {
		t.Errorf("state = %s, want ready", g.State())
	}
	if _, ok := g.SessionStart(); !ok {
		t.Error("session start not retained")
	}
}

func TestGuestPunchesOtherGuests(t *testing.T) {
	g, sender, _ := joinedGuest(t, 1)
	peer := wire.PlayerConnectionInfo{Handle: 2, Active: true, Addr: "10.0.0.3:6000", SyncPort: 6001}

	ev := g.HandleMessage(hostAddr, startFor(1, peer))
	if _, ok := ev.(SessionStarting); !ok {
		t.Fatalf("got event %T, want SessionStarting", ev)
	}
	if g.State() != GuestPunching {
		t.Fatalf("state = %s, want punching", g.State())
	}

	peerAddr := addr(peer.Addr)
	hello, ok := sender.lastTo(peerAddr).(wire.PunchHello)
	if !ok {
		t.Fatalf("sent to peer = %T, want PunchHello", sender.lastTo(peerAddr))
	}
	if hello.SenderHandle != 1 {
		t.Errorf("hello sender = %d, want 1", hello.SenderHandle)
	}

	// Ack with a wrong nonce is ignored.
	if ev := g.HandleMessage(peerAddr, wire.PunchAck{SenderHandle: 2, Nonce: hello.Nonce + 1}); ev != nil {
		t.Errorf("stale ack event = %T, want nil", ev)
	}
	if g.State() != GuestPunching {
		t.Errorf("state after stale ack = %s, want punching", g.State())
	}

	ev = g.HandleMessage(peerAddr, wire.PunchAck{SenderHandle: 2, Nonce: hello.Nonce})
	if _, ok := ev.(PunchComplete); !ok {
		t.Fatalf("got event %T, want PunchComplete", ev)
	}
	if g.State() != GuestReadyState {
		t.Errorf("state = %s, want ready", g.State())
	}
}

func TestGuestAnswersPunchHello(t *testing.T) {
	g, sender, _ := joinedGuest(t, 1)
	peer := wire.PlayerConnectionInfo{Handle: 2, Active: true, Addr: "10.0.0.3:6000", SyncPort: 6001}
	g.HandleMessage(hostAddr, startFor(1, peer))

	peerAddr := addr(peer.Addr)
	ev := g.HandleMessage(peerAddr, wire.PunchHello{SenderHandle: 2, Nonce: 777})
	// The peer's hello both proves the path and completes our only punch.
	if _, ok := ev.(PunchComplete); !ok {
		t.Fatalf("got event %T, want PunchComplete", ev)
	}

	ack, ok := sender.lastTo(peerAddr).(wire.PunchAck)
	if !ok {
		t.Fatalf("reply = %T, want PunchAck", sender.lastTo(peerAddr))
	}
	if ack.Nonce != 777 {
		t.Errorf("ack nonce = %d, want echoed 777", ack.Nonce)
	}
	if ack.SenderHandle != 1 {
		t.Errorf("ack sender = %d, want 1", ack.SenderHandle)
	}
}

func TestGuestPunchHelloFromUnknownPeerIgnored(t *testing.T) {
	g, _, _ := joinedGuest(t, 1)
	peer := wire.PlayerConnectionInfo{Handle: 2, Active: true, Addr: "10.0.0.3:6000", SyncPort: 6001}
	g.HandleMessage(hostAddr, startFor(1, peer))

	if ev := g.HandleMessage(addr("10.6.6.6:6666"), wire.PunchHello{SenderHandle: 9, Nonce: 1}); ev != nil {
		t.Errorf("got event %T, want nil", ev)
	}
	if g.State() != GuestPunching {
		t.Errorf("state = %s, want punching", g.State())
	}
}

func TestGuestPunchRetriesAndTimeout(t *testing.T) {
	g, sender, clock := joinedGuest(t, 1)
	peer := wire.PlayerConnectionInfo{Handle: 2, Active: true, Addr: "10.0.0.3:6000", SyncPort: 6001}
	g.HandleMessage(hostAddr, startFor(1, peer))

	before := sender.countType(wire.TypePunchHello)
	clock.Advance(punchRetryInterval)
	g.Tick()
	if got := sender.countType(wire.TypePunchHello); got != before+1 {
		t.Errorf("punch hellos after retry = %d, want %d", got, before+1)
	}

	clock.Advance(punchTimeout)
	ev := g.Tick()
	failed, ok := ev.(GuestFailed)
	if !ok {
		t.Fatalf("got event %T, want GuestFailed", ev)
	}
	if !errors.Is(failed.Err, ErrPunchTimeout) {
		t.Errorf("got %v, want ErrPunchTimeout", failed.Err)
	}
}

func TestGuestAnswersPing(t *testing.T) {
	g, sender, _ := joinedGuest(t, 1)
	if ev := g.HandleMessage(hostAddr, wire.Ping{}); ev != nil {
		t.Errorf("ping event = %T, want nil", ev)
	}
	if _, ok := sender.lastTo(hostAddr).(wire.Pong); !ok {
		t.Errorf("reply = %T, want Pong", sender.lastTo(hostAddr))
	}
}

func TestGuestLobbyUpdate(t *testing.T) {
	g, _, _ := joinedGuest(t, 1)

	lobby := wire.LobbyState{MaxPlayers: 4, Players: make([]wire.PlayerSlot, 4)}
	ev := g.HandleMessage(hostAddr, wire.LobbyUpdate{Lobby: lobby})
	updated, ok := ev.(LobbyUpdated)
	if !ok {
		t.Fatalf("got event %T, want LobbyUpdated", ev)
	}
	if updated.Lobby.MaxPlayers != 4 {
		t.Errorf("lobby max = %d, want 4", updated.Lobby.MaxPlayers)
	}
	if g.Lobby().MaxPlayers != 4 {
		t.Errorf("retained lobby max = %d, want 4", g.Lobby().MaxPlayers)
	}
}
