package wire

import "fmt"

// Type is the one-byte message tag in the frame header.
type Type uint8

const (
	TypeJoinRequest Type = iota + 1
	TypeJoinAccept
	TypeJoinReject
	TypeGuestReady
	TypePing
	TypePong
	TypeLobbyUpdate
	TypeSessionStart
	TypePunchHello
	TypePunchAck
)

// String returns the tag name used in logs and metrics labels.
func (t Type) String() string {
	switch t {
	case TypeJoinRequest:
		return "join_request"
	case TypeJoinAccept:
		return "join_accept"
	case TypeJoinReject:
		return "join_reject"
	case TypeGuestReady:
		return "guest_ready"
	case TypePing:
		return "ping"
	case TypePong:
		return "pong"
	case TypeLobbyUpdate:
		return "lobby_update"
	case TypeSessionStart:
		return "session_start"
	case TypePunchHello:
		return "punch_hello"
	case TypePunchAck:
		return "punch_ack"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Message is the closed set of FLHS protocol messages. The set is sealed:
// only the ten variants below implement it, so dispatch can type-switch
// exhaustively.
type Message interface {
	Type() Type
	isMessage()
}

// JoinRequest asks the host for a lobby slot. It carries everything the
// host needs for compatibility validation and roster display.
type JoinRequest struct {
	Console    ConsoleType
	ROMHash    uint64
	TickRate   TickRate
	MaxPlayers uint8
	Info       PlayerInfo
	// LocalAddr is the guest's own address for later peer connections.
	LocalAddr string
	// ExtraData is reserved for protocol extensions; unknown content is
	// carried opaquely and ignored.
	ExtraData []byte
}

// JoinAccept confirms a join and reports the assigned handle.
type JoinAccept struct {
	PlayerHandle uint8
	Lobby        LobbyState
}

// JoinReject turns a join away with a typed reason.
type JoinReject struct {
	Reason RejectReason
	// Message optionally carries a human-readable explanation.
	Message string
}

// GuestReady toggles the sender's ready flag.
type GuestReady struct {
	Ready bool
}

// Ping is a keepalive probe. The frame has no payload.
type Ping struct{}

// Pong answers a Ping. The frame has no payload.
type Pong struct{}

// LobbyUpdate broadcasts the roster after any lobby change.
type LobbyUpdate struct {
	Lobby LobbyState
}

// SessionStart hands the lobby over to the rollback engine. Every field
// that feeds simulation determinism (seed, tick rate, start frame) must
// be byte-identical on all peers.
type SessionStart struct {
	// LocalPlayerHandle is which handle the receiving process controls.
	LocalPlayerHandle uint8
	RandomSeed        uint64
	StartFrame        uint32
	TickRate          TickRate
	// Players always has MaxPlayers entries; unfilled handles are
	// inactive placeholders.
	Players     []PlayerConnectionInfo
	PlayerCount uint8
	Network     NetworkConfig
	Save        *SaveConfig
	ExtraData   []byte
}

// PunchHello opens a NAT hole toward a peer.
type PunchHello struct {
	SenderHandle uint8
	Nonce        uint32
}

// PunchAck confirms a PunchHello, echoing its nonce.
type PunchAck struct {
	SenderHandle uint8
	Nonce        uint32
}

func (JoinRequest) Type() Type  { return TypeJoinRequest }
func (JoinAccept) Type() Type   { return TypeJoinAccept }
func (JoinReject) Type() Type   { return TypeJoinReject }
func (GuestReady) Type() Type   { return TypeGuestReady }
func (Ping) Type() Type         { return TypePing }
func (Pong) Type() Type         { return TypePong }
func (LobbyUpdate) Type() Type  { return TypeLobbyUpdate }
func (SessionStart) Type() Type { return TypeSessionStart }
func (PunchHello) Type() Type   { return TypePunchHello }
func (PunchAck) Type() Type     { return TypePunchAck }

func (JoinRequest) isMessage()  {}
func (JoinAccept) isMessage()   {}
func (JoinReject) isMessage()   {}
func (GuestReady) isMessage()   {}
func (Ping) isMessage()         {}
func (Pong) isMessage()         {}
func (LobbyUpdate) isMessage()  {}
func (SessionStart) isMessage() {}
func (PunchHello) isMessage()   {}
func (PunchAck) isMessage()     {}
