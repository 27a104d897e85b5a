package session

import "github.com/framelink/framelink-go/internal/net/wire"

// Event is the closed set of notifications the host state machine emits.
// Events are delivered synchronously from HandleMessage; a nil Event
// means the message was absorbed without anything the embedding
// application needs to react to.
type Event interface {
	isEvent()
}

// PlayerJoined fires once per accepted join. Idempotent re-joins from a
// known address never fire it a second time.
type PlayerJoined struct {
	Handle uint8
	Info   wire.PlayerInfo
}

// PlayerReadyChanged fires when a guest's ready flag actually flips.
type PlayerReadyChanged struct {
	Handle uint8
	Ready  bool
}

// AllReady fires when every connected guest is ready and at least two
// guests are present. The host still has to call Start explicitly.
type AllReady struct{}

// SessionError surfaces a recoverable protocol error, such as a join
// that failed compatibility validation.
type SessionError struct {
	Err *ProtocolError
}

func (PlayerJoined) isEvent()       {}
func (PlayerReadyChanged) isEvent() {}
func (AllReady) isEvent()           {}
func (SessionError) isEvent()       {}

// GuestEvent is the closed set of notifications the guest state machine
// emits.
type GuestEvent interface {
	isGuestEvent()
}

// Accepted fires when the host grants the join and assigns a handle.
type Accepted struct {
	Handle uint8
	Lobby  wire.LobbyState
}

// Rejected fires when the host turns the join away.
type Rejected struct {
	Reason  wire.RejectReason
	Message string
}

// LobbyUpdated mirrors a roster change broadcast by the host.
type LobbyUpdated struct {
	Lobby wire.LobbyState
}

// SessionStarting fires when the host's SessionStart arrives; hole
// punching toward the other guests begins immediately after.
type SessionStarting struct {
	Start wire.SessionStart
}

// PunchComplete fires once every required peer acknowledged a punch and
// the guest is ready for the rollback engine.
type PunchComplete struct{}

// GuestFailed is terminal: the join timed out, was rejected, or
// punching never completed.
type GuestFailed struct {
	Err *ProtocolError
}

func (Accepted) isGuestEvent()        {}
func (Rejected) isGuestEvent()        {}
func (LobbyUpdated) isGuestEvent()    {}
func (SessionStarting) isGuestEvent() {}
func (PunchComplete) isGuestEvent()   {}
func (GuestFailed) isGuestEvent()     {}
