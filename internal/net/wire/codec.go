package wire

import "encoding/binary"

// Frame layout constants.
const (
	// Version is the current FLHS protocol version.
	Version uint16 = 1

	// HeaderSize is magic (4) + version (2) + tag (1).
	HeaderSize = 7
)

// Magic identifies FLHS frames.
var Magic = [4]byte{'F', 'L', 'N', 'K'}

// Encode serializes a message into a freshly allocated frame.
// Encoding never fails: every constructible Message has a frame.
func Encode(m Message) []byte {
	return AppendEncode(make([]byte, 0, HeaderSize+encodedSizeHint(m)), m)
}

// AppendEncode appends the framed message to dst and returns the
// extended slice, for callers that reuse send buffers.
func AppendEncode(dst []byte, m Message) []byte {
	dst = append(dst, Magic[:]...)
	dst = binary.LittleEndian.AppendUint16(dst, Version)
	dst = append(dst, uint8(m.Type()))

	switch v := m.(type) {
	case JoinRequest:
		dst = append(dst, uint8(v.Console))
		dst = binary.LittleEndian.AppendUint64(dst, v.ROMHash)
		dst = append(dst, uint8(v.TickRate), v.MaxPlayers)
		dst = appendPlayerInfo(dst, v.Info)
		dst = appendString(dst, v.LocalAddr)
		dst = appendBlob(dst, v.ExtraData)
	case JoinAccept:
		dst = append(dst, v.PlayerHandle)
		dst = appendLobbyState(dst, v.Lobby)
	case JoinReject:
		dst = append(dst, uint8(v.Reason))
		dst = appendOptionalString(dst, v.Message)
	case GuestReady:
		dst = appendBool(dst, v.Ready)
	case Ping, Pong:
		// Header only.
	case LobbyUpdate:
		dst = appendLobbyState(dst, v.Lobby)
	case SessionStart:
		dst = append(dst, v.LocalPlayerHandle)
		dst = binary.LittleEndian.AppendUint64(dst, v.RandomSeed)
		dst = binary.LittleEndian.AppendUint32(dst, v.StartFrame)
		dst = append(dst, uint8(v.TickRate))
		dst = append(dst, uint8(len(v.Players)))
		for _, p := range v.Players {
			dst = appendConnectionInfo(dst, p)
		}
		dst = append(dst, v.PlayerCount)
		dst = appendNetworkConfig(dst, v.Network)
		dst = appendOptionalSaveConfig(dst, v.Save)
		dst = appendBlob(dst, v.ExtraData)
	case PunchHello:
		dst = append(dst, v.SenderHandle)
		dst = binary.LittleEndian.AppendUint32(dst, v.Nonce)
	case PunchAck:
		dst = append(dst, v.SenderHandle)
		dst = binary.LittleEndian.AppendUint32(dst, v.Nonce)
	}

	return dst
}

// Decode parses one framed message. It validates the header before
// touching any payload bytes, so incompatible peers are rejected even
// when their payload encoding is unknown.
func Decode(b []byte) (Message, error) {
	if len(b) < HeaderSize {
		return nil, ErrTooShort
	}
	if [4]byte(b[0:4]) != Magic {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint16(b[4:6]); v != Version {
		return nil, &VersionMismatchError{Expected: Version, Got: v}
	}

	tag := Type(b[6])
	r := &reader{buf: b[HeaderSize:], tag: tag}

	var msg Message
	switch tag {
	case TypeJoinRequest:
		msg = JoinRequest{
			Console:    ConsoleType(r.u8("console")),
			ROMHash:    r.u64("rom_hash"),
			TickRate:   TickRate(r.u8("tick_rate")),
			MaxPlayers: r.u8("max_players"),
			Info:       r.playerInfo("player_info"),
			LocalAddr:  r.str("local_addr"),
			ExtraData:  r.blob("extra_data"),
		}
	case TypeJoinAccept:
		msg = JoinAccept{
			PlayerHandle: r.u8("player_handle"),
			Lobby:        r.lobbyState(),
		}
	case TypeJoinReject:
		msg = JoinReject{
			Reason:  RejectReason(r.u8("reason")),
			Message: r.optionalString("message"),
		}
	case TypeGuestReady:
		msg = GuestReady{Ready: r.boolean("ready")}
	case TypePing:
		msg = Ping{}
	case TypePong:
		msg = Pong{}
	case TypeLobbyUpdate:
		msg = LobbyUpdate{Lobby: r.lobbyState()}
	case TypeSessionStart:
		s := SessionStart{
			LocalPlayerHandle: r.u8("local_player_handle"),
			RandomSeed:        r.u64("random_seed"),
			StartFrame:        r.u32("start_frame"),
			TickRate:          TickRate(r.u8("tick_rate")),
		}
		n := int(r.u8("players.count"))
		for i := 0; i < n && r.bad == ""; i++ {
			s.Players = append(s.Players, r.connectionInfo())
		}
		s.PlayerCount = r.u8("player_count")
		s.Network = r.networkConfig()
		s.Save = r.optionalSaveConfig()
		s.ExtraData = r.blob("extra_data")
		msg = s
	case TypePunchHello:
		msg = PunchHello{
			SenderHandle: r.u8("sender_handle"),
			Nonce:        r.u32("nonce"),
		}
	case TypePunchAck:
		msg = PunchAck{
			SenderHandle: r.u8("sender_handle"),
			Nonce:        r.u32("nonce"),
		}
	default:
		return nil, &PayloadError{Tag: tag, Field: "type"}
	}

	if r.bad != "" {
		return nil, &PayloadError{Tag: tag, Field: r.bad}
	}
	return msg, nil
}

// encodedSizeHint guesses a frame's payload size to seed the allocation.
// Only needs to be close; append grows past it when wrong.
func encodedSizeHint(m Message) int {
	switch v := m.(type) {
	case JoinRequest:
		return 32 + len(v.Info.Name) + len(v.LocalAddr) + len(v.ExtraData)
	case JoinAccept:
		return 4 + lobbySizeHint(v.Lobby)
	case LobbyUpdate:
		return lobbySizeHint(v.Lobby)
	case SessionStart:
		n := 40 + len(v.ExtraData)
		for _, p := range v.Players {
			n += 16 + len(p.Info.Name) + len(p.Addr)
		}
		if v.Save != nil {
			n += 8 + len(v.Save.SynchronizedSave)
		}
		return n
	default:
		return 16
	}
}

func lobbySizeHint(l LobbyState) int {
	n := 4
	for _, s := range l.Players {
		n += 8
		if s.Info != nil {
			n += 8 + len(s.Info.Name)
		}
		if s.Addr != nil {
			n += 2 + len(*s.Addr)
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Composite field encoding
// ---------------------------------------------------------------------------

func appendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func appendString(dst []byte, s string) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(s)))
	return append(dst, s...)
}

func appendBlob(dst []byte, b []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

func appendOptionalString(dst []byte, s string) []byte {
	if s == "" {
		return append(dst, 0)
	}
	dst = append(dst, 1)
	return appendString(dst, s)
}

func appendPlayerInfo(dst []byte, p PlayerInfo) []byte {
	dst = appendString(dst, p.Name)
	dst = binary.LittleEndian.AppendUint16(dst, p.AvatarID)
	return append(dst, p.Color[0], p.Color[1], p.Color[2])
}

func appendLobbyState(dst []byte, l LobbyState) []byte {
	dst = append(dst, uint8(len(l.Players)))
	for _, s := range l.Players {
		dst = append(dst, s.Handle)
		dst = appendBool(dst, s.Active)
		if s.Info != nil {
			dst = append(dst, 1)
			dst = appendPlayerInfo(dst, *s.Info)
		} else {
			dst = append(dst, 0)
		}
		dst = appendBool(dst, s.Ready)
		if s.Addr != nil {
			dst = append(dst, 1)
			dst = appendString(dst, *s.Addr)
		} else {
			dst = append(dst, 0)
		}
	}
	return append(dst, l.MaxPlayers, l.HostHandle)
}

func appendConnectionInfo(dst []byte, p PlayerConnectionInfo) []byte {
	dst = append(dst, p.Handle)
	dst = appendBool(dst, p.Active)
	dst = appendPlayerInfo(dst, p.Info)
	dst = appendString(dst, p.Addr)
	return binary.LittleEndian.AppendUint16(dst, p.SyncPort)
}

func appendNetworkConfig(dst []byte, c NetworkConfig) []byte {
	dst = append(dst, c.InputDelay, c.MaxRollback)
	dst = binary.LittleEndian.AppendUint32(dst, c.DisconnectTimeoutMSec)
	return appendBool(dst, c.DesyncDetection)
}

func appendOptionalSaveConfig(dst []byte, c *SaveConfig) []byte {
	if c == nil {
		return append(dst, 0)
	}
	dst = append(dst, 1, c.SlotIndex, uint8(c.Mode))
	return appendBlob(dst, c.SynchronizedSave)
}

// ---------------------------------------------------------------------------
// Payload reader
// ---------------------------------------------------------------------------

// reader walks a payload with a sticky error: the first field that runs
// out of bytes is recorded and every later read returns a zero value.
// This keeps the per-variant decoders linear and branch-free.
type reader struct {
	buf []byte
	off int
	tag Type
	bad string
}

func (r *reader) take(n int, field string) []byte {
	if r.bad != "" {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.bad = field
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8(field string) uint8 {
	b := r.take(1, field)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16(field string) uint16 {
	b := r.take(2, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32(field string) uint32 {
	b := r.take(4, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64(field string) uint64 {
	b := r.take(8, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) boolean(field string) bool {
	return r.u8(field) != 0
}

func (r *reader) str(field string) string {
	n := int(r.u16(field))
	if n == 0 {
		return ""
	}
	b := r.take(n, field)
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *reader) blob(field string) []byte {
	n := int(r.u32(field))
	if n == 0 {
		return nil
	}
	b := r.take(n, field)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *reader) optionalString(field string) string {
	if !r.boolean(field) {
		return ""
	}
	return r.str(field)
}

func (r *reader) playerInfo(field string) PlayerInfo {
	p := PlayerInfo{
		Name:     r.str(field + ".name"),
		AvatarID: r.u16(field + ".avatar_id"),
	}
	c := r.take(3, field+".color")
	if c != nil {
		copy(p.Color[:], c)
	}
	return p
}

func (r *reader) lobbyState() LobbyState {
	var l LobbyState
	n := int(r.u8("lobby.count"))
	for i := 0; i < n && r.bad == ""; i++ {
		s := PlayerSlot{
			Handle: r.u8("lobby.slot.handle"),
			Active: r.boolean("lobby.slot.active"),
		}
		if r.boolean("lobby.slot.has_info") {
			info := r.playerInfo("lobby.slot.info")
			s.Info = &info
		}
		s.Ready = r.boolean("lobby.slot.ready")
		if r.boolean("lobby.slot.has_addr") {
			addr := r.str("lobby.slot.addr")
			s.Addr = &addr
		}
		l.Players = append(l.Players, s)
	}
	l.MaxPlayers = r.u8("lobby.max_players")
	l.HostHandle = r.u8("lobby.host_handle")
	return l
}

func (r *reader) connectionInfo() PlayerConnectionInfo {
	return PlayerConnectionInfo{
		Handle:   r.u8("players.handle"),
		Active:   r.boolean("players.active"),
		Info:     r.playerInfo("players.info"),
		Addr:     r.str("players.addr"),
		SyncPort: r.u16("players.sync_port"),
	}
}

func (r *reader) networkConfig() NetworkConfig {
	return NetworkConfig{
		InputDelay:            r.u8("network.input_delay"),
		MaxRollback:           r.u8("network.max_rollback"),
		DisconnectTimeoutMSec: r.u32("network.disconnect_timeout_ms"),
		DesyncDetection:       r.boolean("network.desync_detection"),
	}
}

func (r *reader) optionalSaveConfig() *SaveConfig {
	if !r.boolean("save.present") {
		return nil
	}
	return &SaveConfig{
		SlotIndex:        r.u8("save.slot_index"),
		Mode:             SaveMode(r.u8("save.mode")),
		SynchronizedSave: r.blob("save.synchronized_save"),
	}
}
