// Package udp is the datagram transport the daemon feeds session state
// machines from.
//
// A Socket wraps a non-blocking UDP socket with protocol framing: outbound
// messages are encoded on send, inbound datagrams are decoded and queued
// per poll. Delivery is best-effort; the state machines own all retry and
// timeout behavior. Join requests are rate limited per source address so a
// misbehaving peer cannot flood the lobby.
package udp
