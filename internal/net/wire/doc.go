// Package wire implements the FLHS (Framelink Handshake) wire codec.
//
// Every datagram carries exactly one framed message:
//
//	[FLNK][version:u16][tag:u8][payload...]
//
// All integers are little-endian. Strings are u16-length-prefixed,
// opaque blobs are u32-length-prefixed, lists are u8-count-prefixed
// and optional fields sit behind a u8 presence flag. Fixed messages
// (Ping, Pong) are exactly 7 bytes.
//
// Decode is total and side-effect-free; Encode never fails. The codec
// guarantees Decode(Encode(m)) == m for every constructible message,
// which is what lets peers compare handshake payloads byte for byte.
package wire
