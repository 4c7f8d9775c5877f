// Package packet implements the fixed 12-byte wire header, the
// PacketEngine forwarding/delivery state machine, and end-to-end
// image chunking/reassembly, per spec §3 and §4.5.
package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/orbitmesh/satnode/internal/meshnet"
)

// Message types, per spec §3.
const (
	TypeData       uint8 = 1
	TypeImageChunk uint8 = 2
	TypeControl    uint8 = 3 // reserved
)

// HeaderSize is the fixed wire header length in bytes.
const HeaderSize = 12

// Packet is the on-wire unit of the mesh: a 12-byte header in network
// byte order followed by an opaque (ciphertext, on the wire) payload.
// The header carries TTL in its last two bytes, so only the low 16
// bits of TTL travel on the wire.
type Packet struct {
	Version uint8
	MsgType uint8
	Src     meshnet.PeerId
	Dst     meshnet.PeerId
	Seq     uint32
	TTL     uint32
	Payload []byte
}

// EncodeHeader writes the 12-byte header for p in network byte order.
func EncodeHeader(p Packet) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = p.Version
	buf[1] = p.MsgType
	binary.BigEndian.PutUint16(buf[2:4], uint16(p.Src))
	binary.BigEndian.PutUint16(buf[4:6], uint16(p.Dst))
	binary.BigEndian.PutUint32(buf[6:10], p.Seq)
	binary.BigEndian.PutUint16(buf[10:12], uint16(p.TTL))
	return buf
}

// DecodeHeader parses the first 12 bytes of buf into a Packet with an
// empty Payload. Returns an error if buf is shorter than HeaderSize,
// per spec §4.5 ("parse header (fail if < 12 bytes)").
func DecodeHeader(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: header too short (%d bytes)", meshnet.ErrParseError, len(buf))
	}
	return Packet{
		Version: buf[0],
		MsgType: buf[1],
		Src:     meshnet.PeerId(binary.BigEndian.Uint16(buf[2:4])),
		Dst:     meshnet.PeerId(binary.BigEndian.Uint16(buf[4:6])),
		Seq:     binary.BigEndian.Uint32(buf[6:10]),
		TTL:     uint32(binary.BigEndian.Uint16(buf[10:12])),
	}, nil
}

// MarshalWire serializes header || payload. The header is sent in
// cleartext — including Src/Dst — an identification/privacy
// limitation the spec calls out (§4.5) but does not treat as a
// confidentiality bug, since payload confidentiality is the property
// the AEAD layer actually provides.
func MarshalWire(p Packet) []byte {
	out := EncodeHeader(p)
	return append(out, p.Payload...)
}

// UnmarshalWire splits raw wire bytes into a header Packet (Payload
// set to the remaining ciphertext bytes, not yet decrypted).
func UnmarshalWire(raw []byte) (Packet, error) {
	p, err := DecodeHeader(raw)
	if err != nil {
		return Packet{}, err
	}
	p.Payload = append([]byte(nil), raw[HeaderSize:]...)
	return p, nil
}
