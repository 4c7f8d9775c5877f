package packet

import (
	"bytes"
	"errors"
	"testing"

	"github.com/orbitmesh/satnode/internal/meshnet"
)

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	p := Packet{
		Version: 1,
		MsgType: TypeData,
		Src:     5,
		Dst:     9,
		Seq:     123,
		TTL:     8,
	}
	buf := EncodeHeader(p)
	if len(buf) != HeaderSize {
		t.Fatalf("EncodeHeader length = %d, want %d", len(buf), HeaderSize)
	}
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader() error = %v", err)
	}
	got.Payload = nil
	if got != p {
		t.Errorf("DecodeHeader() = %+v, want %+v", got, p)
	}
}

func TestDecodeHeaderTooShort(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	if err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestMarshalUnmarshalWire(t *testing.T) {
	p := Packet{
		Version: 1,
		MsgType: TypeImageChunk,
		Src:     1,
		Dst:     2,
		Seq:     7,
		TTL:     10,
		Payload: []byte("ciphertext-ish"),
	}
	wire := MarshalWire(p)
	got, err := UnmarshalWire(wire)
	if err != nil {
		t.Fatalf("UnmarshalWire() error = %v", err)
	}
	if got.Src != p.Src || got.Dst != p.Dst || got.Seq != p.Seq || got.TTL != p.TTL {
		t.Errorf("UnmarshalWire header mismatch: got %+v", got)
	}
	if !bytes.Equal(got.Payload, p.Payload) {
		t.Errorf("UnmarshalWire payload = %q, want %q", got.Payload, p.Payload)
	}
}

func TestUnmarshalWireParseError(t *testing.T) {
	_, err := UnmarshalWire([]byte{0, 0})
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !errors.Is(err, meshnet.ErrParseError) {
		t.Errorf("error %v does not wrap ErrParseError", err)
	}
}
