package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("hello world")

	var buf bytes.Buffer
	if err := Encode(&buf, TypeDebug, payload); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	typ, decoded, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if typ != TypeDebug {
		t.Errorf("type mismatch: got %q, want %q", typ, TypeDebug)
	}
	if !bytes.Equal(decoded, payload) {
		t.Errorf("payload mismatch: got %q, want %q", decoded, payload)
	}
}

// TestDebugPacketWireBytes pins the exact on-wire bytes for a debug packet
// carrying payload [0..9]: length=0x000B, type='+', 10 payload bytes.
func TestDebugPacketWireBytes(t *testing.T) {
	payload := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	var buf bytes.Buffer
	if err := Encode(&buf, TypeDebug, payload); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := []byte{0x00, 0x0B, 0x2B, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("wire bytes mismatch:\n got  % x\n want % x", buf.Bytes(), want)
	}
}

func TestEncodeEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, TypeServerHeartbeat, nil); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	typ, payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if typ != TypeServerHeartbeat {
		t.Errorf("type mismatch: got %q", typ)
	}
	if len(payload) != 0 {
		t.Errorf("expected empty payload, got %d bytes", len(payload))
	}
}

func TestEncodePayloadTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, TypeUnsequencedData, make([]byte, MaxPayload+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x01, 'X'})

	_, _, err := ReadFrame(&buf)
	if !errors.Is(err, ErrFramingError) {
		t.Fatalf("expected ErrFramingError, got %v", err)
	}
}

func TestDecodeHeaderZeroLength(t *testing.T) {
	_, _, err := DecodeHeader([HeaderSize]byte{0x00, 0x00, 'L'})
	if !errors.Is(err, ErrFramingError) {
		t.Fatalf("expected ErrFramingError for zero length, got %v", err)
	}
}

func TestIsKnownType(t *testing.T) {
	for _, typ := range []byte{'+', 'L', 'A', 'J', 'H', 'R', 'S', 'U', 'O', 'Z'} {
		if !IsKnownType(typ) {
			t.Errorf("expected %q to be a known type", typ)
		}
	}
	if IsKnownType('X') {
		t.Error("expected 'X' to be unknown")
	}
}
