package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	payload := []byte("tidalws test frame payload")
	frame := &Frame{
		IsFinal:    true,
		Opcode:     OpcodeBinary,
		PayloadLen: int64(len(payload)),
		Payload:    payload,
	}

	encoded, err := EncodeFrame(frame, false, nil)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	decoded, consumed, err := DecodeFrame(encoded)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if consumed != len(encoded) {
		t.Errorf("consumed = %d, want %d", consumed, len(encoded))
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Errorf("payload mismatch: got %v want %v", decoded.Payload, payload)
	}
	if decoded.Opcode != OpcodeBinary {
		t.Error("opcode mismatch")
	}
	if !decoded.IsFinal {
		t.Error("expected final bit set")
	}
}

func TestEncodeDecodeFrameMasked(t *testing.T) {
	payload := []byte("masked payload")
	frame := &Frame{IsFinal: true, Opcode: OpcodeText, PayloadLen: int64(len(payload)), Payload: payload}

	encoded, err := EncodeFrame(frame, true, nil)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	decoded, _, err := DecodeFrame(encoded)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Errorf("unmasked payload mismatch: got %v want %v", decoded.Payload, payload)
	}
}

func TestDecodeFrameIncomplete(t *testing.T) {
	frame, consumed, err := DecodeFrame([]byte{0x81})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame != nil || consumed != 0 {
		t.Error("expected (nil, 0, nil) for an incomplete header")
	}
}

func TestDecodeFrameRejectsOversizedPayload(t *testing.T) {
	hdr := []byte{0x82, 127, 0, 0, 0, 0, 0, 0x20, 0, 0} // length field = 1<<21, exceeds MaxFramePayload
	_, _, err := DecodeFrame(hdr)
	if err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestEncodeFrameRejectsOversizedPayload(t *testing.T) {
	frame := &Frame{PayloadLen: MaxFramePayload + 1}
	_, err := EncodeFrame(frame, false, nil)
	if err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}
