package protocol

import (
	"strings"
	"testing"
)

type recordingHandler struct {
	events []Reason
	recv   [][]byte
	http   string
}

func (h *recordingHandler) Handle(conn *Connection, reason Reason, userData *any, in []byte) error {
	h.events = append(h.events, reason)
	switch reason {
	case ReasonReceive:
		cp := make([]byte, len(in))
		copy(cp, in)
		h.recv = append(h.recv, cp)
	case ReasonHTTP:
		h.http = string(in)
	}
	return nil
}

func handshakeRequest(key string) string {
	return "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: " + key + "\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
}

func TestIngestSingleClientEcho(t *testing.T) {
	reg := NewRegistry()
	h := &recordingHandler{}
	p := reg.Register("echo", h, 0)

	ft := newFakeTransport()
	conn := NewConnection(ft, p)

	n := Ingest(conn, reg, []byte(handshakeRequest("dGhlIHNhbXBsZSBub25jZQ==")))
	if n < 0 {
		t.Fatalf("handshake ingest returned negative: %d", n)
	}
	if conn.State() != StateEstablished {
		t.Fatalf("state = %v, want ESTABLISHED", conn.State())
	}

	frame := &Frame{IsFinal: true, Opcode: OpcodeText, PayloadLen: 2, Payload: []byte("hi")}
	encoded, err := EncodeFrame(frame, true, nil)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	n = Ingest(conn, reg, encoded)
	if n < 0 {
		t.Fatalf("frame ingest returned negative: %d", n)
	}

	Destroy(conn)

	want := []Reason{ReasonEstablished, ReasonReceive, ReasonClosed}
	if len(h.events) != len(want) {
		t.Fatalf("events = %v, want %v", h.events, want)
	}
	for i, r := range want {
		if h.events[i] != r {
			t.Errorf("event[%d] = %v, want %v", i, h.events[i], r)
		}
	}
	if len(h.recv) != 1 || string(h.recv[0]) != "hi" {
		t.Errorf("received payloads = %v, want [hi]", h.recv)
	}
}

func TestIngestHTTPFallback(t *testing.T) {
	reg := NewRegistry()
	h := &recordingHandler{}
	reg.Register("echo", h, 0)

	conn := NewConnection(newFakeTransport(), nil)
	first, _ := reg.First()
	conn.bindProtocol(first)

	req := "GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n"
	n := Ingest(conn, reg, []byte(req))
	if n >= 0 {
		t.Fatalf("expected negative return for self-destroyed HTTP-fallback connection, got %d", n)
	}
	if conn.State() != StateDead {
		t.Fatalf("state = %v, want DEAD", conn.State())
	}
	if h.http != "/index.html" {
		t.Errorf("HTTP path = %q, want /index.html", h.http)
	}
	for _, r := range h.events {
		if r == ReasonClosed {
			t.Error("HTTP-fallback connection never reached ESTABLISHED; CLOSED must not fire")
		}
	}
}

func TestIngestPartialHandshakeWaitsForMoreBytes(t *testing.T) {
	reg := NewRegistry()
	reg.Register("echo", &recordingHandler{}, 0)
	conn := NewConnection(newFakeTransport(), nil)
	first, _ := reg.First()
	conn.bindProtocol(first)

	full := handshakeRequest("dGhlIHNhbXBsZSBub25jZQ==")
	split := len(full) / 2

	n := Ingest(conn, reg, []byte(full[:split]))
	if n < 0 {
		t.Fatalf("partial handshake should not self-destroy, got %d", n)
	}
	if conn.State() != StateHTTP {
		t.Fatalf("state = %v, want HTTP while awaiting more bytes", conn.State())
	}

	n = Ingest(conn, reg, []byte(full[split:]))
	if n < 0 {
		t.Fatalf("completed handshake ingest returned negative: %d", n)
	}
	if conn.State() != StateEstablished {
		t.Fatalf("state = %v, want ESTABLISHED", conn.State())
	}
}

func TestIngestCloseFrameTriggersDestroyAndClosedCallback(t *testing.T) {
	reg := NewRegistry()
	h := &recordingHandler{}
	p := reg.Register("echo", h, 0)
	ft := newFakeTransport()
	conn := NewConnection(ft, p)

	Ingest(conn, reg, []byte(handshakeRequest("dGhlIHNhbXBsZSBub25jZQ==")))

	close := &Frame{IsFinal: true, Opcode: OpcodeClose}
	encoded, _ := EncodeFrame(close, true, nil)
	n := Ingest(conn, reg, encoded)
	if n >= 0 {
		t.Fatalf("close frame should self-destroy the connection, got %d", n)
	}
	if conn.State() != StateDead {
		t.Fatalf("state = %v, want DEAD", conn.State())
	}
	if h.events[len(h.events)-1] != ReasonClosed {
		t.Fatalf("last event = %v, want ReasonClosed", h.events[len(h.events)-1])
	}
}

func TestIngestUnrecognizedOpcodeClosesConnection(t *testing.T) {
	reg := NewRegistry()
	p := reg.Register("echo", &recordingHandler{}, 0)
	conn := NewConnection(newFakeTransport(), p)
	Ingest(conn, reg, []byte(handshakeRequest("dGhlIHNhbXBsZSBub25jZQ==")))

	bad := []byte{0x8F, 0x00} // final bit + reserved opcode 0xF, zero-length payload
	n := Ingest(conn, reg, bad)
	if n >= 0 {
		t.Fatalf("expected negative return for unrecognized opcode, got %d", n)
	}
	if conn.State() != StateDead {
		t.Fatalf("state = %v, want DEAD", conn.State())
	}
}

func TestParseHandshakeRejectsBadVersion(t *testing.T) {
	req := strings.Replace(handshakeRequest("dGhlIHNhbXBsZSBub25jZQ=="), "Sec-WebSocket-Version: 13", "Sec-WebSocket-Version: 8", 1)
	_, _, err := ParseHandshake([]byte(req))
	if err != ErrBadWebSocketVersion {
		t.Fatalf("expected ErrBadWebSocketVersion, got %v", err)
	}
}
