package wsserver_test

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/tidalws/core/protocol"
	"github.com/tidalws/core/wsserver"
)

// recordingHandler is shared across the scenario tests below; it
// mirrors protocol's own test double but also lets a callback trigger
// an in-loop broadcast.
type recordingHandler struct {
	name     string
	events   chan string
	onRecv  func(conn *protocol.Connection, payload []byte)
	onBcast func(conn *protocol.Connection, payload []byte)
}

func (h *recordingHandler) Handle(conn *protocol.Connection, reason protocol.Reason, userData *any, in []byte) error {
	switch reason {
	case protocol.ReasonEstablished:
		h.events <- h.name + ":ESTABLISHED"
	case protocol.ReasonClosed:
		h.events <- h.name + ":CLOSED"
	case protocol.ReasonReceive:
		h.events <- fmt.Sprintf("%s:RECEIVE:%s", h.name, string(in))
		if h.onRecv != nil {
			h.onRecv(conn, in)
		}
	case protocol.ReasonBroadcast:
		h.events <- fmt.Sprintf("%s:BROADCAST:%s", h.name, string(in))
		if h.onBcast != nil {
			h.onBcast(conn, in)
		}
	case protocol.ReasonHTTP:
		h.events <- fmt.Sprintf("%s:HTTP:%s", h.name, string(in))
	}
	return nil
}

func newRecordingHandler(name string) *recordingHandler {
	return &recordingHandler{name: name, events: make(chan string, 64)}
}

// startTestServer builds a Server with registry, starts Run in a
// background goroutine, waits for Ready, and returns the server plus
// its bound external address.
func startTestServer(t *testing.T, registry *protocol.Registry) (*wsserver.Server, string, context.CancelFunc) {
	t.Helper()
	cfg := wsserver.DefaultConfig("127.0.0.1:0")
	s, err := wsserver.New(cfg, registry)
	if err != nil {
		t.Fatalf("wsserver.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case err := <-done:
		t.Fatalf("server exited before becoming ready: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	port, err := s.ListenPort()
	if err != nil {
		t.Fatalf("ListenPort: %v", err)
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, addr, cancel
}

// dialAndUpgrade opens a TCP connection to addr and performs the
// client side of the WebSocket handshake, returning the raw socket
// once the server's 101 response has been fully read.
func dialAndUpgrade(t *testing.T, addr, path, subprotocol string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}

	req := "GET " + path + " HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n"
	if subprotocol != "" {
		req += "Sec-WebSocket-Protocol: " + subprotocol + "\r\n"
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("write handshake: %v", err)
	}

	if err := readUntilHeadersEnd(conn); err != nil {
		t.Fatalf("read handshake response: %v", err)
	}
	return conn
}

func dialPlain(addr string) (net.Conn, error) {
	return net.Dial("tcp", addr)
}

func readUntilHeadersEnd(conn net.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	buf := make([]byte, 0, 512)
	tmp := make([]byte, 256)
	for {
		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if bytes.Contains(buf, []byte("\r\n\r\n")) {
				return nil
			}
		}
		if err != nil {
			return err
		}
	}
}

func sendText(t *testing.T, conn net.Conn, payload string) {
	t.Helper()
	frame := &protocol.Frame{IsFinal: true, Opcode: protocol.OpcodeText, PayloadLen: int64(len(payload)), Payload: []byte(payload)}
	out, err := protocol.EncodeFrame(frame, true, nil)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if _, err := conn.Write(out); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func expectEvent(t *testing.T, events chan string, want string) {
	t.Helper()
	select {
	case got := <-events:
		if got != want {
			t.Fatalf("event = %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for event %q", want)
	}
}

func expectNoEvent(t *testing.T, events chan string, within time.Duration) {
	t.Helper()
	select {
	case got := <-events:
		t.Fatalf("unexpected event %q", got)
	case <-time.After(within):
	}
}
