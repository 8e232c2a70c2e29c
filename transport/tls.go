// File: transport/tls.go
//
// TLS-wrapped transport. The handshake runs synchronously at
// construction time so accept-time failures (a TLS probe from a
// plain-HTTP client, an unsupported cipher) surface immediately and the
// caller can discard the connection per §4.2's accept-time-failure
// handling, without ever installing it in a slot.

package transport

import (
	"crypto/tls"
	"io"
	"os"
	"time"

	"github.com/tidalws/core/api"
)

// TLSTransport implements api.Transport by running TLS record framing
// over the same raw fd a TCP transport would use directly.
type TLSTransport struct {
	tcp    *TCP
	raw    *rawConn
	conn   *tls.Conn
	closed bool
}

// NewTLSTransport completes a server-side TLS handshake over tcp's
// descriptor and returns a ready Transport.
func NewTLSTransport(tcp *TCP, cfg *tls.Config) (*TLSTransport, error) {
	raw := newRawConn(tcp.fd)
	conn := tls.Server(raw, cfg)
	if err := conn.Handshake(); err != nil {
		return nil, err
	}
	return &TLSTransport{tcp: tcp, raw: raw, conn: conn}, nil
}

// Send implements api.Transport.
func (t *TLSTransport) Send(buffers [][]byte) error {
	if t.closed {
		return api.ErrTransportClosed
	}
	for _, b := range buffers {
		if _, err := t.conn.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// Recv performs one non-blocking peek: it sets an already-elapsed read
// deadline so a read that would otherwise block instead fails with a
// timeout, which Recv reports as "no data yet" rather than propagating
// as an error. This lets a poll-driven loop call Recv every tick
// without ever blocking inside crypto/tls.
func (t *TLSTransport) Recv() ([][]byte, error) {
	if t.closed {
		return nil, api.ErrTransportClosed
	}
	t.raw.SetReadDeadline(time.Now())
	buf := make([]byte, 65536)
	n, err := t.conn.Read(buf)
	if err != nil {
		if err == os.ErrDeadlineExceeded {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, io.EOF
	}
	return [][]byte{buf[:n]}, nil
}

// Shutdown sends a TLS close_notify without tearing down the socket.
func (t *TLSTransport) Shutdown() error {
	return t.conn.CloseWrite()
}

// Close closes the TLS session and the underlying socket. Idempotent.
func (t *TLSTransport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.conn.Close()
	return t.tcp.Close()
}

// Features implements api.Transport.
func (t *TLSTransport) Features() api.TransportFeatures {
	f := t.tcp.Features()
	f.ZeroCopy = false
	return f
}

// Fd implements api.Transport.
func (t *TLSTransport) Fd() int { return t.tcp.fd }

var _ api.Transport = (*TLSTransport)(nil)
